package backend

import (
	"context"
	"fmt"
	"log/slog"

	"feeledger/internal/sheets"
	gsheet "feeledger/internal/sheets/google"
	sheetsmemory "feeledger/internal/sheets/memory"
	"feeledger/internal/storage"
	"feeledger/internal/storage/memory"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// OpenRepository opens the configured storage. SQLite databases are migrated
// on open.
func (f *DefaultFactory) OpenRepository(ctx context.Context, config Config) (*Result, error) {
	switch config.Storage {
	case SQLiteStorage:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &Result{Repository: repo, Cleanup: repo.Close}, nil

	case MemoryStorage:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store := memory.NewFromFiles(dataDir)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)
		return &Result{Repository: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", config.Storage)
	}
}

// OpenRegister builds the writer the worker mirrors payments into.
func (f *DefaultFactory) OpenRegister(ctx context.Context, config Config) (sheets.RegisterWriter, error) {
	switch config.Register {
	case GoogleRegister:
		opts, err := gsheet.ServiceAccountOptions(ctx, config.GoogleServiceAccountJSON, config.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("google register credentials: %w", err)
		}
		cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets register", "spreadsheet_id", config.GoogleSpreadsheetID)
		return cli, nil

	case MemoryRegister, "":
		f.logger.InfoContext(ctx, "Using in-memory register, rows are not persisted")
		return sheetsmemory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported register backend: %q", config.Register)
	}
}

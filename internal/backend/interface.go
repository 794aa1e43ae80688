// Package backend opens the storage and fee register implementations named
// by configuration.
package backend

import (
	"context"

	"feeledger/internal/services"
	"feeledger/internal/sheets"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result is an opened repository plus its cleanup.
type Result struct {
	Repository services.Repository
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	OpenRepository(ctx context.Context, config Config) (*Result, error)
	OpenRegister(ctx context.Context, config Config) (sheets.RegisterWriter, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Storage StorageType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; seed files are read from here when present.
	DataDirectory string

	Register                 RegisterType
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

type StorageType string

const (
	SQLiteStorage StorageType = "sqlite"
	MemoryStorage StorageType = "memory"
)

func (t StorageType) String() string { return string(t) }

func (t StorageType) IsValid() bool {
	switch t {
	case SQLiteStorage, MemoryStorage:
		return true
	default:
		return false
	}
}

type RegisterType string

const (
	GoogleRegister RegisterType = "google"
	MemoryRegister RegisterType = "memory"
)

func (t RegisterType) String() string { return string(t) }

func (t RegisterType) IsValid() bool {
	switch t {
	case GoogleRegister, MemoryRegister:
		return true
	default:
		return false
	}
}

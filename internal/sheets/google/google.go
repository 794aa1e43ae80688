package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"feeledger/internal/core"
	ports "feeledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultRegisterName = "Fee Register"

var registerHeader = []any{"Date", "Receipt No", "Student", "Class", "Month", "Amount", "Remarks"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base name without year (e.g. "Fee Register"); the session year is prefixed.
	registerBase string
}

// Ensure interface conformance
var _ ports.RegisterWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables and a
// service account.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Fee Register").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts, err := ServiceAccountOptions(ctx, inline, file)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"), opts...)
}

// New builds a client for spreadsheetID. Extra options are passed to the
// Sheets service, e.g. goption.WithEndpoint for a local fake.
func New(ctx context.Context, spreadsheetID, registerBase string, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	registerBase = strings.TrimSpace(registerBase)
	if registerBase == "" {
		registerBase = DefaultRegisterName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, registerBase: registerBase}, nil
}

// ServiceAccountOptions builds client options from inline service account
// JSON or, when that is empty, from a key file.
func ServiceAccountOptions(ctx context.Context, serviceAccountJSON, serviceAccountFile string) ([]goption.ClientOption, error) {
	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// AppendRow appends row to the register sheet of its academic session. A
// receipt number already present in column B is not written again.
func (c *Client) AppendRow(ctx context.Context, row ports.RegisterRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(row.ReceiptNumber) == "" {
		return "", errors.New("register row without receipt number")
	}

	sheet := yearPrefixedName(c.registerBase, core.AcademicYearOf(row.Date))
	existing, err := c.readCol(ctx, sheet, "B:B")
	if err != nil {
		return "", err
	}
	for i, v := range existing {
		if v == row.ReceiptNumber {
			ref := fmt.Sprintf("%s!A%d:G%d", quote(sheet), i+1, i+1)
			slog.InfoContext(ctx, "Receipt already in fee register", "receipt", row.ReceiptNumber, "ref", ref)
			return ref, nil
		}
	}

	values := [][]any{row.Values()}
	if len(existing) == 0 {
		values = [][]any{registerHeader, row.Values()}
	}

	rng := fmt.Sprintf("%s!A:G", quote(sheet))
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// readCol returns the column values in row order; blank cells stay blank so
// indexes keep matching row numbers.
func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", quote(sheetName), col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return out, nil
}

func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

//go:build integration

package google

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"feeledger/internal/core"
	ports "feeledger/internal/sheets"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendRegisterRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	// high id so the test row never collides with real receipts
	id := time.Now().Unix()
	row := ports.NewRegisterRow(
		core.FeeTransaction{ID: id, StudentID: 1, Amount: core.Rupees(1), Month: core.AcademicMonthOf(time.Now()),
			Remarks: "integration test", CreatedAt: time.Now()},
		core.Student{ID: 1, FullName: "Integration Test", ClassName: "Test"},
	)

	ref, err := client.AppendRow(ctx, row)
	if err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if !strings.Contains(ref, client.registerBase) {
		t.Errorf("unexpected ref %q", ref)
	}

	again, err := client.AppendRow(ctx, row)
	if err != nil {
		t.Fatalf("second AppendRow failed: %v", err)
	}
	t.Logf("first ref %s, second ref %s", ref, again)
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"feeledger/internal/sheets"
)

// Register is an in-memory fee register.
type Register struct {
	mu   sync.Mutex
	rows []sheets.RegisterRow
	refs map[string]string
}

func New() *Register {
	return &Register{refs: map[string]string{}}
}

// AppendRow stores the row once per receipt number and returns a synthetic
// row reference.
func (r *Register) AppendRow(_ context.Context, row sheets.RegisterRow) (string, error) {
	if strings.TrimSpace(row.ReceiptNumber) == "" {
		return "", fmt.Errorf("register row without receipt number")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.refs[row.ReceiptNumber]; ok {
		return ref, nil
	}
	r.rows = append(r.rows, row)
	ref := fmt.Sprintf("mem:%d", len(r.rows))
	r.refs[row.ReceiptNumber] = ref
	return ref, nil
}

// Rows returns a copy of the stored rows in append order.
func (r *Register) Rows() []sheets.RegisterRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sheets.RegisterRow(nil), r.rows...)
}

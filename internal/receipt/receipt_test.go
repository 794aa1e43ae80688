package receipt

import (
	"strings"
	"testing"
	"time"

	"feeledger/internal/core"
)

var (
	fixedNow = time.Date(2025, 4, 15, 11, 30, 0, 0, time.UTC)

	student = core.Student{ID: 7, FullName: "Priya Sharma", FatherName: "Mohan Sharma", ClassName: "Class 8"}
	tx      = core.FeeTransaction{
		ID:        12,
		StudentID: 7,
		Amount:    core.Rupees(1000),
		Month:     core.April,
		Remarks:   core.DefaultRemarks(core.April),
		CreatedAt: time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC),
	}
)

func newFormatter(t *testing.T, now time.Time) *Formatter {
	t.Helper()
	f, err := New(Header{}, WithClock(func() time.Time { return now }), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("new formatter: %v", err)
	}
	return f
}

func TestFormatContainsLiterals(t *testing.T) {
	doc, err := newFormatter(t, fixedNow).Format(tx, student)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	for _, out := range []string{doc.HTML, doc.Text} {
		for _, want := range []string{"April", "1000", "Priya Sharma", "RCT-000012", "Class 8", DefaultSchoolName, "FEE RECEIPT", "TOTAL", "Signature"} {
			if !strings.Contains(out, want) {
				t.Errorf("receipt missing %q:\n%s", want, out)
			}
		}
	}
	if doc.Number != "RCT-000012" {
		t.Fatalf("Number = %q", doc.Number)
	}
	if !doc.IssuedAt.Equal(fixedNow) {
		t.Fatalf("IssuedAt = %v", doc.IssuedAt)
	}
	if !strings.Contains(doc.HTML, "15 Apr 2025") || !strings.Contains(doc.Text, "Session: 2025-26") {
		t.Fatalf("expected transaction date and session in receipt")
	}
}

func TestFormatIsDeterministicWithFixedClock(t *testing.T) {
	f := newFormatter(t, fixedNow)
	a, _ := f.Format(tx, student)
	b, _ := f.Format(tx, student)
	if a.HTML != b.HTML || a.Text != b.Text {
		t.Fatalf("expected identical output for identical input")
	}

	later, _ := newFormatter(t, fixedNow.Add(48*time.Hour)).Format(tx, student)
	if later.HTML == a.HTML {
		t.Fatalf("issued stamp should follow the clock")
	}
	if strings.Replace(later.Text, "17 Apr 2025 11:30", "15 Apr 2025 11:30", 1) != a.Text {
		t.Fatalf("only the issued stamp should differ")
	}
}

func TestFormatRejectsForeignTransaction(t *testing.T) {
	other := tx
	other.StudentID = 99
	_, err := newFormatter(t, fixedNow).Format(other, student)
	if !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFormatEscapesHTML(t *testing.T) {
	s := student
	s.FullName = "<b>Rahul</b>"
	doc, err := newFormatter(t, fixedNow).Format(tx, s)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if strings.Contains(doc.HTML, "<b>Rahul</b>") {
		t.Fatalf("student name must be escaped in HTML output")
	}
	if !strings.Contains(doc.Text, "<b>Rahul</b>") {
		t.Fatalf("text output keeps the raw name")
	}
}

func TestCustomHeaderAndRemarks(t *testing.T) {
	f, err := New(Header{Name: "Sunrise Public School", Address: "Motihari"}, WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	custom := tx
	custom.Remarks = "Paid by cheque 004512"
	doc, _ := f.Format(custom, student)
	if !strings.Contains(doc.HTML, "Sunrise Public School") || strings.Contains(doc.HTML, DefaultSchoolName) {
		t.Fatalf("expected custom header")
	}
	if !strings.Contains(doc.Text, "Paid by cheque 004512") {
		t.Fatalf("expected custom remarks in text receipt")
	}
}

func TestSessionShownWithoutFatherName(t *testing.T) {
	s := student
	s.FatherName = ""
	doc, err := newFormatter(t, fixedNow).Format(tx, s)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	for name, out := range map[string]string{"html": doc.HTML, "text": doc.Text} {
		if !strings.Contains(out, "Session: 2025-26") {
			t.Errorf("%s receipt missing session:\n%s", name, out)
		}
		if strings.Contains(out, "Father's Name") {
			t.Errorf("%s receipt shows an empty father's name", name)
		}
	}
}

func TestDatesUseFormatterLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	early := tx
	// 1 Apr 02:00 IST is still 31 Mar in UTC
	early.CreatedAt = time.Date(2025, 3, 31, 20, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		loc         *time.Location
		wantDate    string
		wantSession string
		wantIssued  string
	}{
		{"utc", time.UTC, "31 Mar 2025", "2024-25", "15 Apr 2025 11:30"},
		{"ist", ist, "01 Apr 2025", "2025-26", "15 Apr 2025 17:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(Header{}, WithClock(func() time.Time { return fixedNow }), WithLocation(tt.loc))
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			doc, err := f.Format(early, student)
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			for _, want := range []string{"Date: " + tt.wantDate, "Session: " + tt.wantSession, "Issued: " + tt.wantIssued} {
				if !strings.Contains(doc.HTML, want) || !strings.Contains(doc.Text, want) {
					t.Errorf("receipt missing %q:\n%s", want, doc.Text)
				}
			}
		})
	}
}

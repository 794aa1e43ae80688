// Package receipt renders printable fee receipts.
//
// Rendering is deterministic for a given transaction and student except for
// the issued-on stamp, which is taken from the Formatter's clock.
package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"feeledger/internal/core"
	"feeledger/web"
)

const (
	DefaultSchoolName    = "THE MATHEMATICS BAZAR"
	DefaultSchoolAddress = "Chainiya Chowk, East Champaran"

	dateLayout   = "02 Jan 2006"
	issuedLayout = "02 Jan 2006 15:04"
)

// Clock returns the current time.
type Clock func() time.Time

type Header struct {
	Name    string
	Address string
}

// Document is a rendered receipt.
type Document struct {
	Number   string
	IssuedAt time.Time
	HTML     string
	Text     string
}

type Formatter struct {
	header Header
	now    Clock
	loc    *time.Location
	tmpl   *template.Template
}

type Option func(*Formatter)

// WithClock overrides time.Now for the issued-on stamp.
func WithClock(c Clock) Option {
	return func(f *Formatter) {
		if c != nil {
			f.now = c
		}
	}
}

// WithLocation sets the zone receipt dates and the session are printed in.
// Storage stamps transactions in UTC; the default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

func New(h Header, opts ...Option) (*Formatter, error) {
	if strings.TrimSpace(h.Name) == "" {
		h.Name = DefaultSchoolName
		if h.Address == "" {
			h.Address = DefaultSchoolAddress
		}
	}
	tmpl, err := template.ParseFS(web.TemplatesFS, "templates/receipt.html")
	if err != nil {
		return nil, fmt.Errorf("parse receipt template: %w", err)
	}
	f := &Formatter{header: h, now: time.Now, loc: time.Local, tmpl: tmpl}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type view struct {
	SchoolName    string
	SchoolAddress string
	Number        string
	Date          string
	IssuedAt      string
	Session       string
	StudentName   string
	FatherName    string
	ClassName     string
	Month         string
	Remarks       string
	Amount        string
}

// Format renders tx for st. The transaction must belong to the student.
func (f *Formatter) Format(tx core.FeeTransaction, st core.Student) (Document, error) {
	if tx.StudentID != st.ID {
		return Document{}, core.NewValidationError(core.ErrInvalidStudent, core.FieldError{
			Field: "student_id",
			Error: fmt.Sprintf("transaction %d does not belong to student %d", tx.ID, st.ID),
		})
	}

	issued := f.now()
	paidAt := tx.CreatedAt.In(f.loc)
	v := view{
		SchoolName:    f.header.Name,
		SchoolAddress: f.header.Address,
		Number:        tx.ReceiptNumber(),
		Date:          paidAt.Format(dateLayout),
		IssuedAt:      issued.In(f.loc).Format(issuedLayout),
		Session:       core.AcademicSession(paidAt),
		StudentName:   st.FullName,
		FatherName:    st.FatherName,
		ClassName:     st.ClassName,
		Month:         tx.Month.String(),
		Amount:        tx.Amount.String(),
	}
	if tx.Remarks != core.DefaultRemarks(tx.Month) {
		v.Remarks = tx.Remarks
	}

	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, v); err != nil {
		return Document{}, fmt.Errorf("render receipt %s: %w", v.Number, err)
	}

	return Document{
		Number:   v.Number,
		IssuedAt: issued,
		HTML:     buf.String(),
		Text:     renderText(v),
	}, nil
}

const textWidth = 44

func renderText(v view) string {
	var b strings.Builder
	rule := strings.Repeat("=", textWidth)
	line := strings.Repeat("-", textWidth)

	b.WriteString(rule + "\n")
	b.WriteString(center(v.SchoolName) + "\n")
	if v.SchoolAddress != "" {
		b.WriteString(center(v.SchoolAddress) + "\n")
	}
	b.WriteString(rule + "\n")
	b.WriteString(center("FEE RECEIPT") + "\n\n")
	b.WriteString(pair("Receipt No: "+v.Number, "Date: "+v.Date) + "\n")
	b.WriteString("Student Name: " + v.StudentName + "\n")
	if v.FatherName != "" {
		b.WriteString("Father's Name: " + v.FatherName + "\n")
	}
	b.WriteString(pair("Class: "+v.ClassName, "Session: "+v.Session) + "\n")
	b.WriteString(line + "\n")
	b.WriteString(pair("Tuition Fee ("+v.Month+")", v.Amount) + "\n")
	if v.Remarks != "" {
		b.WriteString("  " + v.Remarks + "\n")
	}
	b.WriteString(line + "\n")
	b.WriteString(pair("TOTAL", v.Amount) + "\n")
	b.WriteString(rule + "\n\n")
	b.WriteString("Issued: " + v.IssuedAt + "\n")
	b.WriteString("Signature: _________________\n")
	return b.String()
}

func center(s string) string {
	n := len([]rune(s))
	if n >= textWidth {
		return s
	}
	return strings.Repeat(" ", (textWidth-n)/2) + s
}

func pair(left, right string) string {
	gap := textWidth - len([]rune(left)) - len([]rune(right))
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

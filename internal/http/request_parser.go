// Package http provides the JSON API of the fee ledger.
//
// This file reads request bodies (JSON or form-encoded, so plain HTML forms
// work too), validates them with struct tags and turns them into core input
// types.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"feeledger/internal/core"
)

// maxBodyBytes caps request bodies; every payload here is a handful of fields.
const maxBodyBytes = 64 << 10

var errBadBody = errors.New("malformed request body")

// RequestValidator validates request structs and reports failures under
// their JSON field names with English messages.
type RequestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("amount", amountValidation)
	registerTranslation(v, trans, "amount", "{0} must be a positive amount like 1000 or 1000.50")
	registerTranslation(v, trans, "required", "{0} is required")

	return &RequestValidator{validate: v, translator: trans}
}

func registerTranslation(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// amountValidation accepts decimal rupee strings; blank passes so that
// optional amounts can use omitempty.
func amountValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := core.ParseDecimalToPaise(s)
	return err == nil
}

// Struct validates req and returns a *core.ValidationError listing every
// failing field.
func (rv *RequestValidator) Struct(req any) error {
	err := rv.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	flds := make([]core.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, core.FieldError{Field: fe.Field(), Error: fe.Translate(rv.translator)})
	}
	return core.NewValidationError(errors.New("invalid request"), flds...)
}

// RequestBodyParser reads a body once and serves fields from either JSON or
// form encoding.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: body exceeds %d bytes", errBadBody, maxBodyBytes)
	}
	return p
}

// Parse decodes the body. JSON is detected by its leading brace; anything
// else is parsed as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}
	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errBadBody, err)
		}
		return p.err
	}
	if body[0] == '[' {
		p.err = fmt.Errorf("%w: expected an object", errBadBody)
		return p.err
	}

	if p.formData, p.err = url.ParseQuery(body); p.err != nil {
		p.err = fmt.Errorf("%w: %v", errBadBody, p.err)
	}
	return p.err
}

// Get returns a trimmed, control-character-free string for key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was present in the body at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

type classRequest struct {
	Name        string `json:"class_name" validate:"required,max=100"`
	StandardFee string `json:"standard_fee" validate:"omitempty,amount"`
}

type studentRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	FatherName string `json:"father_name" validate:"max=200"`
	Mobile     string `json:"mobile" validate:"omitempty,numeric,min=10,max=13"`
	Address    string `json:"address" validate:"max=500"`
	ClassID    string `json:"class_id" validate:"required,number"`
	TotalFee   string `json:"total_fee" validate:"omitempty,amount"`
}

type paymentRequest struct {
	Amount  string `json:"amount" validate:"required,amount"`
	Month   string `json:"payment_month" validate:"required"`
	Remarks string `json:"remarks" validate:"max=500"`
}

type totalFeeRequest struct {
	TotalFee string `json:"total_fee" validate:"required,amount"`
}

type examRequest struct {
	ExamName string `json:"exam_name" validate:"max=100"`
	Math     string `json:"math" validate:"required,number"`
	Science  string `json:"science" validate:"required,number"`
	English  string `json:"english" validate:"required,number"`
	Hindi    string `json:"hindi" validate:"required,number"`
	SST      string `json:"sst" validate:"required,number"`
}

func parsePaise(s string) core.Money {
	paise, _ := core.ParseDecimalToPaise(s)
	return core.Money{Paise: paise}
}

func (rv *RequestValidator) bindClass(r *http.Request) (core.Class, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.Class{}, err
	}
	req := classRequest{Name: p.Get("class_name"), StandardFee: p.Get("standard_fee")}
	if err := rv.Struct(req); err != nil {
		return core.Class{}, err
	}
	return core.Class{Name: req.Name, StandardFee: parsePaise(req.StandardFee)}, nil
}

func (rv *RequestValidator) bindStudent(r *http.Request) (core.NewStudent, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.NewStudent{}, err
	}
	req := studentRequest{
		FullName:   p.Get("full_name"),
		FatherName: p.Get("father_name"),
		Mobile:     p.Get("mobile"),
		Address:    p.Get("address"),
		ClassID:    p.Get("class_id"),
		TotalFee:   p.Get("total_fee"),
	}
	if err := rv.Struct(req); err != nil {
		return core.NewStudent{}, err
	}
	classID, _ := strconv.ParseInt(req.ClassID, 10, 64)
	ns := core.NewStudent{
		FullName:   req.FullName,
		FatherName: req.FatherName,
		Mobile:     req.Mobile,
		Address:    req.Address,
		ClassID:    classID,
	}
	if req.TotalFee != "" {
		fee := parsePaise(req.TotalFee)
		ns.TotalFee = &fee
	}
	return ns, nil
}

func (rv *RequestValidator) bindPayment(r *http.Request, studentID int64) (core.NewPayment, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.NewPayment{}, err
	}
	req := paymentRequest{Amount: p.Get("amount"), Month: p.Get("payment_month"), Remarks: p.Get("remarks")}
	if err := rv.Struct(req); err != nil {
		return core.NewPayment{}, err
	}
	month, err := core.ParseAcademicMonth(req.Month)
	if err != nil {
		return core.NewPayment{}, core.NewValidationError(err, core.FieldError{
			Field: "payment_month",
			Error: fmt.Sprintf("unknown month %q", req.Month),
		})
	}
	return core.NewPayment{
		StudentID: studentID,
		Amount:    parsePaise(req.Amount),
		Month:     month,
		Remarks:   req.Remarks,
	}, nil
}

func (rv *RequestValidator) bindTotalFee(r *http.Request) (core.Money, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.Money{}, err
	}
	req := totalFeeRequest{TotalFee: p.Get("total_fee")}
	if err := rv.Struct(req); err != nil {
		return core.Money{}, err
	}
	return parsePaise(req.TotalFee), nil
}

func (rv *RequestValidator) bindExamResult(r *http.Request, studentID int64) (core.ExamResult, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.ExamResult{}, err
	}
	req := examRequest{
		ExamName: p.Get("exam_name"),
		Math:     p.Get("math"),
		Science:  p.Get("science"),
		English:  p.Get("english"),
		Hindi:    p.Get("hindi"),
		SST:      p.Get("sst"),
	}
	if err := rv.Struct(req); err != nil {
		return core.ExamResult{}, err
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return core.ExamResult{
		StudentID: studentID,
		ExamName:  req.ExamName,
		Marks: core.Marks{
			Math:    atoi(req.Math),
			Science: atoi(req.Science),
			English: atoi(req.English),
			Hindi:   atoi(req.Hindi),
			SST:     atoi(req.SST),
		},
	}, nil
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/receipt"
	"feeledger/internal/services"
	"feeledger/internal/storage/memory"
)

var testNow = time.Date(2025, 5, 20, 11, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New(core.Class{Name: "Class 10", StandardFee: core.Rupees(12000)})
	store.SetClock(func() time.Time { return testNow })
	f, err := receipt.New(receipt.Header{}, receipt.WithClock(func() time.Time { return testNow }), receipt.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("receipt formatter: %v", err)
	}
	svc := services.NewFeeService(store, f, nil, services.WithClock(func() time.Time { return testNow }), services.WithLocation(time.UTC))
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 1000})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}
}

func TestPaymentScenario(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/students", `{"full_name":"Anita Kumari","father_name":"Ramesh","class_id":1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll status=%d body=%s", rr.Code, rr.Body.String())
	}
	st := decode[studentJSON](t, rr)
	if st.TotalFee.Paise != 1200000 || st.Status != "active" {
		t.Fatalf("unexpected student: %+v", st)
	}

	rr = do(t, srv, http.MethodPost, "/students/1/payments", `{"amount":1000,"payment_month":"April"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("April status=%d body=%s", rr.Code, rr.Body.String())
	}
	pay := decode[paymentJSON](t, rr)
	if pay.Balance.Paid.Paise != 100000 || pay.Balance.Remaining.Paise != 1100000 {
		t.Fatalf("unexpected balance after April: %+v", pay.Balance)
	}
	if pay.Transaction.ReceiptNumber != "RCT-000001" || pay.ReceiptURL != "/transactions/1/receipt" {
		t.Fatalf("unexpected payment: %+v", pay)
	}
	if rr.Header().Get("Location") != "/transactions/1/receipt" {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}

	rr = do(t, srv, http.MethodPost, "/students/1/payments", `{"amount":1000,"payment_month":"April"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate April status=%d, want 409", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/students/1/payments", `{"amount":"1000","payment_month":"May"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("May status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/students/1/balance", "")
	bal := decode[balanceJSON](t, rr)
	if bal.Paid.Paise != 200000 || bal.Remaining.Display != "₹10000.00" || bal.Overpaid {
		t.Fatalf("unexpected balance: %+v", bal)
	}

	rr = do(t, srv, http.MethodGet, "/students/1/transactions", "")
	txs := decode[[]transactionJSON](t, rr)
	if len(txs) != 2 || txs[0].Month != "May" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}

	rr = do(t, srv, http.MethodGet, "/transactions/1/receipt", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("receipt status=%d type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	for _, want := range []string{"April", "1000", "Anita Kumari"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("receipt missing %q", want)
		}
	}

	rr = do(t, srv, http.MethodGet, "/transactions/2/receipt?format=text", "")
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") || !strings.Contains(rr.Body.String(), "Tuition Fee (May)") {
		t.Fatalf("unexpected text receipt: %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/students/1/fees", "")
	card := decode[feeCardJSON](t, rr)
	if len(card.Months) != 12 || card.Months[0].State != "PAID" || card.Months[1].State != "PAID" || card.Months[2].State != "DUE" {
		t.Fatalf("unexpected fee card: %+v", card.Months)
	}
}

func TestPaymentErrors(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/students", `{"full_name":"Ravi","class_id":1}`)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"zero amount", "/students/1/payments", `{"amount":0,"payment_month":"April"}`, http.StatusUnprocessableEntity},
		{"bad month", "/students/1/payments", `{"amount":10,"payment_month":"Smarch"}`, http.StatusUnprocessableEntity},
		{"malformed body", "/students/1/payments", `{"amount":`, http.StatusBadRequest},
		{"unknown student", "/students/9/payments", `{"amount":10,"payment_month":"April"}`, http.StatusNotFound},
		{"bad id", "/students/abc/payments", `{"amount":10,"payment_month":"April"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d, body=%s", rr.Code, tt.want, rr.Body.String())
			}
			body := decode[errorJSON](t, rr)
			if body.Error == "" {
				t.Error("expected an error message")
			}
		})
	}

	rr := do(t, srv, http.MethodPost, "/students/1/payments", `{"amount":0,"payment_month":"April"}`)
	body := decode[errorJSON](t, rr)
	if len(body.Fields) != 1 || body.Fields[0].Field != "amount" {
		t.Errorf("expected amount field error, got %+v", body.Fields)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodDelete, "/classes", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestClassesCacheInvalidation(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/classes", "")
	if got := decode[[]classJSON](t, rr); len(got) != 1 {
		t.Fatalf("expected 1 class, got %+v", got)
	}

	rr = do(t, srv, http.MethodPost, "/classes", `{"class_name":"Class 9","standard_fee":"11000"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create class status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/classes", "")
	classes := decode[[]classJSON](t, rr)
	if len(classes) != 2 || classes[1].StandardFee.Paise != 1100000 {
		t.Fatalf("cache should be invalidated, got %+v", classes)
	}

	rr = do(t, srv, http.MethodPost, "/classes", `{"class_name":"class 9"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate class status=%d", rr.Code)
	}
}

func TestStudentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/students", `{"full_name":"Zoya","class_id":1}`)
	do(t, srv, http.MethodPost, "/students", `{"full_name":"Aman","class_id":1,"total_fee":"6000"}`)

	rr := do(t, srv, http.MethodPost, "/students/1/archive", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("archive status=%d", rr.Code)
	}
	if st := decode[studentJSON](t, rr); st.Status != "left" || st.LeftDate != "2025-05-20" {
		t.Fatalf("unexpected archived student: %+v", st)
	}

	rr = do(t, srv, http.MethodGet, "/students?status=active", "")
	active := decode[[]studentJSON](t, rr)
	if len(active) != 1 || active[0].FullName != "Aman" || active[0].TotalFee.Paise != 600000 {
		t.Fatalf("unexpected active students: %+v", active)
	}

	rr = do(t, srv, http.MethodGet, "/students?status=graduated", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status filter code=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/students/1/payments", `{"amount":100,"payment_month":"June"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("payment for archived student code=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPut, "/students/2/total-fee", `{"total_fee":"500"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set total fee code=%d body=%s", rr.Code, rr.Body.String())
	}
	do(t, srv, http.MethodPost, "/students/2/payments", `{"amount":1000,"payment_month":"April"}`)
	rr = do(t, srv, http.MethodGet, "/students/2/balance", "")
	if bal := decode[balanceJSON](t, rr); !bal.Overpaid || bal.Remaining.Display != "-₹500.00" {
		t.Fatalf("expected overpayment, got %+v", bal)
	}
}

func TestExamResultsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/students", `{"full_name":"Kiran","class_id":1}`)

	rr := do(t, srv, http.MethodPost, "/students/1/results", `{"math":90,"science":80,"english":70,"hindi":60,"sst":50}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("save result code=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decode[examJSON](t, rr)
	if res.ExamName != "Annual" || res.Total != 350 || res.Percentage != 70 || res.Grade != "A" {
		t.Fatalf("unexpected result: %+v", res)
	}

	rr = do(t, srv, http.MethodPost, "/students/1/results", `{"math":190,"science":80,"english":70,"hindi":60,"sst":50}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("out of range marks code=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/students/1/results", "")
	if list := decode[[]examJSON](t, rr); len(list) != 1 {
		t.Fatalf("unexpected results: %+v", list)
	}
}

type downService struct{ Service }

func (downService) Ready(context.Context) error {
	return core.NewPersistenceError("ping", errors.New("database is locked"))
}

func TestReadyReportsStorageFailure(t *testing.T) {
	srv := NewServer(":0", downService{}, Options{})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	store := memory.New(core.Class{Name: "Class 1"})
	svc := services.NewFeeService(store, nil, nil)
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 2})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := do(t, srv, http.MethodPost, "/classes", `{"class_name":"Class X`+string(rune('a'+i))+`"}`)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}
	// reads are not limited
	if rr := do(t, srv, http.MethodGet, "/classes", ""); rr.Code != http.StatusOK {
		t.Fatalf("read after limit code=%d", rr.Code)
	}
}

func TestFormEncodedBodies(t *testing.T) {
	srv := newTestServer(t)

	post := func(path, form string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	rr := post("/students", "full_name=Meena+Devi&class_id=1&mobile=9876543210")
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = post("/students/1/payments", "amount=1000.50&payment_month=apr&remarks=cash")
	if rr.Code != http.StatusCreated {
		t.Fatalf("payment status=%d body=%s", rr.Code, rr.Body.String())
	}
	pay := decode[paymentJSON](t, rr)
	if pay.Transaction.Amount.Paise != 100050 || pay.Transaction.Month != "April" || pay.Transaction.Remarks != "cash" {
		t.Fatalf("unexpected transaction: %+v", pay.Transaction)
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/students?q=<script>", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

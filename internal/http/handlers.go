package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"requests":       s.tracer.TotalRequests(),
		"rate_limited":   s.limiter.Hits(),
		"suspicious":     s.detector.SuspiciousRequests(),
		"active_clients": s.limiter.ActiveClients(),
	})
}

// handleReady reports 503 while storage does not answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.svc.Ready(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "storage": err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready", "storage": "ok"})
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, ok := s.classCache.Get(classesCacheKey)
	if !ok {
		var err error
		classes, err = s.svc.ListClasses(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.classCache.Set(classesCacheKey, classes)
	}

	out := make([]classJSON, 0, len(classes))
	for _, c := range classes {
		out = append(out, toClass(c))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	c, err := s.validator.bindClass(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.CreateClass(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.classCache.Delete(classesCacheKey)
	writeJSON(w, r, http.StatusCreated, toClass(created))
}

func (s *Server) handleEnrollStudent(w http.ResponseWriter, r *http.Request) {
	ns, err := s.validator.bindStudent(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.EnrollStudent(r.Context(), ns)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toStudent(st))
}

// handleListStudents supports ?class_id= and ?status=active|left.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f core.StudentFilter

	if v := q.Get("class_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, core.NewValidationError(core.ErrInvalidClass, core.FieldError{Field: "class_id", Error: "class_id must be a positive number"}))
			return
		}
		f.ClassID = id
	}
	switch status := core.StudentStatus(q.Get("status")); status {
	case "", core.StatusActive, core.StatusLeft:
		f.Status = status
	default:
		writeError(w, r, core.NewValidationError(core.ErrInvalidStudent, core.FieldError{Field: "status", Error: "status must be active or left"}))
		return
	}

	students, err := s.svc.ListStudents(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]studentJSON, 0, len(students))
	for _, st := range students {
		out = append(out, toStudent(st))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toStudent(st))
}

func (s *Server) handleArchiveStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.ArchiveStudent(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.svc.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toStudent(st))
}

func (s *Server) handleSetTotalFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	fee, err := s.validator.bindTotalFee(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetTotalFee(r.Context(), id, fee); err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := s.svc.ComputeBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBalance(bal))
}

func (s *Server) handleFeeCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	card, err := s.svc.FeeCard(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toFeeCard(card))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.svc.ListTransactions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransactions(txs))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := s.svc.ComputeBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBalance(bal))
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.validator.bindPayment(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.RecordPayment(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fields := log.NewFields().WithPayment(res.Transaction.StudentID, res.Transaction.ID, res.Transaction.Month.String(), res.Transaction.Amount.Paise)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Payment accepted", fields.ToSlice()...)

	w.Header().Set("Location", "/transactions/"+strconv.FormatInt(res.Transaction.ID, 10)+"/receipt")
	writeJSON(w, r, http.StatusCreated, toPayment(res))
}

// handleReceipt serves the printable HTML receipt, or plain text with
// ?format=text.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.svc.Receipt(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(doc.Text))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc.HTML))
}

func (s *Server) handleSaveExamResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.validator.bindExamResult(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveExamResult(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toExam(saved))
}

func (s *Server) handleListExamResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := s.svc.ListExamResults(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]examJSON, 0, len(results))
	for _, res := range results {
		out = append(out, toExam(res))
	}
	writeJSON(w, r, http.StatusOK, out)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"terrana/internal/backend"
	"terrana/internal/metrics"
	"terrana/internal/models"
	"terrana/internal/payment"
	"terrana/internal/session"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGrid(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("grid")

	facilityID, ok := pathID(w, r)
	if !ok {
		return
	}

	grid, err := s.engine.Grid(r.Context(), facilityID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "availability fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("refresh")

	facilityID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.engine.ForceRefresh(r.Context(), facilityID); err != nil {
		writeError(w, http.StatusBadGateway, "availability fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *HTTPServer) handleQuota(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("quota")

	tracker := s.engine.Quota()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    tracker.CurrentCount(),
		"at_limit": tracker.IsAtLimit(),
	})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_create")

	var body models.Actor
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess := s.engine.CreateSession(body)
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID,
		"state":      sess.State(),
	})
}

func (s *HTTPServer) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(),
		"notices":    sess.Notices(),
	}
	if reason := sess.FailReason(); reason != "" {
		resp["fail_reason"] = reason
	}
	if sess.State() == session.StatePending {
		resp["pay_on_site_within_seconds"] = int(sess.PendingRemaining().Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		models.SlotKey
		Price float64 `json:"price"` // major units, e.g. Facility.HourlyPrice
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := sess.Select(body.SlotKey, models.FromMajor(body.Price, s.currency)); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": sess.State()})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := sess.Confirm(body.Name, body.Email, body.Phone); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": sess.State()})
}

func (s *HTTPServer) handleSubmitCash(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("submit_cash")

	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.SubmitCash(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":                      sess.State(),
		"result":                     sess.Result(),
		"pay_on_site_within_seconds": int(sess.PendingRemaining().Seconds()),
	})
}

func (s *HTTPServer) handleSubmitOnline(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("submit_online")

	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Card struct {
			Number   string `json:"number"`
			ExpMonth int64  `json:"exp_month"`
			ExpYear  int64  `json:"exp_year"`
			CVC      string `json:"cvc"`
		} `json:"card"`
		Billing struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"billing"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	card := models.CardDetails{
		Number:   body.Card.Number,
		ExpMonth: body.Card.ExpMonth,
		ExpYear:  body.Card.ExpYear,
		CVC:      body.Card.CVC,
	}
	billing := models.BillingDetails{
		Name:  body.Billing.Name,
		Email: body.Billing.Email,
		Phone: body.Billing.Phone,
	}

	if err := sess.SubmitOnline(r.Context(), card, billing); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   sess.State(),
		"result":  sess.Result(),
		"notices": sess.Notices(),
	})
}

func (s *HTTPServer) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	acked, hasAny := sess.Acknowledge()
	resp := map[string]any{"state": sess.State()}
	if hasAny {
		resp["acknowledged"] = acked
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.Retry(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": sess.State()})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.Cancel(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": sess.State()})
}

func (s *HTTPServer) handleExpireSweep(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("expire_sweep")

	facilityID, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := s.engine.ExpirePendingCash(r.Context(), facilityID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "expire sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.engine.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *HTTPServer) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrQuotaExceeded),
		errors.Is(err, session.ErrMissingSlot),
		errors.Is(err, session.ErrGuestDetails):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrChargeInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backend.ErrConflict):
		writeError(w, http.StatusConflict, "slot already reserved")
	case errors.Is(err, payment.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid terrain id")
		return 0, false
	}
	return id, true
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/quality-escalation/internal/directory"
	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/scheduler"
	"github.com/nhle/quality-escalation/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

type runResponse struct {
	Job    string      `json:"job"`
	Result jobs.Result `json:"result"`
	Error  string      `json:"error,omitempty"`
}

type createNotificationRequest struct {
	UserID         string  `json:"user_id" validate:"required"`
	Type           string  `json:"type"`
	Message        string  `json:"message" validate:"required"`
	TargetObjectID *string `json:"target_object_id"`
}

type remindRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Message string `json:"message"`
}

type testMailRequest struct {
	To string `json:"to" validate:"required,email"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.runner.Statuses()})
}

// runJob is the manual trigger. It runs the pass synchronously and answers
// 500 with the aggregate error if any item failed.
func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	res, err := s.runner.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, runResponse{Job: name, Result: res, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, runResponse{Job: name, Result: res})
	}
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.NotificationFilter{
		UserID: q.Get("user_id"),
		Type:   model.NotificationType(q.Get("type")),
	}
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid unread value %q", v))
			return
		}
		filter.UnreadOnly = unread
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown notification type %q", filter.Type))
		return
	}

	list, err := s.notifications.ListNotifications(r.Context(), filter)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) createNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if !s.decode(w, r, &req) {
		return
	}
	typ := model.NotificationType(req.Type)
	if typ == "" {
		typ = model.NotificationGeneric
	}
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown notification type %q", req.Type))
		return
	}

	n, err := s.notifications.CreateNotification(r.Context(), model.Notification{
		UserID:         req.UserID,
		TargetObjectID: req.TargetObjectID,
		Type:           typ,
		Message:        req.Message,
	})
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// markRead acknowledges a notification, which ends its escalation.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notifications.MarkNotificationRead(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	n, err := s.notifications.GetNotification(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) remind(w http.ResponseWriter, r *http.Request) {
	var req remindRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.reminders.Send(r.Context(), req.UserID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case errors.Is(err, jobs.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, err)
	case jobs.IsLookupFailure(err):
		writeError(w, http.StatusBadRequest, err)
	case jobs.IsDispatchFailure(err):
		writeError(w, http.StatusBadGateway, err)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) testMail(w http.ResponseWriter, r *http.Request) {
	var req testMailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.reminders.SendTest(r.Context(), req.To); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "to": req.To})
}

// getUser shows how the directory resolves an id or email, the way the
// jobs see it.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Resolve(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, u)
	case errors.Is(err, directory.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, directory.ErrNoEmail):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.internalError(w, err)
	}
}

// decode reads a JSON body into dst and validates its struct tags. It
// writes a 400 and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("Request failed")
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

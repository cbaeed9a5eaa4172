package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/intelligrade/intelligrade/internal/catalog"
	"github.com/intelligrade/intelligrade/internal/handler/views"
	appI18n "github.com/intelligrade/intelligrade/internal/i18n"
	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/session"
)

// starter is implemented by every session kind.
type starter interface {
	session.Session
	Start(ctx context.Context) error
	Retry(ctx context.Context) error
}

// statusFor maps a session operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrReadOnly),
		errors.Is(err, session.ErrUnanswered),
		errors.Is(err, session.ErrEmptyAnswer),
		errors.Is(err, session.ErrOutOfRange),
		errors.Is(err, session.ErrInvalidState):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// done finishes a session POST: gateway failures are shown on the session
// page, other errors are reported with their status.
func (h *Handler) done(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil && !llm.IsServiceError(err) {
		status := statusFor(err)
		slog.Warn("session operation rejected", "id", id, "path", r.URL.Path, "status", status, "error", err)
		errorPage(w, r, status, err.Error())
		return
	}
	h.redirect(w, r, "/session/"+id)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		h.notFound(w, r)
	}
	return s, ok
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, s starter) {
	h.sessions.Add(s)
	slog.Info("session started", "id", s.ID(), "exam", s.Exam().ID, "kind", s.Kind())
	err := s.Start(r.Context())
	if err != nil {
		slog.Warn("session generation failed", "id", s.ID(), "error", err)
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	qt, ok := model.ParseQuestionType(chi.URLParam(r, "mode"))
	if !ok || !exam.HasType(qt) {
		http.Error(w, "practice mode not offered for this exam", http.StatusBadRequest)
		return
	}

	if qt == model.TypeMCQ {
		h.start(w, r, session.NewPractice(exam, h.gateway, h.recorder))
		return
	}
	fr, err := session.NewFreeResponse(exam, qt, h.gateway, h.recorder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.start(w, r, fr)
}

func (h *Handler) handleStartMock(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	h.start(w, r, session.NewFullExam(exam, catalog.MockGenerator{}, h.recorder))
}

func (h *Handler) handleStartFull(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	var gen session.FullExamGenerator = catalog.MockGenerator{FullLength: true}
	if r.FormValue("source") == "ai" {
		gen = h.gateway
	}
	h.start(w, r, session.NewFullExam(exam, gen, h.recorder))
}

func (h *Handler) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	switch s := s.(type) {
	case *session.Practice:
		render(w, r, http.StatusOK, views.PracticePage(s.Snapshot()))
	case *session.FreeResponse:
		render(w, r, http.StatusOK, views.FreeResponsePage(s.Snapshot()))
	case *session.FullExam:
		render(w, r, http.StatusOK, views.FullExamPage(s.Snapshot()))
	}
}

func (h *Handler) handleSessionJSON(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	var snap any
	switch s := s.(type) {
	case *session.Practice:
		snap = s.Snapshot()
	case *session.FreeResponse:
		snap = s.Snapshot()
	case *session.FullExam:
		snap = s.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": s.Kind(), "session": snap})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode json", "error", err)
	}
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var err error
	switch s := s.(type) {
	case *session.Practice:
		choice, convErr := strconv.Atoi(r.FormValue("choice"))
		if convErr != nil {
			http.Error(w, "invalid choice", http.StatusBadRequest)
			return
		}
		err = s.SelectAnswer(choice)
	case *session.FreeResponse:
		err = s.SetAnswer(r.FormValue("answer"))
	case *session.FullExam:
		if raw := r.FormValue("choice"); raw != "" {
			choice, convErr := strconv.Atoi(raw)
			if convErr != nil {
				http.Error(w, "invalid choice", http.StatusBadRequest)
				return
			}
			err = s.SelectChoice(choice)
		} else {
			err = s.SetText(r.FormValue("text"))
		}
		if err == nil && r.FormValue("then") == "next" {
			err = s.Advance(r.Context())
		}
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var err error
	switch s := s.(type) {
	case *session.Practice:
		err = s.Advance(r.Context())
	case *session.FullExam:
		err = s.Advance(r.Context())
	default:
		err = session.ErrInvalidState
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var err error
	switch s := s.(type) {
	case *session.Practice:
		err = s.Back()
	case *session.FullExam:
		err = s.Back()
	default:
		err = session.ErrInvalidState
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleJump(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	switch s := s.(type) {
	case *session.Practice:
		err = s.Jump(i)
	case *session.FullExam:
		err = s.Jump(i)
	default:
		err = session.ErrInvalidState
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var err error
	switch s := s.(type) {
	case *session.FreeResponse:
		if answer := r.FormValue("answer"); answer != "" {
			err = s.SetAnswer(answer)
		}
		if err == nil {
			err = s.Submit(r.Context())
		}
	case *session.FullExam:
		err = s.Submit(r.Context())
	default:
		err = session.ErrInvalidState
	}
	h.done(w, r, s.ID(), err)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, ok := s.(starter)
	if !ok {
		http.Error(w, session.ErrInvalidState.Error(), http.StatusBadRequest)
		return
	}
	h.done(w, r, s.ID(), st.Retry(r.Context()))
}

func (h *Handler) handleExit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.sessions.Get(id)
	h.sessions.Remove(id)
	if !ok {
		h.redirect(w, r, "/exams")
		return
	}
	slog.Info("session closed", "id", id)
	h.redirect(w, r, "/exams/"+s.Exam().ID)
}

// errorPage renders an error page in the request language.
func errorPage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render(w, r, status, views.ErrorPage(appI18n.T(r.Context(), "ErrorTitle"), msg))
}

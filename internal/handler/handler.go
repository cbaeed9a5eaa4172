package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/intelligrade/intelligrade/internal/catalog"
	"github.com/intelligrade/intelligrade/internal/handler/views"
	appI18n "github.com/intelligrade/intelligrade/internal/i18n"
	"github.com/intelligrade/intelligrade/internal/metrics"
	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/prefs"
	"github.com/intelligrade/intelligrade/internal/session"
	"github.com/intelligrade/intelligrade/internal/tutor"
)

// Gateway is the AI backend used by practice sessions.
type Gateway interface {
	session.PracticeSetGenerator
	session.FreeResponseGenerator
	session.FullExamGenerator
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	gateway  Gateway
	sessions *session.Registry
	tutors   *tutor.Registry
	prefs    *prefs.Preferences
	recorder session.Recorder
	limiter  *visitorLimiter
	config   model.AppConfig
}

// New creates a new Handler. rec may be nil to skip attempt recording.
func New(gw Gateway, streamer tutor.Streamer, p *prefs.Preferences, rec session.Recorder, cfg model.AppConfig) *Handler {
	h := &Handler{
		gateway:  gw,
		sessions: session.NewRegistry(cfg.IdleTimeout),
		tutors:   tutor.NewRegistry(streamer, cfg.IdleTimeout),
		prefs:    p,
		recorder: rec,
		config:   cfg,
	}
	if cfg.RateLimit > 0 {
		h.limiter = newVisitorLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(metrics.Middleware)
	r.Use(h.themeMiddleware)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/api/session/{id}", h.handleSessionJSON)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleHome)
		r.Get("/exams", h.handleExamList)
		r.Get("/exams/{examID}", h.handleExamDetail)
		r.Post("/theme", h.handleToggleTheme)
		r.Get("/planner", h.handlePlanner)
		r.Post("/planner/{examID}", h.handleAddPlan)
		r.Post("/planner/{examID}/delete", h.handleRemovePlan)

		r.Get("/session/{id}", h.handleSessionPage)
		r.Post("/session/{id}/answer", h.handleAnswer)
		r.Post("/session/{id}/next", h.handleNext)
		r.Post("/session/{id}/back", h.handleBack)
		r.Post("/session/{id}/jump/{index}", h.handleJump)
		r.Post("/session/{id}/exit", h.handleExit)

		r.Get("/tutor", h.handleTutorHome)
		r.Get("/tutor/{id}", h.handleTutorPage)
		r.Post("/tutor/{id}/close", h.handleTutorClose)

		// Routes below create sessions or call the AI gateway.
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/exams/{examID}/mock", h.handleStartMock)
			r.Post("/tutor", h.handleTutorOpen)
			r.Post("/exams/{examID}/practice/{mode}", h.handleStartPractice)
			r.Post("/exams/{examID}/full", h.handleStartFull)
			r.Post("/session/{id}/submit", h.handleSubmit)
			r.Post("/session/{id}/retry", h.handleRetry)
			r.Post("/tutor/{id}/send", h.handleTutorSend)
		})
	})

	// The websocket handshake carries no form body, so it sits outside CSRF.
	r.With(h.rateLimit).Get("/tutor/{id}/ws", h.handleTutorWS)
}

// BasePathMiddleware stores the configured base path in the request context
// so views can build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) themeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithTheme(r.Context(), h.prefs.Theme())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes p with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string) {
	http.Redirect(w, r, h.path(p), http.StatusSeeOther)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	title := appI18n.T(r.Context(), "NotFound")
	render(w, r, http.StatusNotFound, views.ErrorPage(title, r.URL.Path))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.HomePage())
}

func (h *Handler) handleExamList(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	render(w, r, http.StatusOK, views.ExamListPage(q, catalog.Search(q)))
}

func (h *Handler) handleExamDetail(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	render(w, r, http.StatusOK, views.ExamDetailPage(exam, h.prefs.HasPlan(exam.Title)))
}

func (h *Handler) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	theme := h.prefs.ToggleTheme()
	slog.Debug("theme changed", "theme", theme)

	// Return to the page the toggle was pressed on when it is ours.
	if u, err := url.Parse(r.Referer()); err == nil && u.Host == r.Host && u.Path != "" {
		http.Redirect(w, r, u.RequestURI(), http.StatusSeeOther)
		return
	}
	h.redirect(w, r, "/")
}

func (h *Handler) handlePlanner(w http.ResponseWriter, r *http.Request) {
	examIDs := make(map[string]string)
	for _, e := range catalog.All() {
		examIDs[catalog.PlannerID(e.Title)] = e.ID
	}
	render(w, r, http.StatusOK, views.PlannerPage(h.prefs.Plans(), examIDs))
}

func (h *Handler) handleAddPlan(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	plan := h.prefs.AddPlannerItem(exam.Title)
	slog.Info("planner item added", "exam", exam.Title, "id", plan.ID)
	h.redirect(w, r, "/planner")
}

func (h *Handler) handleRemovePlan(w http.ResponseWriter, r *http.Request) {
	exam, ok := catalog.Find(chi.URLParam(r, "examID"))
	if !ok {
		h.notFound(w, r)
		return
	}
	h.prefs.RemovePlannerItem(exam.Title)
	slog.Info("planner item removed", "exam", exam.Title)
	h.redirect(w, r, "/planner")
}

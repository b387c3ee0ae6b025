// Package handler exposes the engine over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/evalhub/internal/auth"
	"github.com/pavelanni/evalhub/internal/engine"
	appI18n "github.com/pavelanni/evalhub/internal/i18n"
	"github.com/pavelanni/evalhub/internal/llm"
	"github.com/pavelanni/evalhub/internal/model"
)

const maxBodyBytes = 1 << 20

// Teachers looks up teacher accounts. *store.Store implements it.
type Teachers interface {
	GetTeacher(ctx context.Context, id string) (*model.Teacher, error)
	GetTeacherByEmail(ctx context.Context, email string) (*model.Teacher, error)
}

// Suggester proposes grades for answers. *llm.Client implements it.
type Suggester interface {
	SuggestFeedback(ctx context.Context, q model.Question, a model.Answer) (llm.Suggestion, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine   *engine.Service
	auth     *auth.Service
	teachers Teachers
	suggest  Suggester
	validate *validator.Validate
}

// New creates a new Handler. suggest may be nil, in which case the
// suggestion route is not registered.
func New(eng *engine.Service, authSvc *auth.Service, teachers Teachers, suggest Suggester) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		engine:   eng,
		auth:     authSvc,
		teachers: teachers,
		suggest:  suggest,
		validate: v,
	}
}

// RouterConfig configures the middleware stack built by Router.
type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Router returns the full HTTP handler: middleware plus all routes.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Language"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/auth/login", h.handleLogin)

	// Exam takers authenticate with the magic token alone.
	r.Get("/assignments/token/{token}", h.handleTokenView)
	r.Post("/assignments/start", h.handleStart)
	r.Post("/assignments/answer", h.handleSaveAnswer)
	r.Post("/assignments/submit", h.handleSubmit)
	r.Post("/assignments/events", h.handleRecordEvent)

	r.Group(func(r chi.Router) {
		r.Use(h.requireTeacher)

		r.Get("/auth/me", h.handleMe)

		r.Get("/assignments", h.handleListAssignments)
		r.Get("/assignments/{assignmentID}", h.handleAssignmentDetail)
		r.Get("/assignments/{assignmentID}/grading", h.handleGradingView)

		r.Post("/exams/import", h.handleImportExam)
		r.Post("/exams/{examID}/assign", h.handleAssignExam)
		r.Get("/exams/{examID}/export", h.handleExportExam)

		r.Post("/students/batch", h.handleBatchStudents)
		r.Post("/students/import", h.handleImportStudents)

		r.Get("/grades", h.handleListGrades)
		r.Patch("/grades/answers/{answerID}", h.handleGradeAnswer)
		r.Post("/grades/assignments/{assignmentID}", h.handleFinalizeGrade)
		if h.suggest != nil {
			r.Post("/grades/answers/{answerID}/suggest", h.handleSuggest)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msgID string, detail string) {
	writeJSON(w, status, errorBody{Error: code, Message: appI18n.T(r.Context(), msgID), Detail: detail})
}

// writeEngineError maps an engine error to its HTTP status. On token routes
// Forbidden is reported as NotFound so the response reveals nothing about
// assignments the caller cannot reach.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error, tokenRoute bool) {
	var stateErr *engine.StateError
	switch {
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "invalid_state",
			Message: appI18n.Td(r.Context(), "ErrInvalidState", map[string]any{"State": string(stateErr.Current)}),
			Detail:  err.Error(),
		})
	case errors.Is(err, engine.ErrNotFound),
		tokenRoute && errors.Is(err, engine.ErrForbidden):
		writeError(w, r, http.StatusNotFound, "not_found", "ErrNotFound", "")
	case errors.Is(err, engine.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "ErrForbidden", "")
	case errors.Is(err, engine.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", "ErrConflict", err.Error())
	case errors.Is(err, engine.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusServiceUnavailable, "timeout", "ErrInternal", "")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal", "")
	}
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "ErrBadJSON", err.Error())
		return false
	}
	return h.check(w, r, dst)
}

// check validates v against its struct tags.
func (h *Handler) check(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "validation",
			Message: appI18n.Td(r.Context(), "ErrValidation", map[string]any{"Field": fe.Field(), "Rule": fe.Tag()}),
			Detail:  verrs.Error(),
		})
		return false
	}
	writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", err.Error())
	return false
}

func teacherID(r *http.Request) string {
	if t := model.TeacherFromContext(r.Context()); t != nil {
		return t.ID
	}
	return ""
}

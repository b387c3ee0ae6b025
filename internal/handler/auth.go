package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/evalhub/internal/auth"
	"github.com/pavelanni/evalhub/internal/model"
)

// requireTeacher is middleware that checks for a valid bearer token and
// puts the teacher into the request context.
func (h *Handler) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized", "")
			return
		}
		claims, err := h.auth.Parse(strings.TrimSpace(raw))
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized", "")
			return
		}

		teacher, err := h.teachers.GetTeacher(r.Context(), claims.Subject)
		if err != nil {
			slog.Error("failed to get teacher", "teacher_id", claims.Subject, "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal", "")
			return
		}
		if teacher == nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized", "")
			return
		}

		ctx := model.ContextWithTeacher(r.Context(), teacher)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Teacher *model.Teacher `json:"teacher"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	teacher, err := h.teachers.GetTeacherByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		slog.Error("failed to get teacher", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal", "")
		return
	}
	if teacher == nil || !auth.CheckPassword(teacher.PasswordHash, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "ErrInvalidCredentials", "")
		return
	}

	tok, err := h.auth.IssueToken(teacher)
	if err != nil {
		slog.Error("failed to issue token", "teacher_id", teacher.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal", "")
		return
	}
	slog.Info("teacher logged in", "teacher_id", teacher.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, Teacher: teacher})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.TeacherFromContext(r.Context()))
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/evalhub/internal/model"
)

// The token is only checked for presence here. Malformed and unknown tokens
// must look the same to the caller, and the engine reports both as NotFound.
type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type saveAnswerRequest struct {
	Token      string `json:"token" validate:"required"`
	QuestionID string `json:"questionId" validate:"required"`
	model.AnswerPayload
}

type eventRequest struct {
	Token     string              `json:"token" validate:"required"`
	EventType string              `json:"eventType" validate:"required,max=100"`
	Severity  model.EventSeverity `json:"severity" validate:"omitempty,oneof=info warning critical"`
	Details   json.RawMessage     `json:"details"`
}

func (h *Handler) handleTokenView(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.ViewByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.engine.Start(r.Context(), req.Token)
	if err != nil {
		h.writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	var req saveAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.engine.SaveAnswer(r.Context(), req.Token, req.QuestionID, req.AnswerPayload)
	if err != nil {
		h.writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.engine.Submit(r.Context(), req.Token)
	if err != nil {
		h.writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.engine.RecordEvent(r.Context(), req.Token, req.EventType, req.Severity, req.Details)
	if err != nil {
		h.writeEngineError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.AssignmentFilter{
		ExamID:    q.Get("examId"),
		StudentID: q.Get("studentId"),
		Status:    model.AssignmentStatus(q.Get("status")),
	}
	list, err := h.engine.ListAssignments(r.Context(), teacherID(r), f)
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleAssignmentDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.AssignmentDetail(r.Context(), teacherID(r), chi.URLParam(r, "assignmentID"))
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleGradingView(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.GradingView(r.Context(), teacherID(r), chi.URLParam(r, "assignmentID"))
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

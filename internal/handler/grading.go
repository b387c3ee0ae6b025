package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/evalhub/internal/engine"
	"github.com/pavelanni/evalhub/internal/model"
)

type finalizeRequest struct {
	AverageScore   float64              `json:"averageScore" validate:"min=2,max=5"`
	FinalGrade     int                  `json:"finalGrade" validate:"min=2,max=5"`
	RoundingMethod model.RoundingMethod `json:"roundingMethod" validate:"required,oneof=floor ceil round"`
}

func (h *Handler) handleListGrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.GradeFilter{
		Career:    q.Get("career"),
		GroupID:   q.Get("groupId"),
		StudentID: q.Get("studentId"),
	}
	list, err := h.engine.ListGrades(r.Context(), teacherID(r), f)
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGradeAnswer applies a patch where an absent field is left alone and
// an explicit null clears it.
func (h *Handler) handleGradeAnswer(w http.ResponseWriter, r *http.Request) {
	var req engine.AnswerGrade
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.engine.GradeAnswer(r.Context(), teacherID(r), chi.URLParam(r, "answerID"), req)
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleFinalizeGrade(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	g, err := h.engine.FinalizeGrade(r.Context(), teacherID(r), chi.URLParam(r, "assignmentID"), engine.FinalGrade{
		AverageScore:   req.AverageScore,
		FinalGrade:     req.FinalGrade,
		RoundingMethod: req.RoundingMethod,
	})
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleSuggest asks the LLM for a grade and feedback. The suggestion is
// returned only; the teacher applies it with the grade answer route.
func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	answer, eq, err := h.engine.AnswerForGrading(r.Context(), teacherID(r), chi.URLParam(r, "answerID"))
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	s, err := h.suggest.SuggestFeedback(r.Context(), eq.Question, answer)
	if err != nil {
		slog.Error("feedback suggestion failed", "answer_id", answer.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, "suggestion_failed", "ErrInternal", "")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

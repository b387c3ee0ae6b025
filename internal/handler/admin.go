package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/evalhub/internal/engine"
	appI18n "github.com/pavelanni/evalhub/internal/i18n"
	"github.com/pavelanni/evalhub/internal/model"
)

const maxUploadBytes = 10 << 20

type assignRequest struct {
	StudentIDs []string `json:"studentIds" validate:"omitempty,max=1000,dive,required"`
	GroupID    string   `json:"groupId"`
}

type assignResponse struct {
	model.AssignResult
	Message string `json:"message"`
}

type batchRequest struct {
	Students []model.StudentInput `json:"students" validate:"required,min=1,max=1000,dive"`
}

type batchResponse struct {
	model.BatchResult
	Message string `json:"message"`
}

type importExamResponse struct {
	Outcome engine.ImportOutcome `json:"outcome"`
	Exam    *model.Exam          `json:"exam,omitempty"`
}

func (h *Handler) handleAssignExam(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.AssignExam(r.Context(), teacherID(r), chi.URLParam(r, "examID"), engine.AssignTargets{
		StudentIDs: req.StudentIDs,
		GroupID:    req.GroupID,
	})
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, assignResponse{
		AssignResult: res,
		Message:      appI18n.Tp(r.Context(), "AssignmentsCreated", len(res.Assignments)),
	})
}

func (h *Handler) handleBatchStudents(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeBatch(w, r, func() (model.BatchResult, error) {
		return h.engine.ImportStudents(r.Context(), teacherID(r), req.Students)
	})
}

// handleImportStudents accepts a multipart CSV roster in the "file" field.
// Every imported student joins the groups named by repeated "groupIds"
// fields.
func (h *Handler) handleImportStudents(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", "file too large or not multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", "no file uploaded")
		return
	}
	defer file.Close()

	groups := struct {
		IDs []string `json:"groupIds" validate:"omitempty,dive,uuid"`
	}{IDs: r.MultipartForm.Value["groupIds"]}
	if !h.check(w, r, &groups) {
		return
	}

	slog.Info("importing student roster", "filename", header.Filename, "teacher_id", teacherID(r))
	h.writeBatch(w, r, func() (model.BatchResult, error) {
		return h.engine.ImportStudentsCSV(r.Context(), teacherID(r), file, groups.IDs)
	})
}

func (h *Handler) writeBatch(w http.ResponseWriter, r *http.Request, run func() (model.BatchResult, error)) {
	res, err := run()
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse{
		BatchResult: res,
		Message:     appI18n.Tp(r.Context(), "StudentsImported", res.Created),
	})
}

// handleImportExam accepts an exam definition as a multipart "file" upload.
// The file name identifies the source, so uploading the same file twice
// does not create a second exam.
func (h *Handler) handleImportExam(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", "file too large or not multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ErrInvalidRequest", "failed to read file")
		return
	}

	exam, outcome, err := h.engine.ImportExam(r.Context(), teacherID(r), header.Filename, data)
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	if outcome != engine.ImportCreated {
		writeJSON(w, http.StatusOK, importExamResponse{Outcome: outcome})
		return
	}
	writeJSON(w, http.StatusCreated, importExamResponse{Outcome: outcome, Exam: &exam})
}

func (h *Handler) handleExportExam(w http.ResponseWriter, r *http.Request) {
	exp, err := h.engine.ExportResults(r.Context(), teacherID(r), chi.URLParam(r, "examID"))
	if err != nil {
		h.writeEngineError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

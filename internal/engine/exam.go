package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/evalhub/internal/model"
)

// ImportOutcome reports what ImportExam did with a definition.
type ImportOutcome string

const (
	ImportCreated   ImportOutcome = "created"
	ImportUnchanged ImportOutcome = "unchanged"
	// ImportChanged means the source was imported before with different
	// content. It is skipped so existing assignments keep their questions.
	ImportChanged ImportOutcome = "changed"
)

// ImportExam creates an exam from an ExamImport JSON document. Each source
// is imported once: the content hash is recorded under the teacher and
// source name, and later imports of the same source are skipped.
func (s *Service) ImportExam(ctx context.Context, teacherID, source string, data []byte) (model.Exam, ImportOutcome, error) {
	key := teacherID + ":" + source
	hash := sha256sum(data)
	stored, err := s.store.GetImportedFileHash(ctx, key)
	if err != nil {
		return model.Exam{}, "", fmt.Errorf("check import status for %s: %w", source, err)
	}
	switch {
	case stored == hash:
		slog.Info("exam definition unchanged, skipping", "source", source)
		return model.Exam{}, ImportUnchanged, nil
	case stored != "":
		slog.Warn("exam definition changed since last import, skipping to avoid breaking existing assignments",
			"source", source)
		return model.Exam{}, ImportChanged, nil
	}

	var in model.ExamImport
	if err := json.Unmarshal(data, &in); err != nil {
		return model.Exam{}, "", invalid("parse %s: %v", source, err)
	}
	if strings.TrimSpace(in.Title) == "" {
		return model.Exam{}, "", invalid("exam title is required")
	}
	if len(in.Questions) == 0 {
		return model.Exam{}, "", invalid("exam has no questions")
	}

	exam := model.Exam{
		ID:              s.newID(),
		TeacherID:       teacherID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		Config:          in.Config,
		CreatedAt:       s.now(),
	}
	questions := make([]model.ExamQuestion, len(in.Questions))
	for i, qi := range in.Questions {
		if qi.Weight <= 0 {
			return model.Exam{}, "", invalid("question %d: weight must be positive", i+1)
		}
		q := qi.Question
		q.ID = s.newID()
		q.TeacherID = teacherID
		questions[i] = model.ExamQuestion{Question: q, Order: i + 1, Weight: qi.Weight}
	}

	if err := s.store.CreateExam(ctx, exam, questions); err != nil {
		return model.Exam{}, "", fmt.Errorf("create exam from %s: %w", source, err)
	}
	if err := s.store.SetImportedFileHash(ctx, key, hash); err != nil {
		return exam, ImportCreated, fmt.Errorf("record import for %s: %w", source, err)
	}
	slog.Info("imported exam", "source", source, "exam_id", exam.ID, "questions", len(questions))
	return exam, ImportCreated, nil
}

// ExportResults returns the results of one of the teacher's exams.
func (s *Service) ExportResults(ctx context.Context, teacherID, examID string) (model.ExamExport, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, lookupErr("exam", err)
	}
	if exam.TeacherID != teacherID {
		return model.ExamExport{}, forbidden("exam belongs to another teacher")
	}
	exp, err := s.store.ExportExamResults(ctx, teacherID, examID)
	if err != nil {
		return model.ExamExport{}, lookupErr("exam", err)
	}
	return exp, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

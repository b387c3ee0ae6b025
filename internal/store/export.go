package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/evalhub/internal/model"
)

// ExportExamResults builds export-ready student results for one of the
// teacher's exams. It returns sql.ErrNoRows if the exam does not exist or
// belongs to another teacher.
func (s *Store) ExportExamResults(ctx context.Context, teacherID, examID string) (model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("get exam: %w", err)
	}
	if exam.TeacherID != teacherID {
		return model.ExamExport{}, fmt.Errorf("get exam: %w", sql.ErrNoRows)
	}
	questions, err := s.ExamQuestions(ctx, examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("exam questions: %w", err)
	}

	out := model.ExamExport{
		ExamID:       exam.ID,
		Title:        exam.Title,
		ExportedAt:   time.Now().UTC(),
		NumQuestions: len(questions),
		Results:      []model.StudentResult{},
	}
	for _, q := range questions {
		out.MaxScore += q.Weight
	}

	assignments, err := s.ListAssignments(ctx, teacherID, model.AssignmentFilter{ExamID: examID})
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		student, err := s.GetStudent(ctx, a.StudentID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("get student %s: %w", a.StudentID, err)
		}
		views, err := s.ListAnswerViews(ctx, a.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("answers of %s: %w", a.ID, err)
		}

		answers := make([]model.AnswerResult, 0, len(views))
		for _, v := range views {
			answers = append(answers, model.AnswerResult{
				QuestionID: v.QuestionID,
				Title:      v.QuestionTitle,
				Type:       v.QuestionType,
				Weight:     v.Weight,
				Score:      v.Score,
				Feedback:   v.Feedback,
			})
		}

		res := model.StudentResult{
			StudentID:   student.ID,
			FullName:    student.FullName,
			Email:       student.Email,
			Career:      student.Career,
			Status:      a.Status,
			AssignedAt:  a.AssignedAt,
			StartedAt:   a.StartedAt,
			SubmittedAt: a.SubmittedAt,
			Score:       a.Score,
			Answers:     answers,
		}
		g, err := s.GetGrade(ctx, a.ID)
		switch {
		case err == nil:
			res.Grade = &g
		case !errors.Is(err, sql.ErrNoRows):
			return model.ExamExport{}, fmt.Errorf("grade of %s: %w", a.ID, err)
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

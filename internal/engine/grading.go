package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/evalhub/internal/events"
	"github.com/pavelanni/evalhub/internal/model"
	"github.com/pavelanni/evalhub/internal/store"
)

const (
	MinGrade = model.MinGrade
	MaxGrade = model.MaxGrade
)

// AnswerGrade is a manual grading patch for one answer. Absent fields are
// left unchanged and null ones are cleared.
type AnswerGrade struct {
	Score    model.Option[int]    `json:"score"`
	Feedback model.Option[string] `json:"feedback"`
}

// GradeAnswer applies a teacher's score and feedback to an answer. It does
// not depend on the assignment state; only exam ownership is checked. An
// empty patch only touches the answer's updatedAt.
func (s *Service) GradeAnswer(ctx context.Context, teacherID, answerID string, in AnswerGrade) (model.Answer, error) {
	if v, ok := in.Score.Get(); ok && (v < MinGrade || v > MaxGrade) {
		return model.Answer{}, invalid("score must be between %d and %d", MinGrade, MaxGrade)
	}
	_, owner, err := s.store.GetAnswerOwner(ctx, answerID)
	if err != nil {
		return model.Answer{}, lookupErr("answer", err)
	}
	if owner != teacherID {
		return model.Answer{}, forbidden("answer belongs to another teacher's exam")
	}

	var score model.Option[float64]
	switch {
	case in.Score.IsSet():
		v, _ := in.Score.Get()
		score = model.Some(float64(v))
	case in.Score.IsNull():
		score = model.Null[float64]()
	}
	a, err := s.store.UpdateAnswerGrade(ctx, answerID, score, in.Feedback, s.now())
	if err != nil {
		return model.Answer{}, lookupErr("answer", err)
	}
	return a, nil
}

// FinalGrade is the teacher-authored result of a submitted assignment. The
// rounding method describes how FinalGrade was derived; it is stored as is.
type FinalGrade struct {
	AverageScore   float64              `json:"averageScore"`
	FinalGrade     int                  `json:"finalGrade"`
	RoundingMethod model.RoundingMethod `json:"roundingMethod"`
}

func (g FinalGrade) validate() error {
	if g.AverageScore < MinGrade || g.AverageScore > MaxGrade {
		return invalid("averageScore must be between %d and %d", MinGrade, MaxGrade)
	}
	if g.FinalGrade < MinGrade || g.FinalGrade > MaxGrade {
		return invalid("finalGrade must be between %d and %d", MinGrade, MaxGrade)
	}
	if !g.RoundingMethod.Valid() {
		return invalid("roundingMethod must be one of floor, ceil, round")
	}
	return nil
}

// FinalizeGrade records the final grade of a submitted assignment and moves
// it to graded. Ownership is checked before state, and a graded assignment
// cannot be finalized again.
func (s *Service) FinalizeGrade(ctx context.Context, teacherID, assignmentID string, in FinalGrade) (model.Grade, error) {
	if err := in.validate(); err != nil {
		return model.Grade{}, err
	}
	a, err := s.ownedAssignment(ctx, teacherID, assignmentID)
	if err != nil {
		return model.Grade{}, err
	}
	if a.Status != model.StatusSubmitted {
		return model.Grade{}, &StateError{Op: "grade", Current: a.Status}
	}

	gradedBy := teacherID
	g, err := s.store.FinalizeGrade(ctx, model.Grade{
		ID:             s.newID(),
		AssignmentID:   a.ID,
		AverageScore:   in.AverageScore,
		FinalGrade:     in.FinalGrade,
		RoundingMethod: in.RoundingMethod,
		GradedAt:       s.now(),
		GradedBy:       &gradedBy,
	})
	if errors.Is(err, store.ErrStatusMismatch) {
		return model.Grade{}, s.stateErr(ctx, "grade", a.ID)
	}
	if err != nil {
		return model.Grade{}, fmt.Errorf("finalize grade: %w", err)
	}

	slog.Info("assignment graded", "assignment_id", a.ID, "final_grade", g.FinalGrade, "teacher_id", teacherID)
	s.publish(ctx, events.AssignmentGraded, a.ID, map[string]any{
		"examId": a.ExamID, "studentId": a.StudentID, "finalGrade": g.FinalGrade,
	})
	return g, nil
}

// ListGrades returns the teacher's grades, most recently graded first.
func (s *Service) ListGrades(ctx context.Context, teacherID string, f model.GradeFilter) ([]model.GradeSummary, error) {
	list, err := s.store.ListGrades(ctx, teacherID, f)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	if list == nil {
		list = []model.GradeSummary{}
	}
	return list, nil
}

// AnswerForGrading returns an answer of the teacher's exam together with
// its question, for callers that assist manual grading.
func (s *Service) AnswerForGrading(ctx context.Context, teacherID, answerID string) (model.Answer, model.ExamQuestion, error) {
	a, owner, err := s.store.GetAnswerOwner(ctx, answerID)
	if err != nil {
		return model.Answer{}, model.ExamQuestion{}, lookupErr("answer", err)
	}
	if owner != teacherID {
		return model.Answer{}, model.ExamQuestion{}, forbidden("answer belongs to another teacher's exam")
	}
	asg, err := s.store.GetAssignment(ctx, a.AssignmentID)
	if err != nil {
		return model.Answer{}, model.ExamQuestion{}, lookupErr("assignment", err)
	}
	questions, err := s.store.ExamQuestions(ctx, asg.ExamID)
	if err != nil {
		return model.Answer{}, model.ExamQuestion{}, fmt.Errorf("exam questions: %w", err)
	}
	for _, q := range questions {
		if q.Question.ID == a.QuestionID {
			return a, q, nil
		}
	}
	return model.Answer{}, model.ExamQuestion{}, notFound("question")
}

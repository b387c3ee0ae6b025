package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/evalhub/internal/model"
)

const examJSON = `{
  "title": "Kinematics quiz",
  "durationMinutes": 30,
  "config": {"passingPercentage": 60},
  "questions": [
    {
      "title": "Units",
      "content": "SI unit of acceleration?",
      "questionType": "multiple_choice",
      "typeConfig": {"options": [{"id": "a", "text": "m/s^2", "isCorrect": true}, {"id": "b", "text": "m/s"}]},
      "weight": 2
    },
    {
      "title": "Explain",
      "content": "Explain inertia.",
      "questionType": "open_text"
    }
  ]
}`

func TestImportExamOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	exam, outcome, err := e.svc.ImportExam(ctx, "t1", "kinematics.json", []byte(examJSON))
	if err != nil {
		t.Fatalf("ImportExam: %v", err)
	}
	if outcome != ImportCreated {
		t.Fatalf("outcome = %s, want created", outcome)
	}
	if exam.TeacherID != "t1" || exam.Config.PassingPercentage != 60 {
		t.Errorf("unexpected exam %+v", exam)
	}

	qs, err := e.store.ExamQuestions(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ExamQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	if qs[0].Weight != 2 || qs[1].Weight != 1 {
		t.Errorf("weights = %v, %v; want 2, 1", qs[0].Weight, qs[1].Weight)
	}
	if qs[1].Question.Type != model.QuestionOpenText || qs[1].Order != 2 {
		t.Errorf("unexpected second question %+v", qs[1])
	}

	_, outcome, err = e.svc.ImportExam(ctx, "t1", "kinematics.json", []byte(examJSON))
	if err != nil || outcome != ImportUnchanged {
		t.Errorf("re-import = %s, %v; want unchanged", outcome, err)
	}
	_, outcome, err = e.svc.ImportExam(ctx, "t1", "kinematics.json", []byte(examJSON+"\n"))
	if err != nil || outcome != ImportChanged {
		t.Errorf("changed import = %s, %v; want changed", outcome, err)
	}

	// The same source under another teacher is independent.
	_, outcome, err = e.svc.ImportExam(ctx, "t2", "kinematics.json", []byte(examJSON))
	if err != nil || outcome != ImportCreated {
		t.Errorf("other teacher import = %s, %v; want created", outcome, err)
	}
}

func TestImportExamInvalid(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no title", `{"questions": [{"title": "q", "questionType": "open_text"}]}`},
		{"no questions", `{"title": "Empty"}`},
		{"unknown type", `{"title": "X", "questions": [{"title": "q", "questionType": "essay"}]}`},
		{"zero weight", `{"title": "X", "questions": [{"title": "q", "questionType": "open_text", "weight": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.svc.ImportExam(context.Background(), "t1", tt.name, []byte(tt.data))
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestExportResults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	exam, _, err := e.svc.ImportExam(ctx, "t1", "kinematics.json", []byte(examJSON))
	if err != nil {
		t.Fatalf("ImportExam: %v", err)
	}

	exp, err := e.svc.ExportResults(ctx, "t1", exam.ID)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if exp.ExamID != exam.ID || exp.NumQuestions != 2 || exp.MaxScore != 3 {
		t.Errorf("unexpected export header %+v", exp)
	}

	if _, err := e.svc.ExportResults(ctx, "t2", exam.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign exam: expected ErrForbidden, got %v", err)
	}
	if _, err := e.svc.ExportResults(ctx, "t1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing exam: expected ErrNotFound, got %v", err)
	}
}

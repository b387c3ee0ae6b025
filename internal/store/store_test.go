package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/evalhub/internal/model"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fixture struct {
	teacher  model.Teacher
	student  model.Student
	exam     model.Exam
	mcID     string
	openID   string
	assignID string
}

func ptr[T any](v T) *T { return &v }

// seed creates a teacher, a student, an exam with one multiple choice and
// one open text question, and a pending assignment.
func seed(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		teacher: model.Teacher{ID: "t1", Email: "teacher@example.com", FullName: "Ana Teacher", PasswordHash: "x", CreatedAt: t0},
		student: model.Student{ID: "s1", TeacherID: "t1", FullName: "Sam Student", Email: "sam@example.com", Career: ptr("Physics"), CreatedAt: t0},
		exam: model.Exam{ID: "e1", TeacherID: "t1", Title: "Mechanics", DurationMinutes: 60,
			Config: model.ExamConfig{PassingPercentage: 60, ShowResultsImmediately: true}, CreatedAt: t0},
		mcID:     "q1",
		openID:   "q2",
		assignID: "a1",
	}
	if err := s.CreateTeacher(ctx, f.teacher); err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	if err := s.CreateStudent(ctx, f.student, nil); err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	questions := []model.ExamQuestion{
		{
			Question: model.Question{ID: f.mcID, TeacherID: "t1", Title: "Units", Type: model.QuestionMultipleChoice,
				Config: model.MultipleChoiceConfig{Options: []model.ChoiceOption{
					{ID: "o1", Text: "Newton", IsCorrect: true},
					{ID: "o2", Text: "Joule"},
				}}},
			Order:  1,
			Weight: 2,
		},
		{
			Question: model.Question{ID: f.openID, TeacherID: "t1", Title: "Explain", Type: model.QuestionOpenText, Config: model.OpenTextConfig{}},
			Order:    2,
			Weight:   3,
		},
	}
	if err := s.CreateExam(ctx, f.exam, questions); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	created, err := s.CreateAssignment(ctx, model.Assignment{
		ID: f.assignID, ExamID: f.exam.ID, StudentID: f.student.ID,
		MagicToken: "tok-1", Status: model.StatusPending, AssignedAt: t0,
	})
	if err != nil || !created {
		t.Fatalf("CreateAssignment: created=%v err=%v", created, err)
	}
	return f
}

func TestExamRoundTrip(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	exam, err := s.GetExam(ctx, f.exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Config.PassingPercentage != 60 || !exam.Config.ShowResultsImmediately {
		t.Errorf("exam config not preserved: %+v", exam.Config)
	}

	qs, err := s.ExamQuestions(ctx, f.exam.ID)
	if err != nil {
		t.Fatalf("ExamQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].Question.ID != f.mcID || qs[1].Question.ID != f.openID {
		t.Errorf("unexpected order: %s, %s", qs[0].Question.ID, qs[1].Question.ID)
	}
	cfg, ok := qs[0].Question.Config.(model.MultipleChoiceConfig)
	if !ok {
		t.Fatalf("expected MultipleChoiceConfig, got %T", qs[0].Question.Config)
	}
	if opt, ok := cfg.Option("o1"); !ok || !opt.IsCorrect {
		t.Errorf("expected o1 to be the correct option")
	}

	if _, err := s.GetExam(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestCreateAssignmentIdempotent(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	created, err := s.CreateAssignment(ctx, model.Assignment{
		ID: "a2", ExamID: f.exam.ID, StudentID: f.student.ID,
		MagicToken: "tok-2", Status: model.StatusPending, AssignedAt: t0,
	})
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if created {
		t.Error("expected duplicate (exam, student) to be skipped")
	}

	assigned, err := s.AssignedStudents(ctx, f.exam.ID, []string{f.student.ID, "nobody"})
	if err != nil {
		t.Fatalf("AssignedStudents: %v", err)
	}
	if !assigned[f.student.ID] || assigned["nobody"] {
		t.Errorf("unexpected assigned set %v", assigned)
	}

	a, err := s.GetAssignmentByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetAssignmentByToken: %v", err)
	}
	if a.ID != f.assignID || a.Status != model.StatusPending {
		t.Errorf("unexpected assignment %+v", a)
	}
	if a.StartedAt != nil || a.SubmittedAt != nil || a.Score != nil {
		t.Errorf("expected unset timestamps and score, got %+v", a)
	}
}

func TestTransitionAssignmentConcurrent(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0.Add(time.Minute))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrStatusMismatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one start to win, got %d", wins)
	}

	a, err := s.GetAssignment(ctx, f.assignID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if a.Status != model.StatusInProgress {
		t.Errorf("expected in_progress, got %s", a.Status)
	}
	if a.StartedAt == nil || !a.StartedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected startedAt %v, got %v", t0.Add(time.Minute), a.StartedAt)
	}
}

func TestUpsertAnswer(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	ans := model.Answer{ID: "n1", AssignmentID: f.assignID, QuestionID: f.mcID,
		AnswerPayload: model.AnswerPayload{SelectedOptionID: ptr("o2")}, CreatedAt: t0, UpdatedAt: t0}

	if _, err := s.UpsertAnswer(ctx, ans); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on pending assignment, got %v", err)
	}

	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}
	saved, err := s.UpsertAnswer(ctx, ans)
	if err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	if saved.SelectedOptionID == nil || *saved.SelectedOptionID != "o2" {
		t.Errorf("expected o2, got %v", saved.SelectedOptionID)
	}

	if _, err := s.UpdateAnswerGrade(ctx, saved.ID, model.Some(4.0), model.Some("ok"), t0); err != nil {
		t.Fatalf("UpdateAnswerGrade: %v", err)
	}

	// Re-answering replaces the payload and clears score and feedback.
	again := ans
	again.ID = "n2"
	again.AnswerPayload = model.AnswerPayload{SelectedOptionID: ptr("o1")}
	again.UpdatedAt = t0.Add(time.Minute)
	saved, err = s.UpsertAnswer(ctx, again)
	if err != nil {
		t.Fatalf("UpsertAnswer again: %v", err)
	}
	if saved.ID != "n1" {
		t.Errorf("expected the existing row n1 to be reused, got %s", saved.ID)
	}
	if saved.Score != nil || saved.Feedback != nil {
		t.Errorf("expected score and feedback cleared, got %v %v", saved.Score, saved.Feedback)
	}
	if *saved.SelectedOptionID != "o1" {
		t.Errorf("expected o1, got %s", *saved.SelectedOptionID)
	}

	point := model.AnswerPayload{AnswerPoint: &model.Point{X: 1.5, Y: -2, Label: "p"}}
	saved, err = s.UpsertAnswer(ctx, model.Answer{ID: "n3", AssignmentID: f.assignID, QuestionID: f.openID,
		AnswerPayload: point, CreatedAt: t0, UpdatedAt: t0})
	if err != nil {
		t.Fatalf("UpsertAnswer point: %v", err)
	}
	if saved.AnswerPoint == nil || *saved.AnswerPoint != *point.AnswerPoint {
		t.Errorf("expected point %+v, got %+v", point.AnswerPoint, saved.AnswerPoint)
	}

	list, err := s.ListAnswers(ctx, f.assignID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(list))
	}
	if list[0].QuestionID != f.mcID {
		t.Errorf("expected answers in question order, got %s first", list[0].QuestionID)
	}
}

func TestUpsertAnswerConcurrentSameQuestion(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opt := "o1"
			if i%2 == 1 {
				opt = "o2"
			}
			_, err := s.UpsertAnswer(ctx, model.Answer{ID: fmt.Sprintf("n%d", i), AssignmentID: f.assignID, QuestionID: f.mcID,
				AnswerPayload: model.AnswerPayload{SelectedOptionID: &opt}, CreatedAt: t0, UpdatedAt: t0})
			if err != nil {
				t.Errorf("UpsertAnswer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	list, err := s.ListAnswers(ctx, f.assignID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one answer row, got %d", len(list))
	}
}

func scoreFirstCorrect(questions []model.ExamQuestion, answers []model.Answer) (float64, map[string]float64) {
	scores := make(map[string]float64)
	for _, a := range answers {
		scores[a.ID] = 2
	}
	return 40, scores
}

func TestSubmitAssignment(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	if _, err := s.SubmitAssignment(ctx, f.assignID, t0, scoreFirstCorrect); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch submitting pending, got %v", err)
	}
	if _, err := s.SubmitAssignment(ctx, "missing", t0, scoreFirstCorrect); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown assignment, got %v", err)
	}

	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}
	if _, err := s.UpsertAnswer(ctx, model.Answer{ID: "n1", AssignmentID: f.assignID, QuestionID: f.mcID,
		AnswerPayload: model.AnswerPayload{SelectedOptionID: ptr("o1")}, CreatedAt: t0, UpdatedAt: t0}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	var gotQuestions int
	a, err := s.SubmitAssignment(ctx, f.assignID, t0.Add(time.Hour), func(qs []model.ExamQuestion, as []model.Answer) (float64, map[string]float64) {
		gotQuestions = len(qs)
		return scoreFirstCorrect(qs, as)
	})
	if err != nil {
		t.Fatalf("SubmitAssignment: %v", err)
	}
	if gotQuestions != 2 {
		t.Errorf("expected scorer to see 2 questions, got %d", gotQuestions)
	}
	if a.Status != model.StatusSubmitted {
		t.Errorf("expected submitted, got %s", a.Status)
	}
	if a.Score == nil || *a.Score != 40 {
		t.Errorf("expected score 40, got %v", a.Score)
	}
	if a.SubmittedAt == nil || !a.SubmittedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected submittedAt set, got %v", a.SubmittedAt)
	}

	answers, err := s.ListAnswers(ctx, f.assignID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if answers[0].Score == nil || *answers[0].Score != 2 {
		t.Errorf("expected answer score 2, got %v", answers[0].Score)
	}

	if _, err := s.SubmitAssignment(ctx, f.assignID, t0, scoreFirstCorrect); !errors.Is(err, ErrStatusMismatch) {
		t.Errorf("expected second submit to fail with ErrStatusMismatch, got %v", err)
	}
}

// newFileStore opens a sqlite store backed by a file, so its data outlives
// a connection dropped by a cancelled transaction.
func newFileStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "evalhub.db"))
	if err != nil {
		t.Fatalf("newFileStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubmitAssignmentRollsBack(t *testing.T) {
	s := newFileStore(t)
	f := seed(t, s)
	ctx := context.Background()

	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}
	if _, err := s.UpsertAnswer(ctx, model.Answer{ID: "n1", AssignmentID: f.assignID, QuestionID: f.mcID,
		AnswerPayload: model.AnswerPayload{SelectedOptionID: ptr("o1")}, CreatedAt: t0, UpdatedAt: t0}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	// The context dies after scoring, before any score is written.
	submitCtx, cancel := context.WithCancel(ctx)
	_, err := s.SubmitAssignment(submitCtx, f.assignID, t0.Add(time.Hour), func(qs []model.ExamQuestion, as []model.Answer) (float64, map[string]float64) {
		cancel()
		return scoreFirstCorrect(qs, as)
	})
	if err == nil {
		t.Fatal("expected SubmitAssignment to fail after cancel")
	}

	a, err := s.GetAssignment(ctx, f.assignID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if a.Status != model.StatusInProgress || a.Score != nil || a.SubmittedAt != nil {
		t.Errorf("expected untouched in_progress assignment, got status=%s score=%v submittedAt=%v", a.Status, a.Score, a.SubmittedAt)
	}
	answers, err := s.ListAnswers(ctx, f.assignID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 || answers[0].Score != nil {
		t.Errorf("expected unscored answer, got %+v", answers)
	}

	// The assignment can still be submitted afterwards.
	if _, err := s.SubmitAssignment(ctx, f.assignID, t0.Add(time.Hour), scoreFirstCorrect); err != nil {
		t.Errorf("SubmitAssignment after rollback: %v", err)
	}
}

func TestUpdateAnswerGradeOptions(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}
	saved, err := s.UpsertAnswer(ctx, model.Answer{ID: "n1", AssignmentID: f.assignID, QuestionID: f.openID,
		AnswerPayload: model.AnswerPayload{AnswerText: ptr("because")}, CreatedAt: t0, UpdatedAt: t0})
	if err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	got, err := s.UpdateAnswerGrade(ctx, saved.ID, model.Some(5.0), model.Some("great"), t0)
	if err != nil {
		t.Fatalf("UpdateAnswerGrade: %v", err)
	}
	if *got.Score != 5 || *got.Feedback != "great" {
		t.Fatalf("unexpected grade %v %v", got.Score, got.Feedback)
	}

	// Absent feedback is untouched, null score is cleared.
	got, err = s.UpdateAnswerGrade(ctx, saved.ID, model.Null[float64](), model.Option[string]{}, t0)
	if err != nil {
		t.Fatalf("UpdateAnswerGrade: %v", err)
	}
	if got.Score != nil {
		t.Errorf("expected score cleared, got %v", *got.Score)
	}
	if got.Feedback == nil || *got.Feedback != "great" {
		t.Errorf("expected feedback kept, got %v", got.Feedback)
	}

	_, owner, err := s.GetAnswerOwner(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetAnswerOwner: %v", err)
	}
	if owner != f.teacher.ID {
		t.Errorf("expected owner %s, got %s", f.teacher.ID, owner)
	}

	if _, err := s.UpdateAnswerGrade(ctx, "missing", model.Some(3.0), model.Option[string]{}, t0); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func submit(t *testing.T, s *Store, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.TransitionAssignment(ctx, id, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}
	if _, err := s.SubmitAssignment(ctx, id, t0, func([]model.ExamQuestion, []model.Answer) (float64, map[string]float64) {
		return 75, nil
	}); err != nil {
		t.Fatalf("SubmitAssignment: %v", err)
	}
}

func TestFinalizeGrade(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	g := model.Grade{ID: "g1", AssignmentID: f.assignID, AverageScore: 4.4, FinalGrade: 4,
		RoundingMethod: model.RoundingFloor, GradedAt: t0, GradedBy: ptr(f.teacher.ID)}
	if _, err := s.FinalizeGrade(ctx, g); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on pending, got %v", err)
	}
	if _, err := s.GetGrade(ctx, f.assignID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected no grade after failed finalize, got %v", err)
	}

	submit(t, s, f.assignID)
	saved, err := s.FinalizeGrade(ctx, g)
	if err != nil {
		t.Fatalf("FinalizeGrade: %v", err)
	}
	if saved.FinalGrade != 4 || saved.RoundingMethod != model.RoundingFloor {
		t.Errorf("unexpected grade %+v", saved)
	}
	a, _ := s.GetAssignment(ctx, f.assignID)
	if a.Status != model.StatusGraded {
		t.Errorf("expected graded, got %s", a.Status)
	}

	regrade := g
	regrade.ID = "g2"
	regrade.FinalGrade = 5
	if _, err := s.FinalizeGrade(ctx, regrade); !errors.Is(err, ErrStatusMismatch) {
		t.Errorf("expected regrade to fail with ErrStatusMismatch, got %v", err)
	}
	kept, err := s.GetGrade(ctx, f.assignID)
	if err != nil {
		t.Fatalf("GetGrade: %v", err)
	}
	if kept.ID != "g1" || kept.FinalGrade != 4 {
		t.Errorf("expected failed regrade to leave grade untouched, got %+v", kept)
	}
}

func TestFinalizeGradeInProgressWritesNothing(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	if _, err := s.TransitionAssignment(ctx, f.assignID, model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}

	g := model.Grade{ID: "g1", AssignmentID: f.assignID, AverageScore: 3, FinalGrade: 3,
		RoundingMethod: model.RoundingRound, GradedAt: t0}
	if _, err := s.FinalizeGrade(ctx, g); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	if _, err := s.GetGrade(ctx, f.assignID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected no grade row, got %v", err)
	}
	a, _ := s.GetAssignment(ctx, f.assignID)
	if a.Status != model.StatusInProgress {
		t.Errorf("expected in_progress, got %s", a.Status)
	}
}

func TestListGrades(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	grp := model.Group{ID: "g-phys", TeacherID: f.teacher.ID, Name: "Physics A", CreatedAt: t0}
	if err := s.CreateGroup(ctx, grp); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := s.AddGroupMember(ctx, grp.ID, f.student.ID); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}
	submit(t, s, f.assignID)
	if _, err := s.FinalizeGrade(ctx, model.Grade{ID: "g1", AssignmentID: f.assignID, AverageScore: 4,
		FinalGrade: 4, RoundingMethod: model.RoundingRound, GradedAt: t0}); err != nil {
		t.Fatalf("FinalizeGrade: %v", err)
	}

	tests := []struct {
		name   string
		filter model.GradeFilter
		want   int
	}{
		{"all", model.GradeFilter{}, 1},
		{"career substring any case", model.GradeFilter{Career: "PHYS"}, 1},
		{"career miss", model.GradeFilter{Career: "chem"}, 0},
		{"group", model.GradeFilter{GroupID: grp.ID}, 1},
		{"other group", model.GradeFilter{GroupID: "nope"}, 0},
		{"student", model.GradeFilter{StudentID: f.student.ID}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListGrades(ctx, f.teacher.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListGrades: %v", err)
			}
			if len(list) != tt.want {
				t.Fatalf("expected %d grades, got %d", tt.want, len(list))
			}
		})
	}

	list, _ := s.ListGrades(ctx, f.teacher.ID, model.GradeFilter{})
	if list[0].Passed == nil || !*list[0].Passed {
		t.Errorf("expected passed with 75%% against 60%% threshold, got %v", list[0].Passed)
	}
	if list[0].ExamTitle != "Mechanics" || list[0].StudentName != "Sam Student" {
		t.Errorf("unexpected joined fields %+v", list[0])
	}

	other, err := s.ListGrades(ctx, "someone-else", model.GradeFilter{})
	if err != nil {
		t.Fatalf("ListGrades: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no grades for another teacher, got %d", len(other))
	}
}

func TestListAssignmentsFilter(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	st2 := model.Student{ID: "s2", TeacherID: f.teacher.ID, FullName: "Bea", Email: "bea@example.com", CreatedAt: t0}
	if err := s.CreateStudent(ctx, st2, nil); err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	if _, err := s.CreateAssignment(ctx, model.Assignment{ID: "a2", ExamID: f.exam.ID, StudentID: st2.ID,
		MagicToken: "tok-2", Status: model.StatusPending, AssignedAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if _, err := s.TransitionAssignment(ctx, "a2", model.StatusPending, model.StatusInProgress, t0); err != nil {
		t.Fatalf("TransitionAssignment: %v", err)
	}

	all, err := s.ListAssignments(ctx, f.teacher.ID, model.AssignmentFilter{})
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a2" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[0].StudentName != "Bea" || all[0].ExamTitle != "Mechanics" {
		t.Errorf("unexpected joined fields %+v", all[0])
	}

	pending, _ := s.ListAssignments(ctx, f.teacher.ID, model.AssignmentFilter{Status: model.StatusPending})
	if len(pending) != 1 || pending[0].ID != f.assignID {
		t.Errorf("expected only a1 pending, got %+v", pending)
	}
	byStudent, _ := s.ListAssignments(ctx, f.teacher.ID, model.AssignmentFilter{StudentID: st2.ID, ExamID: f.exam.ID})
	if len(byStudent) != 1 || byStudent[0].ID != "a2" {
		t.Errorf("expected only a2 for s2, got %+v", byStudent)
	}
}

func TestRoster(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	existing, err := s.ExistingStudentEmails(ctx, f.teacher.ID, []string{"SAM@example.com", "new@example.com"})
	if err != nil {
		t.Fatalf("ExistingStudentEmails: %v", err)
	}
	if !existing["sam@example.com"] || existing["new@example.com"] {
		t.Errorf("unexpected existing set %v", existing)
	}

	grp := model.Group{ID: "g1", TeacherID: f.teacher.ID, Name: "A", CreatedAt: t0}
	if err := s.CreateGroup(ctx, grp); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	st := model.Student{ID: "s2", TeacherID: f.teacher.ID, FullName: "Ana", Email: "ana@example.com", CreatedAt: t0}
	if err := s.CreateStudent(ctx, st, []string{grp.ID}); err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	members, err := s.GroupMembers(ctx, grp.ID)
	if err != nil {
		t.Fatalf("GroupMembers: %v", err)
	}
	if len(members) != 1 || members[0].ID != "s2" {
		t.Errorf("unexpected members %+v", members)
	}

	owned, err := s.OwnedGroups(ctx, f.teacher.ID, []string{grp.ID, "other"})
	if err != nil {
		t.Fatalf("OwnedGroups: %v", err)
	}
	if !owned[grp.ID] || owned["other"] {
		t.Errorf("unexpected owned set %v", owned)
	}

	found, err := s.StudentsByIDs(ctx, "other-teacher", []string{f.student.ID})
	if err != nil {
		t.Fatalf("StudentsByIDs: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected students of other teachers hidden, got %v", found)
	}

	teacher, err := s.GetTeacherByEmail(ctx, f.teacher.Email)
	if err != nil || teacher == nil || teacher.ID != f.teacher.ID {
		t.Fatalf("GetTeacherByEmail: %v %v", teacher, err)
	}
	missing, err := s.GetTeacher(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil teacher, got %v %v", missing, err)
	}
}

func TestLookupsSpanManyValues(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	if err := s.CreateGroup(ctx, model.Group{ID: "g1", TeacherID: f.teacher.ID, Name: "A", CreatedAt: t0}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	// More values than sqlite accepts as parameters in one statement; the
	// real match sits at the end of the list.
	many := func(last string) []string {
		vals := make([]string, 0, 40001)
		for i := range 40000 {
			vals = append(vals, fmt.Sprintf("v%05d", i))
		}
		return append(vals, last)
	}

	existing, err := s.ExistingStudentEmails(ctx, f.teacher.ID, many("SAM@example.com"))
	if err != nil {
		t.Fatalf("ExistingStudentEmails: %v", err)
	}
	if len(existing) != 1 || !existing["sam@example.com"] {
		t.Errorf("unexpected existing set of %d", len(existing))
	}

	assigned, err := s.AssignedStudents(ctx, f.exam.ID, many(f.student.ID))
	if err != nil {
		t.Fatalf("AssignedStudents: %v", err)
	}
	if len(assigned) != 1 || !assigned[f.student.ID] {
		t.Errorf("unexpected assigned set of %d", len(assigned))
	}

	found, err := s.StudentsByIDs(ctx, f.teacher.ID, many(f.student.ID))
	if err != nil {
		t.Fatalf("StudentsByIDs: %v", err)
	}
	if len(found) != 1 || found[f.student.ID].Email != f.student.Email {
		t.Errorf("unexpected students %v", found)
	}

	owned, err := s.OwnedGroups(ctx, f.teacher.ID, many("g1"))
	if err != nil {
		t.Fatalf("OwnedGroups: %v", err)
	}
	if len(owned) != 1 || !owned["g1"] {
		t.Errorf("unexpected owned set of %d", len(owned))
	}
}

func TestCreateStudentDuplicate(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	dup := model.Student{ID: "s9", TeacherID: f.teacher.ID, FullName: "Sam Again", Email: f.student.Email, CreatedAt: t0}
	if err := s.CreateStudent(ctx, dup, nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.GetStudent(ctx, "s9"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected duplicate not stored, got %v", err)
	}

	other := model.Teacher{ID: "t2", Email: "other@example.com", FullName: "Other", PasswordHash: "x", CreatedAt: t0}
	if err := s.CreateTeacher(ctx, other); err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	dup.TeacherID = other.ID
	if err := s.CreateStudent(ctx, dup, nil); err != nil {
		t.Errorf("expected the same email on another roster to be accepted, got %v", err)
	}
}

func TestAssignmentEvents(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	for i, typ := range []string{"tab_switch", "focus_lost"} {
		if err := s.AppendAssignmentEvent(ctx, model.AssignmentEvent{
			ID: fmt.Sprintf("ev%d", i), AssignmentID: f.assignID, EventType: typ,
			Severity: model.SeverityWarning, Details: []byte(`{"n":1}`), Timestamp: t0.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendAssignmentEvent: %v", err)
		}
	}
	events, err := s.ListAssignmentEvents(ctx, f.assignID)
	if err != nil {
		t.Fatalf("ListAssignmentEvents: %v", err)
	}
	if len(events) != 2 || events[0].EventType != "tab_switch" {
		t.Fatalf("unexpected events %+v", events)
	}
	if string(events[0].Details) != `{"n":1}` {
		t.Errorf("expected details preserved, got %s", events[0].Details)
	}

	if err := s.AppendEventLog(ctx, "assignment.started", f.assignID, []byte(`{}`), t0); err != nil {
		t.Fatalf("AppendEventLog: %v", err)
	}
	log, err := s.EventLogSince(ctx, 0, 10)
	if err != nil {
		t.Fatalf("EventLogSince: %v", err)
	}
	if len(log) != 1 || log[0].Type != "assignment.started" || log[0].Key != f.assignID {
		t.Errorf("unexpected log %+v", log)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h, err := s.GetImportedFileHash(ctx, "exam.json")
	if err != nil || h != "" {
		t.Fatalf("expected empty hash, got %q %v", h, err)
	}
	if err := s.SetImportedFileHash(ctx, "exam.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash(ctx, "exam.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	h, _ = s.GetImportedFileHash(ctx, "exam.json")
	if h != "def" {
		t.Errorf("expected def, got %q", h)
	}
}

func TestExportExamResults(t *testing.T) {
	s := newTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	submit(t, s, f.assignID)

	out, err := s.ExportExamResults(ctx, f.teacher.ID, f.exam.ID)
	if err != nil {
		t.Fatalf("ExportExamResults: %v", err)
	}
	if out.NumQuestions != 2 || out.MaxScore != 5 {
		t.Errorf("unexpected totals %d %v", out.NumQuestions, out.MaxScore)
	}
	if len(out.Results) != 1 || out.Results[0].Status != model.StatusSubmitted {
		t.Fatalf("unexpected results %+v", out.Results)
	}
	if out.Results[0].Score == nil || *out.Results[0].Score != 75 {
		t.Errorf("expected score 75, got %v", out.Results[0].Score)
	}

	if _, err := s.ExportExamResults(ctx, "other", f.exam.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for foreign teacher, got %v", err)
	}
}

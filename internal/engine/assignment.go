package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/evalhub/internal/events"
	"github.com/pavelanni/evalhub/internal/model"
	"github.com/pavelanni/evalhub/internal/scoring"
	"github.com/pavelanni/evalhub/internal/store"
	"github.com/pavelanni/evalhub/internal/token"
)

// byToken resolves a magic token. Malformed tokens and unknown tokens both
// yield ErrNotFound; malformed ones never reach the store.
func (s *Service) byToken(ctx context.Context, tok string) (model.Assignment, error) {
	if !token.Valid(tok) {
		return model.Assignment{}, notFound("assignment")
	}
	a, err := s.store.GetAssignmentByToken(ctx, tok)
	if err != nil {
		return model.Assignment{}, lookupErr("assignment", err)
	}
	return a, nil
}

// stateErr builds a StateError naming the assignment's state as it is now.
func (s *Service) stateErr(ctx context.Context, op, id string) error {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return lookupErr("assignment", err)
	}
	return &StateError{Op: op, Current: a.Status}
}

// ViewByToken returns the exam taker's view of an assignment. Answer keys
// are stripped from question configs, and scores are hidden unless the
// exam shows results immediately.
func (s *Service) ViewByToken(ctx context.Context, tok string) (model.TokenView, error) {
	a, err := s.byToken(ctx, tok)
	if err != nil {
		return model.TokenView{}, err
	}
	exam, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return model.TokenView{}, lookupErr("exam", err)
	}
	student, err := s.store.GetStudent(ctx, a.StudentID)
	if err != nil {
		return model.TokenView{}, lookupErr("student", err)
	}
	questions, err := s.store.ExamQuestions(ctx, a.ExamID)
	if err != nil {
		return model.TokenView{}, fmt.Errorf("exam questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return model.TokenView{}, fmt.Errorf("list answers: %w", err)
	}

	showScores := exam.Config.ShowResultsImmediately
	if !showScores {
		a.Score = nil
		for i := range answers {
			answers[i].Score = nil
			answers[i].Feedback = nil
		}
	}

	view := model.TokenView{
		Assignment: a,
		Exam:       exam,
		Student:    model.StudentRef{ID: student.ID, FullName: student.FullName},
		Questions:  make([]model.TokenQuestion, 0, len(questions)),
		Answers:    answers,
	}
	if view.Answers == nil {
		view.Answers = []model.Answer{}
	}
	for _, eq := range questions {
		q := eq.Question
		var cfg any
		if q.Config != nil {
			cfg = q.Config.Public()
		}
		view.Questions = append(view.Questions, model.TokenQuestion{
			ID:           q.ID,
			Title:        q.Title,
			Content:      q.Content,
			QuestionType: q.Type,
			TypeConfig:   cfg,
			Weight:       eq.Weight,
			Order:        eq.Order,
		})
	}
	return view, nil
}

// Start moves a pending assignment to in_progress.
func (s *Service) Start(ctx context.Context, tok string) (model.Assignment, error) {
	a, err := s.byToken(ctx, tok)
	if err != nil {
		return model.Assignment{}, err
	}
	started, err := s.store.TransitionAssignment(ctx, a.ID, model.StatusPending, model.StatusInProgress, s.now())
	if errors.Is(err, store.ErrStatusMismatch) {
		return model.Assignment{}, s.stateErr(ctx, "start", a.ID)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("start assignment: %w", err)
	}
	slog.Info("assignment started", "assignment_id", a.ID, "exam_id", a.ExamID)
	s.publish(ctx, events.AssignmentStarted, a.ID, map[string]any{"examId": a.ExamID, "studentId": a.StudentID})
	return started, nil
}

// SaveAnswer stores the response to one question of an in-progress
// assignment, replacing any earlier answer to it. The question must belong
// to the assignment's exam and the payload must carry exactly one response
// field fitting the question type.
func (s *Service) SaveAnswer(ctx context.Context, tok, questionID string, p model.AnswerPayload) (model.Answer, error) {
	a, err := s.byToken(ctx, tok)
	if err != nil {
		return model.Answer{}, err
	}
	if a.Status != model.StatusInProgress {
		return model.Answer{}, &StateError{Op: "answer", Current: a.Status}
	}

	questions, err := s.store.ExamQuestions(ctx, a.ExamID)
	if err != nil {
		return model.Answer{}, fmt.Errorf("exam questions: %w", err)
	}
	var q *model.ExamQuestion
	for i := range questions {
		if questions[i].Question.ID == questionID {
			q = &questions[i]
			break
		}
	}
	if q == nil {
		return model.Answer{}, notFound("question")
	}
	if p.Populated() != 1 {
		return model.Answer{}, invalid("exactly one answer field must be set")
	}
	if !q.Question.Type.Accepts(p) {
		return model.Answer{}, invalid("answer does not fit question type %s", q.Question.Type)
	}

	now := s.now()
	saved, err := s.store.UpsertAnswer(ctx, model.Answer{
		ID:            s.newID(),
		AssignmentID:  a.ID,
		QuestionID:    questionID,
		AnswerPayload: p,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, store.ErrStatusMismatch) {
		return model.Answer{}, s.stateErr(ctx, "answer", a.ID)
	}
	if err != nil {
		return model.Answer{}, fmt.Errorf("save answer: %w", err)
	}
	return saved, nil
}

// Submit scores the assignment's answers and moves it to submitted.
// Scoring, per-answer scores and the state change commit together.
func (s *Service) Submit(ctx context.Context, tok string) (model.Assignment, error) {
	a, err := s.byToken(ctx, tok)
	if err != nil {
		return model.Assignment{}, err
	}
	submitted, err := s.store.SubmitAssignment(ctx, a.ID, s.now(), func(qs []model.ExamQuestion, as []model.Answer) (float64, map[string]float64) {
		res := scoring.Score(qs, as)
		return res.Percentage, res.AnswerScores
	})
	if errors.Is(err, store.ErrStatusMismatch) {
		return model.Assignment{}, s.stateErr(ctx, "submit", a.ID)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("submit assignment: %w", err)
	}

	var score float64
	if submitted.Score != nil {
		score = *submitted.Score
	}
	slog.Info("assignment submitted", "assignment_id", a.ID, "score", score)
	s.publish(ctx, events.AssignmentSubmitted, a.ID, map[string]any{"examId": a.ExamID, "studentId": a.StudentID, "score": score})
	return submitted, nil
}

// RecordEvent appends a proctoring event to an in-progress assignment.
func (s *Service) RecordEvent(ctx context.Context, tok, eventType string, severity model.EventSeverity, details json.RawMessage) (model.AssignmentEvent, error) {
	a, err := s.byToken(ctx, tok)
	if err != nil {
		return model.AssignmentEvent{}, err
	}
	if eventType == "" {
		return model.AssignmentEvent{}, invalid("eventType is required")
	}
	switch severity {
	case "":
		severity = model.SeverityInfo
	case model.SeverityInfo, model.SeverityWarning, model.SeverityCritical:
	default:
		return model.AssignmentEvent{}, invalid("unknown severity %q", severity)
	}
	if len(details) > 0 && !json.Valid(details) {
		return model.AssignmentEvent{}, invalid("details must be valid JSON")
	}
	if a.Status != model.StatusInProgress {
		return model.AssignmentEvent{}, &StateError{Op: "record events for", Current: a.Status}
	}

	e := model.AssignmentEvent{
		ID:           s.newID(),
		AssignmentID: a.ID,
		EventType:    eventType,
		Severity:     severity,
		Details:      details,
		Timestamp:    s.now(),
	}
	if err := s.store.AppendAssignmentEvent(ctx, e); err != nil {
		return model.AssignmentEvent{}, fmt.Errorf("record event: %w", err)
	}
	if severity == model.SeverityCritical {
		slog.Warn("critical assignment event", "assignment_id", a.ID, "event_type", eventType)
	}
	return e, nil
}

// ownedAssignment loads an assignment and checks the teacher owns its exam.
func (s *Service) ownedAssignment(ctx context.Context, teacherID, id string) (model.Assignment, error) {
	a, owner, err := s.store.GetAssignmentOwner(ctx, id)
	if err != nil {
		return model.Assignment{}, lookupErr("assignment", err)
	}
	if owner != teacherID {
		return model.Assignment{}, forbidden("assignment belongs to another teacher's exam")
	}
	return a, nil
}

// ListAssignments returns the teacher's assignments, newest first.
func (s *Service) ListAssignments(ctx context.Context, teacherID string, f model.AssignmentFilter) ([]model.AssignmentSummary, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("unknown status %q", f.Status)
	}
	list, err := s.store.ListAssignments(ctx, teacherID, f)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if list == nil {
		list = []model.AssignmentSummary{}
	}
	return list, nil
}

// AssignmentDetail returns one of the teacher's assignments with its exam,
// student, answers and grade.
func (s *Service) AssignmentDetail(ctx context.Context, teacherID, id string) (model.AssignmentDetail, error) {
	a, err := s.ownedAssignment(ctx, teacherID, id)
	if err != nil {
		return model.AssignmentDetail{}, err
	}
	exam, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return model.AssignmentDetail{}, lookupErr("exam", err)
	}
	student, err := s.store.GetStudent(ctx, a.StudentID)
	if err != nil {
		return model.AssignmentDetail{}, lookupErr("student", err)
	}
	answers, err := s.store.ListAnswerViews(ctx, a.ID)
	if err != nil {
		return model.AssignmentDetail{}, fmt.Errorf("list answers: %w", err)
	}
	if answers == nil {
		answers = []model.AnswerView{}
	}
	grade, err := s.grade(ctx, a.ID)
	if err != nil {
		return model.AssignmentDetail{}, err
	}
	return model.AssignmentDetail{Assignment: a, Exam: exam, Student: student, Answers: answers, Grade: grade}, nil
}

// GradingView returns everything needed to grade an assignment: questions
// with their answer keys, each paired with the student's answer.
func (s *Service) GradingView(ctx context.Context, teacherID, id string) (model.GradingView, error) {
	a, err := s.ownedAssignment(ctx, teacherID, id)
	if err != nil {
		return model.GradingView{}, err
	}
	exam, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return model.GradingView{}, lookupErr("exam", err)
	}
	student, err := s.store.GetStudent(ctx, a.StudentID)
	if err != nil {
		return model.GradingView{}, lookupErr("student", err)
	}
	questions, err := s.store.ExamQuestions(ctx, a.ExamID)
	if err != nil {
		return model.GradingView{}, fmt.Errorf("exam questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return model.GradingView{}, fmt.Errorf("list answers: %w", err)
	}
	evts, err := s.store.ListAssignmentEvents(ctx, a.ID)
	if err != nil {
		return model.GradingView{}, fmt.Errorf("list events: %w", err)
	}
	grade, err := s.grade(ctx, a.ID)
	if err != nil {
		return model.GradingView{}, err
	}

	byQuestion := make(map[string]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}
	view := model.GradingView{
		Assignment: a,
		Exam:       exam,
		Student:    student,
		Questions:  make([]model.GradingQuestion, 0, len(questions)),
		Answers:    answers,
		Events:     evts,
		Grade:      grade,
	}
	if view.Answers == nil {
		view.Answers = []model.Answer{}
	}
	if view.Events == nil {
		view.Events = []model.AssignmentEvent{}
	}
	for _, eq := range questions {
		q := eq.Question
		view.Questions = append(view.Questions, model.GradingQuestion{
			ID:           q.ID,
			Title:        q.Title,
			Content:      q.Content,
			QuestionType: q.Type,
			TypeConfig:   q.Config,
			Difficulty:   q.Difficulty,
			Weight:       eq.Weight,
			Answer:       byQuestion[q.ID],
		})
	}
	return view, nil
}

// grade returns the assignment's grade, or nil if it has none.
func (s *Service) grade(ctx context.Context, assignmentID string) (*model.Grade, error) {
	g, err := s.store.GetGrade(ctx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grade: %w", err)
	}
	return &g, nil
}

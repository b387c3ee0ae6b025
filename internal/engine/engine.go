// Package engine implements the assignment lifecycle: token access for exam
// takers, answer capture, scoring at submission, manual grading, and the
// batch operations that create assignments and students.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/evalhub/internal/events"
	"github.com/pavelanni/evalhub/internal/model"
	"github.com/pavelanni/evalhub/internal/store"
	"github.com/pavelanni/evalhub/internal/token"
)

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	CreateAssignment(ctx context.Context, a model.Assignment) (bool, error)
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	GetAssignmentByToken(ctx context.Context, token string) (model.Assignment, error)
	GetAssignmentOwner(ctx context.Context, id string) (model.Assignment, string, error)
	ListAssignments(ctx context.Context, teacherID string, f model.AssignmentFilter) ([]model.AssignmentSummary, error)
	AssignedStudents(ctx context.Context, examID string, studentIDs []string) (map[string]bool, error)
	TransitionAssignment(ctx context.Context, id string, from, to model.AssignmentStatus, at time.Time) (model.Assignment, error)
	SubmitAssignment(ctx context.Context, id string, at time.Time, score store.ScoreFunc) (model.Assignment, error)

	UpsertAnswer(ctx context.Context, a model.Answer) (model.Answer, error)
	ListAnswers(ctx context.Context, assignmentID string) ([]model.Answer, error)
	ListAnswerViews(ctx context.Context, assignmentID string) ([]model.AnswerView, error)
	GetAnswerOwner(ctx context.Context, id string) (model.Answer, string, error)
	UpdateAnswerGrade(ctx context.Context, id string, score model.Option[float64], feedback model.Option[string], at time.Time) (model.Answer, error)

	FinalizeGrade(ctx context.Context, g model.Grade) (model.Grade, error)
	GetGrade(ctx context.Context, assignmentID string) (model.Grade, error)
	ListGrades(ctx context.Context, teacherID string, f model.GradeFilter) ([]model.GradeSummary, error)

	CreateExam(ctx context.Context, e model.Exam, questions []model.ExamQuestion) error
	GetExam(ctx context.Context, id string) (model.Exam, error)
	ExamQuestions(ctx context.Context, examID string) ([]model.ExamQuestion, error)
	ExportExamResults(ctx context.Context, teacherID, examID string) (model.ExamExport, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error

	GetStudent(ctx context.Context, id string) (model.Student, error)
	StudentsByIDs(ctx context.Context, teacherID string, ids []string) (map[string]model.Student, error)
	ExistingStudentEmails(ctx context.Context, teacherID string, emails []string) (map[string]bool, error)
	CreateStudent(ctx context.Context, st model.Student, groupIDs []string) error
	GetGroup(ctx context.Context, id string) (model.Group, error)
	OwnedGroups(ctx context.Context, teacherID string, ids []string) (map[string]bool, error)
	GroupMembers(ctx context.Context, groupID string) ([]model.Student, error)

	AppendAssignmentEvent(ctx context.Context, e model.AssignmentEvent) error
	ListAssignmentEvents(ctx context.Context, assignmentID string) ([]model.AssignmentEvent, error)
}

// Notifier receives lifecycle notifications after a change is committed.
type Notifier interface {
	Publish(ctx context.Context, e events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, events.Event) {}

// Service runs engine operations against a Store.
type Service struct {
	store       Store
	tokens      *token.Issuer
	now         func() time.Time
	notify      Notifier
	frontendURL string
	newID       func() string
}

// Option configures a Service.
type Option func(*Service)

// WithTokenIssuer sets the magic token source.
func WithTokenIssuer(iss *token.Issuer) Option {
	return func(s *Service) { s.tokens = iss }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets where lifecycle notifications go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithFrontendURL sets the base URL magic links point to.
func WithFrontendURL(u string) Option {
	return func(s *Service) { s.frontendURL = strings.TrimRight(u, "/") }
}

// WithIDGenerator sets how entity IDs are generated.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// New returns a Service backed by st.
func New(st Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		tokens:      token.NewIssuer(nil),
		now:         func() time.Time { return time.Now().UTC() },
		notify:      nopNotifier{},
		frontendURL: "http://localhost:3000",
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MagicLink returns the exam-taking URL for a token.
func (s *Service) MagicLink(tok string) string {
	return s.frontendURL + "/exam/" + tok
}

func (s *Service) publish(ctx context.Context, typ, key string, data map[string]any) {
	s.notify.Publish(ctx, events.Event{Type: typ, Key: key, Data: data, At: s.now()})
}

package model

import (
	"context"
	"encoding/json"
	"time"
)

// Teacher represents an exam author. Teachers own exams, students and groups.
type Teacher struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type teacherCtxKey struct{}

// ContextWithTeacher stores the authenticated teacher in the request context.
func ContextWithTeacher(ctx context.Context, t *Teacher) context.Context {
	return context.WithValue(ctx, teacherCtxKey{}, t)
}

// TeacherFromContext retrieves the authenticated teacher from context, or nil.
func TeacherFromContext(ctx context.Context) *Teacher {
	t, _ := ctx.Value(teacherCtxKey{}).(*Teacher)
	return t
}

// AssignmentStatus represents the lifecycle state of an assignment.
type AssignmentStatus string

const (
	StatusPending    AssignmentStatus = "pending"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusSubmitted  AssignmentStatus = "submitted"
	StatusGraded     AssignmentStatus = "graded"
)

// Valid reports whether s is one of the known statuses.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSubmitted, StatusGraded:
		return true
	}
	return false
}

// Student represents a roster entry owned by a teacher.
type Student struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacherId"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Year      *string   `json:"year"`
	Career    *string   `json:"career"`
	CreatedAt time.Time `json:"createdAt"`
}

// Group is a named set of students owned by a teacher.
type Group struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacherId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExamConfig holds per-exam presentation and evaluation settings.
type ExamConfig struct {
	ShuffleQuestions       bool    `json:"shuffleQuestions"`
	ShuffleOptions         bool    `json:"shuffleOptions"`
	ShowResultsImmediately bool    `json:"showResultsImmediately"`
	AllowReview            bool    `json:"allowReview"`
	PenaltyPerWrongAnswer  float64 `json:"penaltyPerWrongAnswer"`
	PassingPercentage      float64 `json:"passingPercentage"`
}

// Exam is an exam definition authored by a teacher.
type Exam struct {
	ID              string     `json:"id"`
	TeacherID       string     `json:"teacherId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"durationMinutes"`
	Config          ExamConfig `json:"config"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ExamQuestion is a question attached to an exam at a fixed position with a weight.
type ExamQuestion struct {
	Question Question `json:"question"`
	Order    int      `json:"questionOrder"`
	Weight   float64  `json:"weight"`
}

// Assignment is one student's instance of taking one exam.
type Assignment struct {
	ID          string           `json:"id"`
	ExamID      string           `json:"examId"`
	StudentID   string           `json:"studentId"`
	MagicToken  string           `json:"magicToken"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assignedAt"`
	StartedAt   *time.Time       `json:"startedAt"`
	SubmittedAt *time.Time       `json:"submittedAt"`
	Score       *float64         `json:"score"`
}

// Point is a coordinate on a graph_click question.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// AnswerPayload carries the response fields of a saved answer.
// Exactly one field is expected to be set.
type AnswerPayload struct {
	SelectedOptionID *string  `json:"selectedOptionId"`
	AnswerText       *string  `json:"answerText"`
	AnswerLatex      *string  `json:"answerLatex"`
	AnswerNumeric    *float64 `json:"answerNumeric"`
	AnswerPoint      *Point   `json:"answerPoint"`
}

// Populated returns how many response fields are set.
func (p AnswerPayload) Populated() int {
	n := 0
	if p.SelectedOptionID != nil {
		n++
	}
	if p.AnswerText != nil {
		n++
	}
	if p.AnswerLatex != nil {
		n++
	}
	if p.AnswerNumeric != nil {
		n++
	}
	if p.AnswerPoint != nil {
		n++
	}
	return n
}

// Answer is the stored response to one question of an assignment.
type Answer struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignmentId"`
	QuestionID   string `json:"questionId"`
	AnswerPayload
	Score     *float64  `json:"score"`
	Feedback  *string   `json:"feedback"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoundingMethod records how a teacher rounded the final grade.
type RoundingMethod string

const (
	RoundingFloor RoundingMethod = "floor"
	RoundingCeil  RoundingMethod = "ceil"
	RoundingRound RoundingMethod = "round"
)

// Valid reports whether m is a known rounding method.
func (m RoundingMethod) Valid() bool {
	return m == RoundingFloor || m == RoundingCeil || m == RoundingRound
}

// Grades run from MinGrade (fail) to MaxGrade (excellent).
const (
	MinGrade = 2
	MaxGrade = 5
)

// Grade is the final, teacher-authored result of an assignment.
type Grade struct {
	ID             string         `json:"id"`
	AssignmentID   string         `json:"assignmentId"`
	AverageScore   float64        `json:"averageScore"`
	FinalGrade     int            `json:"finalGrade"`
	RoundingMethod RoundingMethod `json:"roundingMethod"`
	GradedAt       time.Time      `json:"gradedAt"`
	GradedBy       *string        `json:"gradedBy"`
}

// EventSeverity classifies assignment events.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// AssignmentEvent is a proctoring record reported while an exam is taken.
type AssignmentEvent struct {
	ID           string          `json:"id"`
	AssignmentID string          `json:"assignmentId"`
	EventType    string          `json:"eventType"`
	Severity     EventSeverity   `json:"severity"`
	Details      json.RawMessage `json:"details,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// StudentInput is one row of a batch student import.
type StudentInput struct {
	FullName string   `json:"fullName" validate:"required,max=200"`
	Email    string   `json:"email" validate:"required,email"`
	Year     *string  `json:"year,omitempty"`
	Career   *string  `json:"career,omitempty"`
	GroupIDs []string `json:"groupIds,omitempty" validate:"omitempty,dive,uuid"`
}

// RowError describes a failed row of a batch import. Row is 1-based.
type RowError struct {
	Row      int    `json:"row"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Error    string `json:"error"`
}

// BatchResult is the aggregate outcome of a batch import.
type BatchResult struct {
	Created    int        `json:"created"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors"`
	CreatedIDs []string   `json:"createdIds"`
}

// AssignedStudent describes one assignment created by AssignExam.
type AssignedStudent struct {
	AssignmentID string `json:"assignmentId"`
	StudentID    string `json:"studentId"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	MagicToken   string `json:"magicToken"`
	MagicLink    string `json:"magicLink"`
}

// AssignResult is the outcome of assigning an exam to many students.
type AssignResult struct {
	ExamID       string            `json:"examId"`
	Assignments  []AssignedStudent `json:"assignments"`
	SkippedCount int               `json:"skippedCount"`
}

// AssignmentFilter narrows assignment listings. Empty fields do not filter.
type AssignmentFilter struct {
	ExamID    string
	StudentID string
	Status    AssignmentStatus
}

// GradeFilter narrows grade listings. Empty fields do not filter.
type GradeFilter struct {
	Career    string
	GroupID   string
	StudentID string
}

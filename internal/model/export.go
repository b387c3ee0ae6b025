package model

import (
	"encoding/json"
	"time"
)

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID       string          `json:"exam_id"`
	Title        string          `json:"title"`
	ExportedAt   time.Time       `json:"exported_at"`
	NumQuestions int             `json:"num_questions"`
	MaxScore     float64         `json:"max_score"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one student's assignment data for export.
type StudentResult struct {
	StudentID   string           `json:"student_id"`
	FullName    string           `json:"full_name"`
	Email       string           `json:"email"`
	Career      *string          `json:"career,omitempty"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Answers     []AnswerResult   `json:"answers"`
	Grade       *Grade           `json:"grade,omitempty"`
}

// AnswerResult holds per-question data for export.
type AnswerResult struct {
	QuestionID string       `json:"question_id"`
	Title      string       `json:"title"`
	Type       QuestionType `json:"type"`
	Weight     float64      `json:"weight"`
	Score      *float64     `json:"score,omitempty"`
	Feedback   *string      `json:"feedback,omitempty"`
}

// ExamImport is the JSON format accepted by exam definition import.
type ExamImport struct {
	TeacherEmail    string           `json:"teacherEmail"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	DurationMinutes int              `json:"durationMinutes"`
	Config          ExamConfig       `json:"config"`
	Questions       []QuestionImport `json:"questions"`
}

// QuestionImport is one question of an ExamImport, in exam order.
type QuestionImport struct {
	Question
	Weight float64 `json:"weight"`
}

// UnmarshalJSON decodes the embedded question and defaults weight to 1.
func (qi *QuestionImport) UnmarshalJSON(data []byte) error {
	if err := qi.Question.UnmarshalJSON(data); err != nil {
		return err
	}
	var w struct {
		Weight *float64 `json:"weight"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	qi.Weight = 1
	if w.Weight != nil {
		qi.Weight = *w.Weight
	}
	return nil
}

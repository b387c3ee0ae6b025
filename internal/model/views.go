package model

// StudentRef is the minimal student identity shown to exam takers.
type StudentRef struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// AssignmentSummary is one row of the teacher's assignment list.
type AssignmentSummary struct {
	Assignment
	ExamTitle    string `json:"examTitle"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
}

// AnswerView is an answer with the question fields needed to read it.
type AnswerView struct {
	Answer
	QuestionTitle string       `json:"questionTitle"`
	QuestionType  QuestionType `json:"questionType"`
	Weight        float64      `json:"weight"`
}

// AssignmentDetail is the teacher's view of a single assignment.
type AssignmentDetail struct {
	Assignment Assignment   `json:"assignment"`
	Exam       Exam         `json:"exam"`
	Student    Student      `json:"student"`
	Answers    []AnswerView `json:"answers"`
	Grade      *Grade       `json:"grade"`
}

// GradingQuestion pairs an exam question with the student's answer, if any.
type GradingQuestion struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	QuestionType QuestionType `json:"questionType"`
	TypeConfig   TypeConfig   `json:"typeConfig"`
	Difficulty   string       `json:"difficulty"`
	Weight       float64      `json:"weight"`
	Answer       *Answer      `json:"answer"`
}

// GradingView is everything a teacher needs to grade an assignment.
type GradingView struct {
	Assignment Assignment        `json:"assignment"`
	Exam       Exam              `json:"exam"`
	Student    Student           `json:"student"`
	Questions  []GradingQuestion `json:"questions"`
	Answers    []Answer          `json:"answers"`
	Events     []AssignmentEvent `json:"events"`
	Grade      *Grade            `json:"grade"`
}

// TokenQuestion is a question as shown to the exam taker.
type TokenQuestion struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	QuestionType QuestionType `json:"questionType"`
	TypeConfig   any          `json:"typeConfig"`
	Weight       float64      `json:"weight"`
	Order        int          `json:"questionOrder"`
}

// TokenView is the exam taker's view of an assignment. Answer keys are
// stripped, and the score is only present when the exam shows results
// immediately.
type TokenView struct {
	Assignment Assignment      `json:"assignment"`
	Exam       Exam            `json:"exam"`
	Student    StudentRef      `json:"student"`
	Questions  []TokenQuestion `json:"questions"`
	Answers    []Answer        `json:"answers"`
}

// GradeSummary is one row of the teacher's grade list.
type GradeSummary struct {
	Grade
	ExamID          string   `json:"examId"`
	ExamTitle       string   `json:"examTitle"`
	StudentID       string   `json:"studentId"`
	StudentName     string   `json:"studentName"`
	StudentEmail    string   `json:"studentEmail"`
	Career          *string  `json:"career"`
	AssignmentScore *float64 `json:"assignmentScore"`
	Passed          *bool    `json:"passed"`
}

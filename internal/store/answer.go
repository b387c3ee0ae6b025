package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/evalhub/internal/model"
)

const answerColumns = `an.id, an.assignment_id, an.question_id, an.selected_option_id, an.answer_text,
	an.answer_latex, an.answer_numeric, an.answer_point, an.score, an.feedback, an.created_at, an.updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanAnswer(row rowScanner, extra ...any) (model.Answer, error) {
	var (
		a     model.Answer
		point sql.NullString
	)
	dest := append([]any{
		&a.ID, &a.AssignmentID, &a.QuestionID, &a.SelectedOptionID, &a.AnswerText,
		&a.AnswerLatex, &a.AnswerNumeric, &point, &a.Score, &a.Feedback, &a.CreatedAt, &a.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return a, err
	}
	if point.Valid && point.String != "" {
		var p model.Point
		if err := json.Unmarshal([]byte(point.String), &p); err != nil {
			return a, fmt.Errorf("decode answer point: %w", err)
		}
		a.AnswerPoint = &p
	}
	return a, nil
}

func encodePoint(p *model.Point) (*string, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// UpsertAnswer stores the response to one question of an in-progress
// assignment. An existing answer for the same question is overwritten and
// its score and feedback are cleared. It returns ErrStatusMismatch if the
// assignment is not in progress.
func (s *Store) UpsertAnswer(ctx context.Context, a model.Answer) (model.Answer, error) {
	point, err := encodePoint(a.AnswerPoint)
	if err != nil {
		return model.Answer{}, err
	}
	var saved model.Answer
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockStatus(ctx, tx, a.AssignmentID, model.StatusInProgress); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO answers (id, assignment_id, question_id, selected_option_id, answer_text,
				answer_latex, answer_numeric, answer_point, score, feedback, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, $9, $9)
			 ON CONFLICT (assignment_id, question_id) DO UPDATE SET
				selected_option_id = excluded.selected_option_id,
				answer_text = excluded.answer_text,
				answer_latex = excluded.answer_latex,
				answer_numeric = excluded.answer_numeric,
				answer_point = excluded.answer_point,
				score = NULL,
				feedback = NULL,
				updated_at = excluded.updated_at`,
			a.ID, a.AssignmentID, a.QuestionID, a.SelectedOptionID, a.AnswerText,
			a.AnswerLatex, a.AnswerNumeric, point, a.UpdatedAt,
		)
		if err != nil {
			return err
		}
		saved, err = scanAnswer(tx.QueryRowContext(ctx,
			`SELECT `+answerColumns+` FROM answers an WHERE an.assignment_id = $1 AND an.question_id = $2`,
			a.AssignmentID, a.QuestionID))
		return err
	})
	return saved, err
}

// ListAnswers returns the answers of an assignment in exam question order.
func (s *Store) ListAnswers(ctx context.Context, assignmentID string) ([]model.Answer, error) {
	return listAnswers(ctx, s.db, assignmentID)
}

func listAnswers(ctx context.Context, q querier, assignmentID string) ([]model.Answer, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+answerColumns+`
		 FROM answers an
		 JOIN assignments a ON a.id = an.assignment_id
		 LEFT JOIN exam_questions eq ON eq.exam_id = a.exam_id AND eq.question_id = an.question_id
		 WHERE an.assignment_id = $1
		 ORDER BY eq.question_order, an.created_at`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// ListAnswerViews returns an assignment's answers joined with the question
// title, type and weight.
func (s *Store) ListAnswerViews(ctx context.Context, assignmentID string) ([]model.AnswerView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerColumns+`, q.title, q.question_type, COALESCE(eq.weight, 1)
		 FROM answers an
		 JOIN assignments a ON a.id = an.assignment_id
		 JOIN questions q ON q.id = an.question_id
		 LEFT JOIN exam_questions eq ON eq.exam_id = a.exam_id AND eq.question_id = an.question_id
		 WHERE an.assignment_id = $1
		 ORDER BY eq.question_order, an.created_at`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.AnswerView
	for rows.Next() {
		var v model.AnswerView
		a, err := scanAnswer(rows, &v.QuestionTitle, &v.QuestionType, &v.Weight)
		if err != nil {
			return nil, err
		}
		v.Answer = a
		list = append(list, v)
	}
	return list, rows.Err()
}

// GetAnswerOwner returns an answer together with the ID of the teacher who
// owns the exam it belongs to.
func (s *Store) GetAnswerOwner(ctx context.Context, id string) (model.Answer, string, error) {
	var teacherID string
	a, err := scanAnswer(s.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+`, e.teacher_id
		 FROM answers an
		 JOIN assignments a ON a.id = an.assignment_id
		 JOIN exams e ON e.id = a.exam_id
		 WHERE an.id = $1`, id), &teacherID)
	return a, teacherID, err
}

// UpdateAnswerGrade sets the fields present in score and feedback. Absent
// fields are left untouched and null ones are cleared.
func (s *Store) UpdateAnswerGrade(ctx context.Context, id string, score model.Option[float64], feedback model.Option[string], at time.Time) (model.Answer, error) {
	query := `UPDATE answers SET updated_at = $1`
	args := []any{at}
	if !score.IsAbsent() {
		args = append(args, score.Ptr())
		query += fmt.Sprintf(`, score = $%d`, len(args))
	}
	if !feedback.IsAbsent() {
		args = append(args, feedback.Ptr())
		query += fmt.Sprintf(`, feedback = $%d`, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(` WHERE id = $%d`, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Answer{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Answer{}, err
	}
	if n == 0 {
		return model.Answer{}, sql.ErrNoRows
	}
	return scanAnswer(s.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM answers an WHERE an.id = $1`, id))
}

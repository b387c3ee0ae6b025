package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/evalhub/internal/model"
)

const assignmentColumns = `a.id, a.exam_id, a.student_id, a.magic_token, a.status, a.assigned_at, a.started_at, a.submitted_at, a.score`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner, extra ...any) (model.Assignment, error) {
	var a model.Assignment
	dest := append([]any{&a.ID, &a.ExamID, &a.StudentID, &a.MagicToken, &a.Status, &a.AssignedAt, &a.StartedAt, &a.SubmittedAt, &a.Score}, extra...)
	err := row.Scan(dest...)
	return a, err
}

// CreateAssignment inserts an assignment unless one already exists for the
// same exam and student. It reports whether a row was created.
func (s *Store) CreateAssignment(ctx context.Context, a model.Assignment) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (id, exam_id, student_id, magic_token, status, assigned_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		a.ID, a.ExamID, a.StudentID, a.MagicToken, a.Status, a.AssignedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetAssignment returns an assignment by ID.
func (s *Store) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.id = $1`, id))
}

// GetAssignmentByToken returns the assignment holding the given magic token.
func (s *Store) GetAssignmentByToken(ctx context.Context, token string) (model.Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.magic_token = $1`, token))
}

// GetAssignmentOwner returns an assignment together with the ID of the
// teacher who owns its exam.
func (s *Store) GetAssignmentOwner(ctx context.Context, id string) (model.Assignment, string, error) {
	var teacherID string
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+`, e.teacher_id
		 FROM assignments a JOIN exams e ON e.id = a.exam_id
		 WHERE a.id = $1`, id), &teacherID)
	return a, teacherID, err
}

// ListAssignments returns the teacher's assignments, newest first.
func (s *Store) ListAssignments(ctx context.Context, teacherID string, f model.AssignmentFilter) ([]model.AssignmentSummary, error) {
	query := `SELECT ` + assignmentColumns + `, e.title, st.full_name, st.email
		FROM assignments a
		JOIN exams e ON e.id = a.exam_id
		JOIN students st ON st.id = a.student_id
		WHERE e.teacher_id = $1`
	args := []any{teacherID}
	if f.ExamID != "" {
		args = append(args, f.ExamID)
		query += fmt.Sprintf(` AND a.exam_id = $%d`, len(args))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		query += fmt.Sprintf(` AND a.student_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND a.status = $%d`, len(args))
	}
	query += ` ORDER BY a.assigned_at DESC, a.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.AssignmentSummary
	for rows.Next() {
		var sum model.AssignmentSummary
		a, err := scanAssignment(rows, &sum.ExamTitle, &sum.StudentName, &sum.StudentEmail)
		if err != nil {
			return nil, err
		}
		sum.Assignment = a
		list = append(list, sum)
	}
	return list, rows.Err()
}

// AssignedStudents returns which of the given students already hold an
// assignment for the exam.
func (s *Store) AssignedStudents(ctx context.Context, examID string, studentIDs []string) (map[string]bool, error) {
	assigned := make(map[string]bool)
	if len(studentIDs) == 0 {
		return assigned, nil
	}
	err := s.queryIn(ctx, `SELECT student_id FROM assignments WHERE exam_id = $1 AND student_id IN `, examID, studentIDs,
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			assigned[id] = true
			return nil
		})
	return assigned, err
}

// TransitionAssignment moves an assignment from one status to another in a
// single conditional update. It returns ErrStatusMismatch if the assignment
// is not in the from status.
func (s *Store) TransitionAssignment(ctx context.Context, id string, from, to model.AssignmentStatus, at time.Time) (model.Assignment, error) {
	column := "started_at"
	if to == model.StatusSubmitted {
		column = "submitted_at"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET status = $1, `+column+` = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from,
	)
	if err != nil {
		return model.Assignment{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Assignment{}, err
	}
	if n == 0 {
		return model.Assignment{}, ErrStatusMismatch
	}
	return s.GetAssignment(ctx, id)
}

// ScoreFunc computes the aggregate percentage and per-answer scores for a
// submission.
type ScoreFunc func(questions []model.ExamQuestion, answers []model.Answer) (percentage float64, answerScores map[string]float64)

// SubmitAssignment scores and submits an in-progress assignment in one
// transaction: per-answer scores, the aggregate score and the status change
// commit together or not at all.
func (s *Store) SubmitAssignment(ctx context.Context, id string, at time.Time, score ScoreFunc) (model.Assignment, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var examID string
		err := tx.QueryRowContext(ctx, `SELECT exam_id FROM assignments WHERE id = $1`, id).Scan(&examID)
		if err != nil {
			return err
		}
		if err := lockStatus(ctx, tx, id, model.StatusInProgress); err != nil {
			return err
		}

		questions, err := examQuestions(ctx, tx, examID)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		answers, err := listAnswers(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("load answers: %w", err)
		}

		percentage, answerScores := score(questions, answers)
		for _, a := range answers {
			points, ok := answerScores[a.ID]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE answers SET score = $1, updated_at = $2 WHERE id = $3`, points, at, a.ID,
			); err != nil {
				return fmt.Errorf("score answer %s: %w", a.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE assignments SET status = $1, submitted_at = $2, score = $3 WHERE id = $4 AND status = $5`,
			model.StatusSubmitted, at, percentage, id, model.StatusInProgress,
		)
		return err
	})
	if err != nil {
		return model.Assignment{}, err
	}
	return s.GetAssignment(ctx, id)
}

// lockStatus checks the assignment status inside tx. The no-op update takes
// the row lock on postgres so concurrent writers queue behind tx.
func lockStatus(ctx context.Context, tx *sql.Tx, id string, want model.AssignmentStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = status WHERE id = $1 AND status = $2`, id, want)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusMismatch
	}
	return nil
}

// maxInValues bounds the values bound into one IN list. SQLite rejects
// statements with more than 32766 parameters.
const maxInValues = 500

// queryIn runs prefix + "($2, $3, ...)" once per chunk of values, with
// first bound as $1, and calls scan for every returned row.
func (s *Store) queryIn(ctx context.Context, prefix string, first any, values []string, scan func(*sql.Rows) error) error {
	for start := 0; start < len(values); start += maxInValues {
		chunk := values[start:min(start+maxInValues, len(values))]
		query, args := inClause(prefix, []any{first}, chunk)
		if err := s.scanRows(ctx, query, args, scan); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scanRows(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// inClause appends "($n, $n+1, ...)" for values to query, numbering after
// the existing args.
func inClause(query string, args []any, values []string) (string, []any) {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("(")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		args = append(args, v)
		fmt.Fprintf(&b, "$%d", len(args))
	}
	b.WriteString(")")
	return b.String(), args
}

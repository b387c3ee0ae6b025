package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pavelanni/evalhub/internal/model"
)

const gradeColumns = `g.id, g.assignment_id, g.average_score, g.final_grade, g.rounding_method, g.graded_at, g.graded_by`

func scanGrade(row rowScanner, extra ...any) (model.Grade, error) {
	var g model.Grade
	dest := append([]any{&g.ID, &g.AssignmentID, &g.AverageScore, &g.FinalGrade, &g.RoundingMethod, &g.GradedAt, &g.GradedBy}, extra...)
	err := row.Scan(dest...)
	return g, err
}

// FinalizeGrade moves a submitted assignment to graded and records the
// grade in one transaction. It returns ErrStatusMismatch if the assignment
// is not submitted.
func (s *Store) FinalizeGrade(ctx context.Context, g model.Grade) (model.Grade, error) {
	var saved model.Grade
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = $1 WHERE id = $2 AND status = $3`,
			model.StatusGraded, g.AssignmentID, model.StatusSubmitted)
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

		_, err = tx.ExecContext(ctx,
			`INSERT INTO grades (id, assignment_id, average_score, final_grade, rounding_method, graded_at, graded_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (assignment_id) DO UPDATE SET
				average_score = excluded.average_score,
				final_grade = excluded.final_grade,
				rounding_method = excluded.rounding_method,
				graded_at = excluded.graded_at,
				graded_by = excluded.graded_by`,
			g.ID, g.AssignmentID, g.AverageScore, g.FinalGrade, g.RoundingMethod, g.GradedAt, g.GradedBy)
		if err != nil {
			return err
		}
		saved, err = scanGrade(tx.QueryRowContext(ctx,
			`SELECT `+gradeColumns+` FROM grades g WHERE g.assignment_id = $1`, g.AssignmentID))
		return err
	})
	return saved, err
}

// GetGrade returns the grade of an assignment.
func (s *Store) GetGrade(ctx context.Context, assignmentID string) (model.Grade, error) {
	return scanGrade(s.db.QueryRowContext(ctx,
		`SELECT `+gradeColumns+` FROM grades g WHERE g.assignment_id = $1`, assignmentID))
}

// ListGrades returns the grades of the teacher's assignments, most recently
// graded first. Career matches case-insensitively on a substring.
func (s *Store) ListGrades(ctx context.Context, teacherID string, f model.GradeFilter) ([]model.GradeSummary, error) {
	query := `SELECT ` + gradeColumns + `, e.id, e.title, e.config, st.id, st.full_name, st.email, st.career, a.score
		FROM grades g
		JOIN assignments a ON a.id = g.assignment_id
		JOIN exams e ON e.id = a.exam_id
		JOIN students st ON st.id = a.student_id
		WHERE e.teacher_id = $1`
	args := []any{teacherID}
	if f.Career != "" {
		args = append(args, "%"+strings.ToLower(f.Career)+"%")
		query += fmt.Sprintf(` AND LOWER(COALESCE(st.career, '')) LIKE $%d`, len(args))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		query += fmt.Sprintf(` AND st.id = $%d`, len(args))
	}
	if f.GroupID != "" {
		args = append(args, f.GroupID)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM group_members gm WHERE gm.student_id = st.id AND gm.group_id = $%d)`, len(args))
	}
	query += ` ORDER BY g.graded_at DESC, g.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.GradeSummary
	for rows.Next() {
		var (
			sum    model.GradeSummary
			config string
		)
		g, err := scanGrade(rows, &sum.ExamID, &sum.ExamTitle, &config, &sum.StudentID,
			&sum.StudentName, &sum.StudentEmail, &sum.Career, &sum.AssignmentScore)
		if err != nil {
			return nil, err
		}
		sum.Grade = g
		cfg, err := decodeExamConfig(config)
		if err != nil {
			return nil, err
		}
		if cfg.PassingPercentage > 0 && sum.AssignmentScore != nil {
			passed := *sum.AssignmentScore >= cfg.PassingPercentage
			sum.Passed = &passed
		}
		list = append(list, sum)
	}
	return list, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/evalhub/internal/model"
)

const studentColumns = `id, teacher_id, full_name, email, year, career, created_at`

func scanStudent(row rowScanner) (model.Student, error) {
	var st model.Student
	err := row.Scan(&st.ID, &st.TeacherID, &st.FullName, &st.Email, &st.Year, &st.Career, &st.CreatedAt)
	return st, err
}

// CreateStudent inserts a student and its group memberships in one
// transaction.
func (s *Store) CreateStudent(ctx context.Context, st model.Student, groupIDs []string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO students (id, teacher_id, full_name, email, year, career, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			st.ID, st.TeacherID, st.FullName, st.Email, st.Year, st.Career, st.CreatedAt)
		if err != nil {
			return err
		}
		for _, gid := range groupIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO group_members (student_id, group_id) VALUES ($1, $2)
				 ON CONFLICT (student_id, group_id) DO NOTHING`, st.ID, gid); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("student %s: %w", st.Email, ErrDuplicate)
	}
	if err != nil {
		slog.Error("failed to create student", "email", st.Email, "error", err)
		return err
	}
	slog.Debug("created student", "id", st.ID, "email", st.Email, "groups", len(groupIDs))
	return nil
}

// GetStudent returns a student by ID.
func (s *Store) GetStudent(ctx context.Context, id string) (model.Student, error) {
	return scanStudent(s.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// StudentsByIDs returns the teacher's students among ids, keyed by ID.
// Unknown IDs and students of other teachers are omitted.
func (s *Store) StudentsByIDs(ctx context.Context, teacherID string, ids []string) (map[string]model.Student, error) {
	found := make(map[string]model.Student)
	if len(ids) == 0 {
		return found, nil
	}
	err := s.queryIn(ctx, `SELECT `+studentColumns+` FROM students WHERE teacher_id = $1 AND id IN `, teacherID, ids,
		func(rows *sql.Rows) error {
			st, err := scanStudent(rows)
			if err != nil {
				return err
			}
			found[st.ID] = st
			return nil
		})
	return found, err
}

// ExistingStudentEmails returns which of emails are already on the
// teacher's roster. Comparison ignores case; keys are lower-cased.
func (s *Store) ExistingStudentEmails(ctx context.Context, teacherID string, emails []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(emails) == 0 {
		return existing, nil
	}
	lower := make([]string, len(emails))
	for i, e := range emails {
		lower[i] = strings.ToLower(e)
	}
	err := s.queryIn(ctx, `SELECT LOWER(email) FROM students WHERE teacher_id = $1 AND LOWER(email) IN `, teacherID, lower,
		func(rows *sql.Rows) error {
			var e string
			if err := rows.Scan(&e); err != nil {
				return err
			}
			existing[e] = true
			return nil
		})
	return existing, err
}

// CreateGroup inserts a group.
func (s *Store) CreateGroup(ctx context.Context, g model.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO class_groups (id, teacher_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.TeacherID, g.Name, g.CreatedAt)
	return err
}

// GetGroup returns a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (model.Group, error) {
	var g model.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, teacher_id, name, created_at FROM class_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.TeacherID, &g.Name, &g.CreatedAt)
	return g, err
}

// OwnedGroups returns which of ids are groups owned by the teacher.
func (s *Store) OwnedGroups(ctx context.Context, teacherID string, ids []string) (map[string]bool, error) {
	owned := make(map[string]bool)
	if len(ids) == 0 {
		return owned, nil
	}
	err := s.queryIn(ctx, `SELECT id FROM class_groups WHERE teacher_id = $1 AND id IN `, teacherID, ids,
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			owned[id] = true
			return nil
		})
	return owned, err
}

// AddGroupMember adds a student to a group. Adding an existing member is a
// no-op.
func (s *Store) AddGroupMember(ctx context.Context, groupID, studentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (student_id, group_id) VALUES ($1, $2)
		 ON CONFLICT (student_id, group_id) DO NOTHING`, studentID, groupID)
	return err
}

// GroupMembers returns the students of a group ordered by name.
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT st.id, st.teacher_id, st.full_name, st.email, st.year, st.career, st.created_at
		 FROM students st
		 JOIN group_members gm ON gm.student_id = st.id
		 WHERE gm.group_id = $1
		 ORDER BY st.full_name, st.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, st)
	}
	return list, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/pavelanni/evalhub/internal/model"
)

// CreateTeacher inserts a new teacher account.
func (s *Store) CreateTeacher(ctx context.Context, t model.Teacher) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teachers (id, email, full_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Email, t.FullName, t.PasswordHash, t.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to create teacher", "email", t.Email, "error", err)
		return err
	}
	slog.Info("created teacher", "id", t.ID, "email", t.Email)
	return nil
}

// GetTeacherByEmail returns a teacher by email, or nil if none exists.
func (s *Store) GetTeacherByEmail(ctx context.Context, email string) (*model.Teacher, error) {
	return s.getTeacher(ctx, `SELECT id, email, full_name, password_hash, created_at FROM teachers WHERE email = $1`, email)
}

// GetTeacher returns a teacher by ID, or nil if none exists.
func (s *Store) GetTeacher(ctx context.Context, id string) (*model.Teacher, error) {
	return s.getTeacher(ctx, `SELECT id, email, full_name, password_hash, created_at FROM teachers WHERE id = $1`, id)
}

func (s *Store) getTeacher(ctx context.Context, query string, arg string) (*model.Teacher, error) {
	var t model.Teacher
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&t.ID, &t.Email, &t.FullName, &t.PasswordHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTeacherPassword replaces a teacher's password hash.
func (s *Store) UpdateTeacherPassword(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE teachers SET password_hash = $1 WHERE id = $2`, hash, id)
	return err
}

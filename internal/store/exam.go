package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/evalhub/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertQuestion(ctx context.Context, db execer, q model.Question) error {
	if q.Config == nil {
		return fmt.Errorf("question %s has no type config", q.ID)
	}
	cfg, err := json.Marshal(q.Config)
	if err != nil {
		return fmt.Errorf("encode type config: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO questions (id, teacher_id, title, content, question_type, type_config, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		q.ID, q.TeacherID, q.Title, q.Content, q.Type, string(cfg), q.Difficulty)
	return err
}

// CreateExam inserts an exam together with its ordered questions. Questions
// not yet in the bank are inserted as well.
func (s *Store) CreateExam(ctx context.Context, e model.Exam, questions []model.ExamQuestion) error {
	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode exam config: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exams (id, teacher_id, title, description, duration_minutes, config, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.TeacherID, e.Title, e.Description, e.DurationMinutes, string(cfg), e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}
		for _, eq := range questions {
			if err := insertQuestion(ctx, tx, eq.Question); err != nil {
				return fmt.Errorf("insert question %s: %w", eq.Question.ID, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO exam_questions (exam_id, question_id, question_order, weight)
				 VALUES ($1, $2, $3, $4)`,
				e.ID, eq.Question.ID, eq.Order, eq.Weight)
			if err != nil {
				return fmt.Errorf("link question %s: %w", eq.Question.ID, err)
			}
		}
		return nil
	})
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	var (
		e   model.Exam
		cfg string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, teacher_id, title, description, duration_minutes, config, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &e.DurationMinutes, &cfg, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	e.Config, err = decodeExamConfig(cfg)
	return e, err
}

// ExamQuestions returns the questions of an exam in question order.
func (s *Store) ExamQuestions(ctx context.Context, examID string) ([]model.ExamQuestion, error) {
	return examQuestions(ctx, s.db, examID)
}

func examQuestions(ctx context.Context, q querier, examID string) ([]model.ExamQuestion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT q.id, q.teacher_id, q.title, q.content, q.question_type, q.type_config, q.difficulty,
			eq.question_order, eq.weight
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.question_order, q.id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.ExamQuestion
	for rows.Next() {
		var (
			eq  model.ExamQuestion
			cfg string
		)
		qq := &eq.Question
		if err := rows.Scan(&qq.ID, &qq.TeacherID, &qq.Title, &qq.Content, &qq.Type, &cfg,
			&qq.Difficulty, &eq.Order, &eq.Weight); err != nil {
			return nil, err
		}
		qq.Config, err = model.DecodeTypeConfig(qq.Type, []byte(cfg))
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", qq.ID, err)
		}
		list = append(list, eq)
	}
	return list, rows.Err()
}

func decodeExamConfig(raw string) (model.ExamConfig, error) {
	var cfg model.ExamConfig
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("decode exam config: %w", err)
	}
	return cfg, nil
}

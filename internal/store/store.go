package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrStatusMismatch is returned when a conditional status update finds the
// assignment in a state other than the expected one.
var ErrStatusMismatch = errors.New("assignment status changed")

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("duplicate record")

// isUniqueViolation reports whether err is a unique or primary key
// violation from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens the database and applies the schema. For sqlite, dsn is a file
// path or ":memory:".
func New(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "evalhub.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// A single connection serializes writers and keeps ":memory:"
			// databases from splitting across pool connections.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		if dsn == "" {
			dsn = "postgres://localhost:5432/evalhub?sslmode=disable"
		}
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the backend in use.
func (s *Store) Driver() Driver {
	return s.driver
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS teachers (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	full_name TEXT NOT NULL,
	email TEXT NOT NULL,
	year TEXT,
	career TEXT,
	created_at DATETIME NOT NULL,
	UNIQUE (teacher_id, email)
);

CREATE TABLE IF NOT EXISTS class_groups (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
	student_id TEXT NOT NULL REFERENCES students(id),
	group_id TEXT NOT NULL REFERENCES class_groups(id),
	PRIMARY KEY (student_id, group_id)
);

CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	question_type TEXT NOT NULL,
	type_config TEXT NOT NULL DEFAULT '{}',
	difficulty TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	config TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	exam_id TEXT NOT NULL REFERENCES exams(id),
	question_id TEXT NOT NULL REFERENCES questions(id),
	question_order INTEGER NOT NULL,
	weight REAL NOT NULL DEFAULT 1,
	PRIMARY KEY (exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id),
	student_id TEXT NOT NULL REFERENCES students(id),
	magic_token TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'pending',
	assigned_at DATETIME NOT NULL,
	started_at DATETIME,
	submitted_at DATETIME,
	score REAL,
	UNIQUE (exam_id, student_id)
);

CREATE TABLE IF NOT EXISTS answers (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES assignments(id),
	question_id TEXT NOT NULL REFERENCES questions(id),
	selected_option_id TEXT,
	answer_text TEXT,
	answer_latex TEXT,
	answer_numeric REAL,
	answer_point TEXT,
	score REAL,
	feedback TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (assignment_id, question_id)
);

CREATE TABLE IF NOT EXISTS grades (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL UNIQUE REFERENCES assignments(id),
	average_score REAL NOT NULL,
	final_grade INTEGER NOT NULL,
	rounding_method TEXT NOT NULL,
	graded_at DATETIME NOT NULL,
	graded_by TEXT
);

CREATE TABLE IF NOT EXISTS assignment_events (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES assignments(id),
	event_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	details TEXT,
	occurred_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	typ TEXT NOT NULL,
	key TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	imported_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_student ON assignments(student_id);
CREATE INDEX IF NOT EXISTS idx_events_assignment ON assignment_events(assignment_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS teachers (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	full_name TEXT NOT NULL,
	email TEXT NOT NULL,
	year TEXT,
	career TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (teacher_id, email)
);

CREATE TABLE IF NOT EXISTS class_groups (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
	student_id TEXT NOT NULL REFERENCES students(id),
	group_id TEXT NOT NULL REFERENCES class_groups(id),
	PRIMARY KEY (student_id, group_id)
);

CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	question_type TEXT NOT NULL,
	type_config TEXT NOT NULL DEFAULT '{}',
	difficulty TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS exams (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	config TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_questions (
	exam_id TEXT NOT NULL REFERENCES exams(id),
	question_id TEXT NOT NULL REFERENCES questions(id),
	question_order INTEGER NOT NULL,
	weight DOUBLE PRECISION NOT NULL DEFAULT 1,
	PRIMARY KEY (exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	exam_id TEXT NOT NULL REFERENCES exams(id),
	student_id TEXT NOT NULL REFERENCES students(id),
	magic_token TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'pending',
	assigned_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	submitted_at TIMESTAMPTZ,
	score DOUBLE PRECISION,
	UNIQUE (exam_id, student_id)
);

CREATE TABLE IF NOT EXISTS answers (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES assignments(id),
	question_id TEXT NOT NULL REFERENCES questions(id),
	selected_option_id TEXT,
	answer_text TEXT,
	answer_latex TEXT,
	answer_numeric DOUBLE PRECISION,
	answer_point TEXT,
	score DOUBLE PRECISION,
	feedback TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (assignment_id, question_id)
);

CREATE TABLE IF NOT EXISTS grades (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL UNIQUE REFERENCES assignments(id),
	average_score DOUBLE PRECISION NOT NULL,
	final_grade INTEGER NOT NULL,
	rounding_method TEXT NOT NULL,
	graded_at TIMESTAMPTZ NOT NULL,
	graded_by TEXT
);

CREATE TABLE IF NOT EXISTS assignment_events (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES assignments(id),
	event_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	details TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	seq BIGSERIAL PRIMARY KEY,
	typ TEXT NOT NULL,
	key TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_student ON assignments(student_id);
CREATE INDEX IF NOT EXISTS idx_events_assignment ON assignment_events(assignment_id);
`

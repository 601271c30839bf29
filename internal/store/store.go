package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrExamNotOngoing is returned by CompleteExam when the exam's status
// guard fails: the exam was already completed (or expired) by the time
// the transaction ran.
var ErrExamNotOngoing = errors.New("exam is not ongoing")

type Store struct {
	db *sql.DB
}

// New opens the sqlite database at dbPath and runs migrations. dbPath
// is a filesystem path or the literal ":memory:"; URI forms with their
// own query string are not supported, since the connection pragmas are
// appended as the query string here.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every new in-memory connection is a separate empty database;
		// keep the pool to a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		specialization TEXT NOT NULL,
		year TEXT NOT NULL DEFAULT '',
		marks INTEGER NOT NULL DEFAULT 1,
		difficulty TEXT NOT NULL DEFAULT 'medium',
		attachment_type TEXT,
		attachment_content TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS options (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		is_correct INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS ai_models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		model_identifier TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		specialization TEXT NOT NULL,
		exam_type TEXT NOT NULL DEFAULT 'normal',
		ai_model_id INTEGER,
		question_count INTEGER NOT NULL,
		time_limit INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL DEFAULT 'ongoing',
		score INTEGER,
		correct_answers INTEGER,
		percentage REAL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (ai_model_id) REFERENCES ai_models(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		ord INTEGER NOT NULL,
		user_answer INTEGER,
		is_correct INTEGER,
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id),
		UNIQUE (exam_id, question_id),
		UNIQUE (exam_id, ord)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

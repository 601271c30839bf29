package store

import (
	"database/sql"
	"time"

	"github.com/eduplatform/examd/internal/model"
)

// InsertQuestion stores a question together with its options in a
// single transaction. Option insertion order fixes the index space
// later used for scoring.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertQuestionTx(tx, q)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func insertQuestionTx(tx *sql.Tx, q model.Question) (int64, error) {
	var attType, attContent any
	if q.Attachment != nil {
		attType = string(q.Attachment.Type)
		attContent = q.Attachment.Content
	}
	res, err := tx.Exec(
		`INSERT INTO questions (text, specialization, year, marks, difficulty, attachment_type, attachment_content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Text, q.Specialization, q.Year, q.Marks, q.Difficulty, attType, attContent, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, o := range q.Options {
		_, err := tx.Exec(
			`INSERT INTO options (question_id, text, is_correct) VALUES (?, ?, ?)`,
			id, o.Text, o.IsCorrect,
		)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetQuestion returns a question with its options by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	var attType, attContent sql.NullString
	err := s.db.QueryRow(
		`SELECT id, text, specialization, year, marks, difficulty, attachment_type, attachment_content, created_at
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Text, &q.Specialization, &q.Year, &q.Marks, &q.Difficulty, &attType, &attContent, &q.CreatedAt)
	if err != nil {
		return q, err
	}
	if attType.Valid {
		q.Attachment = &model.Attachment{
			Type:    model.AttachmentType(attType.String),
			Content: attContent.String,
		}
	}
	q.Options, err = s.listOptions(q.ID)
	return q, err
}

// ListQuestionsBySpecialization returns the bank pool for a
// specialization, each question carrying its options in stored order.
func (s *Store) ListQuestionsBySpecialization(spec model.Specialization) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, text, specialization, year, marks, difficulty, attachment_type, attachment_content, created_at
		 FROM questions WHERE specialization = ? ORDER BY id`, spec,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var attType, attContent sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &q.Specialization, &q.Year, &q.Marks, &q.Difficulty, &attType, &attContent, &q.CreatedAt); err != nil {
			return nil, err
		}
		if attType.Valid {
			q.Attachment = &model.Attachment{
				Type:    model.AttachmentType(attType.String),
				Content: attContent.String,
			}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Options, err = s.listOptions(questions[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// listOptions returns a question's options ordered by id, which is the
// canonical option order.
func (s *Store) listOptions(questionID int64) ([]model.Option, error) {
	rows, err := s.db.Query(
		`SELECT id, question_id, text, is_correct FROM options WHERE question_id = ? ORDER BY id`, questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var options []model.Option
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// CountBySpecialization returns the pool size for a specialization.
func (s *Store) CountBySpecialization(spec model.Specialization) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions WHERE specialization = ?`, spec).Scan(&count)
	return count, err
}

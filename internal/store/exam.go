package store

import (
	"database/sql"
	"time"

	"github.com/eduplatform/examd/internal/model"
)

// QuestionResult is the per-question outcome written at submission.
// Order addresses the snapshot row; results for every position of the
// exam must be supplied together.
type QuestionResult struct {
	Order      int
	UserAnswer int
	IsCorrect  bool
}

// CreateExam creates an exam and its frozen question snapshot in one
// transaction. questionIDs are existing bank questions; their slice
// position becomes the snapshot order.
func (s *Store) CreateExam(exam model.Exam, questionIDs []int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	examID, err := insertExamTx(tx, exam)
	if err != nil {
		return 0, err
	}
	if err := insertSnapshotTx(tx, examID, questionIDs); err != nil {
		return 0, err
	}
	return examID, tx.Commit()
}

// CreateExamFromDrafts persists freshly generated questions as durable
// bank entries and binds them to a new exam, all in one transaction.
// A failure on any row leaves nothing visible.
func (s *Store) CreateExamFromDrafts(exam model.Exam, drafts []model.Question) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	questionIDs := make([]int64, 0, len(drafts))
	for _, d := range drafts {
		id, err := insertQuestionTx(tx, d)
		if err != nil {
			return 0, err
		}
		questionIDs = append(questionIDs, id)
	}

	examID, err := insertExamTx(tx, exam)
	if err != nil {
		return 0, err
	}
	if err := insertSnapshotTx(tx, examID, questionIDs); err != nil {
		return 0, err
	}
	return examID, tx.Commit()
}

func insertExamTx(tx *sql.Tx, exam model.Exam) (int64, error) {
	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO exams (user_id, title, specialization, exam_type, ai_model_id, question_count, time_limit, start_time, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exam.UserID, exam.Title, exam.Specialization, exam.ExamType, exam.AIModelID,
		exam.QuestionCount, exam.TimeLimit, now, model.StatusOngoing, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertSnapshotTx(tx *sql.Tx, examID int64, questionIDs []int64) error {
	for i, qID := range questionIDs {
		_, err := tx.Exec(
			`INSERT INTO exam_questions (exam_id, question_id, ord) VALUES (?, ?, ?)`,
			examID, qID, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	var endTime sql.NullTime
	var aiModelID sql.NullInt64
	var score, correct sql.NullInt64
	var percentage sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT id, user_id, title, specialization, exam_type, ai_model_id, question_count, time_limit,
		        start_time, end_time, status, score, correct_answers, percentage, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.UserID, &e.Title, &e.Specialization, &e.ExamType, &aiModelID, &e.QuestionCount,
		&e.TimeLimit, &e.StartTime, &endTime, &e.Status, &score, &correct, &percentage, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if aiModelID.Valid {
		e.AIModelID = &aiModelID.Int64
	}
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}
	if correct.Valid {
		v := int(correct.Int64)
		e.CorrectAnswers = &v
	}
	if percentage.Valid {
		e.Percentage = &percentage.Float64
	}
	return e, nil
}

// GetExamQuestions returns the exam's snapshot ordered by position.
// This ordering is authoritative for matching a submitted answer vector.
func (s *Store) GetExamQuestions(examID int64) ([]model.ExamQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, question_id, ord, user_answer, is_correct
		 FROM exam_questions WHERE exam_id = ? ORDER BY ord`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var eqs []model.ExamQuestion
	for rows.Next() {
		var eq model.ExamQuestion
		var userAnswer sql.NullInt64
		var isCorrect sql.NullBool
		if err := rows.Scan(&eq.ID, &eq.ExamID, &eq.QuestionID, &eq.Order, &userAnswer, &isCorrect); err != nil {
			return nil, err
		}
		if userAnswer.Valid {
			v := int(userAnswer.Int64)
			eq.UserAnswer = &v
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			eq.IsCorrect = &v
		}
		eqs = append(eqs, eq)
	}
	return eqs, rows.Err()
}

// GetExamView builds the full client representation of an exam: the
// ordered snapshot with questions and options, plus the AI model
// descriptor when one is linked.
func (s *Store) GetExamView(examID int64) (*model.ExamView, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	eqs, err := s.GetExamQuestions(examID)
	if err != nil {
		return nil, err
	}

	view := &model.ExamView{Exam: exam}
	for _, eq := range eqs {
		q, err := s.GetQuestion(eq.QuestionID)
		if err != nil {
			return nil, err
		}
		view.Questions = append(view.Questions, model.ExamQuestionView{
			ExamQuestion: eq,
			Question:     q,
		})
	}

	if exam.AIModelID != nil {
		m, err := s.GetAIModel(*exam.AIModelID)
		if err != nil {
			return nil, err
		}
		view.AIModel = m
	}
	return view, nil
}

// ListCompletedByUser returns a user's completed exams, newest first.
func (s *Store) ListCompletedByUser(userID int64) ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id FROM exams WHERE user_id = ? AND status = ? ORDER BY created_at DESC, id DESC`,
		userID, model.StatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var exams []model.Exam
	for _, id := range ids {
		e, err := s.GetExam(id)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, nil
}

// ExamCount returns the total number of exams.
func (s *Store) ExamCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}

// CompleteExam writes submission results and closes the exam in one
// transaction. The status update doubles as a compare-and-set guard:
// when two submissions race, the loser's UPDATE matches zero rows and
// the whole transaction rolls back with ErrExamNotOngoing.
func (s *Store) CompleteExam(examID int64, results []QuestionResult, score, correctAnswers int, percentage float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE exams SET status = ?, end_time = ?, score = ?, correct_answers = ?, percentage = ?
		 WHERE id = ? AND status = ?`,
		model.StatusCompleted, time.Now(), score, correctAnswers, percentage,
		examID, model.StatusOngoing,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExamNotOngoing
	}

	for _, r := range results {
		_, err := tx.Exec(
			`UPDATE exam_questions SET user_answer = ?, is_correct = ? WHERE exam_id = ? AND ord = ?`,
			r.UserAnswer, r.IsCorrect, examID, r.Order,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

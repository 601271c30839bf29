// Package exam implements the exam assembly and scoring engine: it
// selects a question set under constraints, binds it immutably to a
// new exam, and later scores a submitted answer vector against the
// frozen question order.
package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/eduplatform/examd/internal/aiq"
	appI18n "github.com/eduplatform/examd/internal/i18n"
	"github.com/eduplatform/examd/internal/model"
	"github.com/eduplatform/examd/internal/selector"
	"github.com/eduplatform/examd/internal/store"
)

const (
	minQuestionCount = 5
	maxQuestionCount = 30
)

// Service owns the assemble/submit lifecycle. Each operation is a
// request-scoped unit of work; service instances hold no per-exam
// state, so operations for different exams run fully in parallel.
type Service struct {
	store    *store.Store
	provider aiq.Provider
	loc      *goi18n.Localizer

	// Rand overrides the selection entropy source; nil means a fresh
	// source per request. Tests set it for reproducible samples.
	Rand *rand.Rand
}

// New creates a Service.
func New(s *store.Store, p aiq.Provider, loc *goi18n.Localizer) *Service {
	return &Service{store: s, provider: p, loc: loc}
}

// StartRequest is the tagged assembly request. Mode selects the path;
// AIModelID is required for and only meaningful in AI mode.
type StartRequest struct {
	UserID         int64
	Specialization model.Specialization
	Count          int
	Mode           model.ExamType
	AIModelID      *int64
}

// Assemble creates a new exam for the request: it resolves the
// question set, computes exam metadata and persists exam plus frozen
// snapshot atomically. No partial exam ever becomes visible; every
// failure path returns before or rolls back the transaction.
func (s *Service) Assemble(ctx context.Context, req StartRequest) (*model.ExamView, error) {
	if !req.Specialization.Valid() {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid specialization %q", req.Specialization)}
	}
	if req.Count < minQuestionCount || req.Count > maxQuestionCount {
		return nil, &ValidationError{Msg: fmt.Sprintf("question_count must be between %d and %d", minQuestionCount, maxQuestionCount)}
	}

	exam := model.Exam{
		UserID:         req.UserID,
		Specialization: req.Specialization,
		QuestionCount:  req.Count,
		TimeLimit:      req.Count * 3 / 2,
	}

	var examID int64
	switch req.Mode {
	case model.ExamTypeNormal:
		pool, err := s.store.ListQuestionsBySpecialization(req.Specialization)
		if err != nil {
			return nil, fmt.Errorf("load question pool: %w", err)
		}
		selected, err := selector.Select(pool, req.Count, selector.PolicyUniform, s.Rand)
		if err != nil {
			return nil, err
		}
		questionIDs := make([]int64, 0, len(selected))
		for _, q := range selected {
			questionIDs = append(questionIDs, q.ID)
		}
		exam.ExamType = model.ExamTypeNormal
		exam.Title = s.examTitle(req.Specialization, nil)
		examID, err = s.store.CreateExam(exam, questionIDs)
		if err != nil {
			return nil, fmt.Errorf("create exam: %w", err)
		}

	case model.ExamTypeAI:
		if req.AIModelID == nil {
			return nil, ErrMissingAIModel
		}
		aiModel, err := s.store.GetAIModel(*req.AIModelID)
		if err != nil {
			return nil, fmt.Errorf("resolve AI model: %w", err)
		}
		if aiModel == nil {
			return nil, &AIModelNotFoundError{ID: *req.AIModelID}
		}
		// A disabled descriptor is still usable; there is no activity
		// gate on exam creation.
		drafts, err := s.provider.Generate(ctx, *aiModel, req.Specialization, req.Count)
		if err != nil {
			return nil, fmt.Errorf("generate questions: %w", err)
		}
		if len(drafts) != req.Count {
			return nil, fmt.Errorf("provider returned %d questions, requested %d", len(drafts), req.Count)
		}
		for i, d := range drafts {
			if err := aiq.ValidateDraft(d); err != nil {
				return nil, fmt.Errorf("generated question %d: %w", i, err)
			}
		}
		exam.ExamType = model.ExamTypeAI
		exam.AIModelID = &aiModel.ID
		exam.Title = s.examTitle(req.Specialization, aiModel)
		examID, err = s.store.CreateExamFromDrafts(exam, drafts)
		if err != nil {
			return nil, fmt.Errorf("create AI exam: %w", err)
		}

	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid exam mode %q", req.Mode)}
	}

	slog.Info("assembled exam",
		"exam_id", examID,
		"user_id", req.UserID,
		"specialization", req.Specialization,
		"type", exam.ExamType,
		"question_count", req.Count,
	)
	return s.store.GetExamView(examID)
}

// Submit scores an answer vector against the exam's frozen question
// order and closes the exam. All preconditions are checked before any
// write; the final status transition is guarded in the store so two
// racing submissions produce exactly one success.
func (s *Service) Submit(ctx context.Context, examID, userID int64, answers []int) (*model.ExamView, error) {
	exam, err := s.ownedExam(examID, userID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.StatusOngoing {
		return nil, ErrExamAlreadyClosed
	}
	if len(answers) != exam.QuestionCount {
		return nil, &AnswerCountMismatchError{Expected: exam.QuestionCount, Got: len(answers)}
	}
	for i, a := range answers {
		if a < -1 {
			return nil, &InvalidAnswerValueError{Index: i, Value: a}
		}
	}

	questions, err := s.snapshotQuestions(examID)
	if err != nil {
		return nil, err
	}
	if len(questions) != len(answers) {
		return nil, fmt.Errorf("snapshot has %d questions, expected %d", len(questions), len(answers))
	}

	results, aggr := Score(questions, answers)
	if err := s.store.CompleteExam(examID, results, aggr.Score, aggr.CorrectAnswers, aggr.Percentage); err != nil {
		if errors.Is(err, store.ErrExamNotOngoing) {
			return nil, ErrExamAlreadyClosed
		}
		return nil, fmt.Errorf("complete exam: %w", err)
	}

	slog.Info("scored exam",
		"exam_id", examID,
		"user_id", userID,
		"correct", aggr.CorrectAnswers,
		"score", aggr.Score,
		"percentage", aggr.Percentage,
	)
	return s.store.GetExamView(examID)
}

// Aggregate holds the exam-level outcome of a submission.
type Aggregate struct {
	Score          int
	CorrectAnswers int
	Percentage     float64
}

// Score computes per-question correctness and the exam aggregate. The
// questions must be in frozen snapshot order and answers must align to
// it index by index. For each position the correct index is the
// position of the flagged option in stored option order, or -1 when no
// option is flagged; equality against the submitted value decides
// correctness, so a skip (-1) matches a question with no correct
// option.
func Score(questions []model.Question, answers []int) ([]store.QuestionResult, Aggregate) {
	results := make([]store.QuestionResult, 0, len(questions))
	var aggr Aggregate
	for i, q := range questions {
		correct := answers[i] == q.CorrectIndex()
		results = append(results, store.QuestionResult{
			Order:      i,
			UserAnswer: answers[i],
			IsCorrect:  correct,
		})
		if correct {
			aggr.CorrectAnswers++
			aggr.Score += q.Marks
		}
	}
	if len(questions) > 0 {
		aggr.Percentage = float64(aggr.CorrectAnswers) / float64(len(questions)) * 100
	}
	return results, aggr
}

// Get returns the full exam view for its owner.
func (s *Service) Get(examID, userID int64) (*model.ExamView, error) {
	if _, err := s.ownedExam(examID, userID); err != nil {
		return nil, err
	}
	return s.store.GetExamView(examID)
}

// Result returns the exam view once the exam is completed.
func (s *Service) Result(examID, userID int64) (*model.ExamView, error) {
	exam, err := s.ownedExam(examID, userID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.StatusCompleted {
		return nil, ErrExamNotCompleted
	}
	return s.store.GetExamView(examID)
}

// History lists the caller's completed exams, newest first.
func (s *Service) History(userID int64) ([]model.Exam, error) {
	return s.store.ListCompletedByUser(userID)
}

func (s *Service) ownedExam(examID, userID int64) (model.Exam, error) {
	exam, err := s.store.GetExam(examID)
	if errors.Is(err, sql.ErrNoRows) {
		return exam, ErrExamNotFound
	}
	if err != nil {
		return exam, fmt.Errorf("load exam: %w", err)
	}
	if exam.UserID != userID {
		return exam, ErrExamNotFound
	}
	return exam, nil
}

// snapshotQuestions loads the exam's questions in frozen order, each
// with its options in stored order.
func (s *Service) snapshotQuestions(examID int64) ([]model.Question, error) {
	eqs, err := s.store.GetExamQuestions(examID)
	if err != nil {
		return nil, fmt.Errorf("load exam questions: %w", err)
	}
	questions := make([]model.Question, 0, len(eqs))
	for _, eq := range eqs {
		q, err := s.store.GetQuestion(eq.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("load question %d: %w", eq.QuestionID, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// examTitle builds the localized cosmetic title. AI exams carry the
// model name.
func (s *Service) examTitle(spec model.Specialization, aiModel *model.AIModel) string {
	label := appI18n.T(s.loc, "specialization."+string(spec), nil)
	if aiModel != nil {
		return appI18n.T(s.loc, "exam.title.ai", map[string]any{
			"Specialization": label,
			"Model":          aiModel.Name,
		})
	}
	return appI18n.T(s.loc, "exam.title.normal", map[string]any{"Specialization": label})
}

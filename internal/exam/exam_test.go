package exam

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eduplatform/examd/internal/aiq"
	appI18n "github.com/eduplatform/examd/internal/i18n"
	"github.com/eduplatform/examd/internal/model"
	"github.com/eduplatform/examd/internal/selector"
	"github.com/eduplatform/examd/internal/store"
)

func newTestService(t *testing.T, dbPath string) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	svc := New(s, &aiq.Placeholder{Rand: rand.New(rand.NewPCG(1, 1))}, appI18n.NewLocalizer("en"))
	svc.Rand = rand.New(rand.NewPCG(2, 2))
	return svc, s
}

func newMemService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	return newTestService(t, ":memory:")
}

func seedUser(t *testing.T, s *store.Store) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{Email: "student@example.com", Name: "Student", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return id
}

// seedQuestion inserts a bank question whose correct option sits at
// correctIndex in stored order; -1 means no correct option.
func seedQuestion(t *testing.T, s *store.Store, spec model.Specialization, diff model.Difficulty, marks, optionCount, correctIndex int) int64 {
	t.Helper()
	q := model.Question{
		Text:           "question",
		Specialization: spec,
		Marks:          marks,
		Difficulty:     diff,
	}
	for i := 0; i < optionCount; i++ {
		q.Options = append(q.Options, model.Option{Text: "option", IsCorrect: i == correctIndex})
	}
	id, err := s.InsertQuestion(q)
	if err != nil {
		t.Fatalf("seedQuestion: %v", err)
	}
	return id
}

func seedPool(t *testing.T, s *store.Store, spec model.Specialization, n int) {
	t.Helper()
	diffs := []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}
	for i := 0; i < n; i++ {
		seedQuestion(t, s, spec, diffs[i%3], 1, 4, i%4)
	}
}

func TestAssembleNormal(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	seedPool(t, s, model.SpecSoftware, 12)

	view, err := svc.Assemble(context.Background(), StartRequest{
		UserID:         userID,
		Specialization: model.SpecSoftware,
		Count:          8,
		Mode:           model.ExamTypeNormal,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if view.Status != model.StatusOngoing {
		t.Errorf("expected status ongoing, got %s", view.Status)
	}
	if view.ExamType != model.ExamTypeNormal {
		t.Errorf("expected normal exam, got %s", view.ExamType)
	}
	if view.QuestionCount != 8 {
		t.Errorf("expected question_count 8, got %d", view.QuestionCount)
	}
	if view.TimeLimit != 12 {
		t.Errorf("expected time_limit 12, got %d", view.TimeLimit)
	}
	if view.Score != nil || view.CorrectAnswers != nil || view.Percentage != nil {
		t.Error("aggregates must be nil before submission")
	}
	if !strings.Contains(view.Title, "Software Engineering") {
		t.Errorf("title should carry the specialization label, got %q", view.Title)
	}

	if len(view.Questions) != 8 {
		t.Fatalf("expected 8 snapshot rows, got %d", len(view.Questions))
	}
	seenQ := make(map[int64]bool)
	for i, eq := range view.Questions {
		if eq.Order != i {
			t.Errorf("row %d has order %d; snapshot must be 0..n-1 contiguous", i, eq.Order)
		}
		if seenQ[eq.Question.ID] {
			t.Errorf("question %d appears twice", eq.Question.ID)
		}
		seenQ[eq.Question.ID] = true
		if eq.UserAnswer != nil || eq.IsCorrect != nil {
			t.Errorf("row %d already carries submission data", i)
		}
	}
}

func TestAssembleInsufficientQuestions(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	seedPool(t, s, model.SpecNetworks, 3)

	_, err := svc.Assemble(context.Background(), StartRequest{
		UserID:         userID,
		Specialization: model.SpecNetworks,
		Count:          10,
		Mode:           model.ExamTypeNormal,
	})

	var insuff *selector.InsufficientError
	if !errors.As(err, &insuff) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if insuff.Available != 3 || insuff.Requested != 10 {
		t.Errorf("expected 3 available / 10 requested, got %d/%d", insuff.Available, insuff.Requested)
	}

	// All-or-nothing: no exam row may exist.
	count, err := s.ExamCount()
	if err != nil {
		t.Fatalf("ExamCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no exam created, found %d", count)
	}
}

func TestAssembleValidation(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"bad specialization", StartRequest{UserID: userID, Specialization: "physics", Count: 10, Mode: model.ExamTypeNormal}},
		{"count too low", StartRequest{UserID: userID, Specialization: model.SpecAI, Count: 4, Mode: model.ExamTypeNormal}},
		{"count too high", StartRequest{UserID: userID, Specialization: model.SpecAI, Count: 31, Mode: model.ExamTypeNormal}},
		{"bad mode", StartRequest{UserID: userID, Specialization: model.SpecAI, Count: 10, Mode: "oral"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Assemble(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAssembleAI(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	modelID, err := s.InsertAIModel(model.AIModel{Name: "Test Generator", ModelIdentifier: "gpt-test-001", IsActive: true})
	if err != nil {
		t.Fatalf("InsertAIModel: %v", err)
	}

	bankBefore, _ := s.CountBySpecialization(model.SpecGeneral)

	view, err := svc.Assemble(context.Background(), StartRequest{
		UserID:         userID,
		Specialization: model.SpecGeneral,
		Count:          7,
		Mode:           model.ExamTypeAI,
		AIModelID:      &modelID,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if view.ExamType != model.ExamTypeAI {
		t.Errorf("expected ai exam, got %s", view.ExamType)
	}
	if view.AIModel == nil || view.AIModel.ID != modelID {
		t.Fatal("expected linked AI model in view")
	}
	if !strings.Contains(view.Title, "Test Generator") {
		t.Errorf("AI exam title should carry the model name, got %q", view.Title)
	}
	if len(view.Questions) != 7 {
		t.Fatalf("expected 7 questions, got %d", len(view.Questions))
	}
	for i, eq := range view.Questions {
		if eq.Question.Difficulty != model.DifficultyMedium {
			t.Errorf("question %d: expected medium difficulty, got %s", i, eq.Question.Difficulty)
		}
		if n := len(eq.Question.Options); n < 2 || n > 4 {
			t.Errorf("question %d: expected 2-4 options, got %d", i, n)
		}
		if eq.Question.CorrectIndex() != 0 {
			t.Errorf("question %d: placeholder marks the first option correct", i)
		}
	}

	// Generated questions become durable bank entries.
	bankAfter, err := s.CountBySpecialization(model.SpecGeneral)
	if err != nil {
		t.Fatalf("CountBySpecialization: %v", err)
	}
	if bankAfter != bankBefore+7 {
		t.Errorf("expected bank to grow by 7, went %d -> %d", bankBefore, bankAfter)
	}
}

func TestAssembleAIModelPreconditions(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)

	req := StartRequest{
		UserID:         userID,
		Specialization: model.SpecSoftware,
		Count:          5,
		Mode:           model.ExamTypeAI,
	}
	if _, err := svc.Assemble(context.Background(), req); !errors.Is(err, ErrMissingAIModel) {
		t.Errorf("expected ErrMissingAIModel, got %v", err)
	}

	missing := int64(9999)
	req.AIModelID = &missing
	_, err := svc.Assemble(context.Background(), req)
	var notFound *AIModelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected AIModelNotFoundError, got %v", err)
	}
	if notFound.ID != 9999 {
		t.Errorf("expected ID 9999 in error, got %d", notFound.ID)
	}

	count, _ := s.ExamCount()
	if count != 0 {
		t.Errorf("failed preconditions must create no exam, found %d", count)
	}
}

func TestAssembleAIDisabledModelPermitted(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	modelID, err := s.InsertAIModel(model.AIModel{Name: "Disabled", ModelIdentifier: "m", IsActive: false})
	if err != nil {
		t.Fatalf("InsertAIModel: %v", err)
	}

	view, err := svc.Assemble(context.Background(), StartRequest{
		UserID:         userID,
		Specialization: model.SpecNetworks,
		Count:          5,
		Mode:           model.ExamTypeAI,
		AIModelID:      &modelID,
	})
	if err != nil {
		t.Fatalf("disabled model must still be usable: %v", err)
	}
	if view.AIModel == nil || view.AIModel.IsActive {
		t.Error("view should link the inactive descriptor as-is")
	}
}

// buildExam wires an exam directly through the store so tests control
// the exact correct indices and marks of the snapshot.
func buildExam(t *testing.T, s *store.Store, userID int64, questionIDs []int64) int64 {
	t.Helper()
	examID, err := s.CreateExam(model.Exam{
		UserID:         userID,
		Title:          "test exam",
		Specialization: model.SpecSoftware,
		ExamType:       model.ExamTypeNormal,
		QuestionCount:  len(questionIDs),
		TimeLimit:      len(questionIDs) * 3 / 2,
	}, questionIDs)
	if err != nil {
		t.Fatalf("buildExam: %v", err)
	}
	return examID
}

func TestSubmitScoring(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)

	// Correct indices [0, 2, -1] with marks [2, 3, 5].
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 2, 4, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyMedium, 3, 4, 2)
	q3 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyHard, 5, 4, -1)
	examID := buildExam(t, s, userID, []int64{q1, q2, q3})

	view, err := svc.Submit(context.Background(), examID, userID, []int{0, 1, -1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if view.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", view.Status)
	}
	if view.EndTime == nil {
		t.Error("expected end_time to be set")
	}

	wantCorrect := []bool{true, false, true}
	for i, eq := range view.Questions {
		if eq.IsCorrect == nil || *eq.IsCorrect != wantCorrect[i] {
			t.Errorf("question %d: expected is_correct %v, got %v", i, wantCorrect[i], eq.IsCorrect)
		}
		if eq.UserAnswer == nil {
			t.Errorf("question %d: user_answer not persisted", i)
		}
	}
	if view.CorrectAnswers == nil || *view.CorrectAnswers != 2 {
		t.Errorf("expected 2 correct answers, got %v", view.CorrectAnswers)
	}
	if view.Score == nil || *view.Score != 7 {
		t.Errorf("expected score 7 (marks 2+5), got %v", view.Score)
	}
	if view.Percentage == nil || *view.Percentage < 66.6 || *view.Percentage > 66.7 {
		t.Errorf("expected percentage 66.66..., got %v", view.Percentage)
	}
}

func TestSubmitAnswerCountMismatch(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 4, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 4, 1)
	examID := buildExam(t, s, userID, []int64{q1, q2})

	_, err := svc.Submit(context.Background(), examID, userID, []int{0})
	var mismatch *AnswerCountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected AnswerCountMismatchError, got %v", err)
	}
	if mismatch.Expected != 2 || mismatch.Got != 1 {
		t.Errorf("expected 2/1, got %d/%d", mismatch.Expected, mismatch.Got)
	}

	// Zero writes: exam still ongoing, snapshot untouched.
	exam, err := s.GetExam(examID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Status != model.StatusOngoing {
		t.Errorf("expected exam still ongoing, got %s", exam.Status)
	}
	eqs, _ := s.GetExamQuestions(examID)
	for i, eq := range eqs {
		if eq.UserAnswer != nil || eq.IsCorrect != nil {
			t.Errorf("row %d was written despite rejected submission", i)
		}
	}
}

func TestSubmitInvalidAnswerValue(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 4, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 4, 1)
	examID := buildExam(t, s, userID, []int64{q1, q2})

	_, err := svc.Submit(context.Background(), examID, userID, []int{0, -2})
	var invalid *InvalidAnswerValueError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAnswerValueError, got %v", err)
	}
	if invalid.Index != 1 || invalid.Value != -2 {
		t.Errorf("expected index 1 value -2, got %d/%d", invalid.Index, invalid.Value)
	}
}

func TestSubmitTerminal(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 1)
	examID := buildExam(t, s, userID, []int64{q1, q2})

	first, err := svc.Submit(context.Background(), examID, userID, []int{0, 1})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	if _, err := svc.Submit(context.Background(), examID, userID, []int{1, 0}); !errors.Is(err, ErrExamAlreadyClosed) {
		t.Fatalf("expected ErrExamAlreadyClosed, got %v", err)
	}

	// Aggregates must never be recomputed.
	after, err := s.GetExam(examID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if *after.Score != *first.Score || *after.CorrectAnswers != *first.CorrectAnswers {
		t.Error("second submission changed stored results")
	}
}

func TestRoundTripPerfectScore(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	seedPool(t, s, model.SpecAI, 10)

	view, err := svc.Assemble(context.Background(), StartRequest{
		UserID:         userID,
		Specialization: model.SpecAI,
		Count:          6,
		Mode:           model.ExamTypeNormal,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	answers := make([]int, len(view.Questions))
	for i, eq := range view.Questions {
		answers[i] = eq.Question.CorrectIndex()
	}

	result, err := svc.Submit(context.Background(), view.ID, userID, answers)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.Percentage == nil || *result.Percentage != 100.0 {
		t.Errorf("expected 100%%, got %v", result.Percentage)
	}
}

func TestSubmitOwnership(t *testing.T) {
	svc, s := newMemService(t)
	owner := seedUser(t, s)
	other, err := s.CreateUser(model.User{Email: "other@example.com", Name: "Other", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 0)
	examID := buildExam(t, s, owner, []int64{q1})

	if _, err := svc.Submit(context.Background(), examID, other, []int{0}); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("expected ErrExamNotFound for foreign exam, got %v", err)
	}
	if _, err := svc.Submit(context.Background(), 424242, owner, []int{0}); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("expected ErrExamNotFound for missing exam, got %v", err)
	}
}

func TestResultAndHistory(t *testing.T) {
	svc, s := newMemService(t)
	userID := seedUser(t, s)
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 1)
	examID := buildExam(t, s, userID, []int64{q1, q2})

	if _, err := svc.Result(examID, userID); !errors.Is(err, ErrExamNotCompleted) {
		t.Errorf("expected ErrExamNotCompleted before submission, got %v", err)
	}
	history, err := svc.History(userID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("ongoing exams must not appear in history, got %d", len(history))
	}

	if _, err := svc.Submit(context.Background(), examID, userID, []int{0, 0}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := svc.Result(examID, userID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Status != model.StatusCompleted {
		t.Errorf("expected completed result, got %s", result.Status)
	}

	history, err = svc.History(userID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != examID {
		t.Errorf("expected the completed exam in history, got %v", history)
	}
}

func TestScorePure(t *testing.T) {
	q := func(marks, correctIndex int) model.Question {
		var opts []model.Option
		for i := 0; i < 3; i++ {
			opts = append(opts, model.Option{IsCorrect: i == correctIndex})
		}
		return model.Question{Marks: marks, Options: opts}
	}

	tests := []struct {
		name        string
		questions   []model.Question
		answers     []int
		wantCorrect int
		wantScore   int
		wantPct     float64
	}{
		{"all correct", []model.Question{q(1, 0), q(2, 1)}, []int{0, 1}, 2, 3, 100},
		{"all wrong", []model.Question{q(1, 0), q(2, 1)}, []int{1, 0}, 0, 0, 0},
		{"skip matches missing correct option", []model.Question{q(4, -1)}, []int{-1}, 1, 4, 100},
		{"skip on answerable question", []model.Question{q(1, 0)}, []int{-1}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, aggr := Score(tt.questions, tt.answers)
			if len(results) != len(tt.questions) {
				t.Fatalf("expected %d results, got %d", len(tt.questions), len(results))
			}
			if aggr.CorrectAnswers != tt.wantCorrect {
				t.Errorf("correct = %d, want %d", aggr.CorrectAnswers, tt.wantCorrect)
			}
			if aggr.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", aggr.Score, tt.wantScore)
			}
			if aggr.Percentage != tt.wantPct {
				t.Errorf("percentage = %f, want %f", aggr.Percentage, tt.wantPct)
			}
		})
	}
}

func TestConcurrentSubmit(t *testing.T) {
	// Two racing submissions must yield exactly one success and one
	// ErrExamAlreadyClosed, with aggregates written once. A file-backed
	// database exercises the real locking path.
	svc, s := newTestService(t, filepath.Join(t.TempDir(), "examd.db"))
	userID := seedUser(t, s)
	q1 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 0)
	q2 := seedQuestion(t, s, model.SpecSoftware, model.DifficultyEasy, 1, 2, 1)

	for iter := 0; iter < 5; iter++ {
		examID := buildExam(t, s, userID, []int64{q1, q2})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Submit(context.Background(), examID, userID, []int{0, 1})
			}(i)
		}
		wg.Wait()

		var successes, rejections int
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrExamAlreadyClosed):
				rejections++
			default:
				t.Fatalf("iteration %d: unexpected error: %v", iter, err)
			}
		}
		if successes != 1 || rejections != 1 {
			t.Fatalf("iteration %d: expected 1 success and 1 rejection, got %d/%d", iter, successes, rejections)
		}

		exam, err := s.GetExam(examID)
		if err != nil {
			t.Fatalf("GetExam: %v", err)
		}
		if exam.Status != model.StatusCompleted {
			t.Errorf("iteration %d: expected completed, got %s", iter, exam.Status)
		}
		if exam.CorrectAnswers == nil || *exam.CorrectAnswers != 2 || exam.Score == nil || *exam.Score != 2 {
			t.Errorf("iteration %d: aggregate corrupted: correct=%v score=%v", iter, exam.CorrectAnswers, exam.Score)
		}
	}
}

package exam

import (
	"errors"
	"fmt"
)

// ErrExamNotFound covers both a missing exam and an exam owned by
// another user; callers cannot distinguish the two.
var ErrExamNotFound = errors.New("exam not found")

// ErrMissingAIModel is returned when an AI exam is requested without a
// model reference.
var ErrMissingAIModel = errors.New("ai_model_id is required for AI exams")

// ErrExamAlreadyClosed is returned on submission of an exam that is no
// longer ongoing. The transition to completed is terminal; a second
// submission is rejected, never recomputed.
var ErrExamAlreadyClosed = errors.New("exam is already closed")

// ErrExamNotCompleted is returned when results are requested for an
// exam that has not been submitted yet.
var ErrExamNotCompleted = errors.New("exam is not completed yet")

// ValidationError reports malformed or out-of-range input, caught
// before any state mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AIModelNotFoundError reports an AI model reference that resolves to
// nothing.
type AIModelNotFoundError struct {
	ID int64
}

func (e *AIModelNotFoundError) Error() string {
	return fmt.Sprintf("AI model %d not found", e.ID)
}

// AnswerCountMismatchError reports an answer vector whose length does
// not match the exam's question count.
type AnswerCountMismatchError struct {
	Expected int
	Got      int
}

func (e *AnswerCountMismatchError) Error() string {
	return fmt.Sprintf("expected %d answers, got %d", e.Expected, e.Got)
}

// InvalidAnswerValueError reports an answer value below -1. Only -1
// (explicit skip) and option indices are accepted.
type InvalidAnswerValueError struct {
	Index int
	Value int
}

func (e *InvalidAnswerValueError) Error() string {
	return fmt.Sprintf("answer %d has invalid value %d", e.Index, e.Value)
}

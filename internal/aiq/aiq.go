// Package aiq generates exam questions for AI-mode exams.
//
// The exam assembler only depends on the Provider contract: count
// freshly materialized questions for a specialization, each with 2-4
// options of which exactly one is correct, difficulty medium, one mark.
package aiq

import (
	"context"
	"fmt"

	"github.com/eduplatform/examd/internal/model"
)

// Provider materializes new questions for an AI exam. Implementations
// must return questions in final exam order; the assembler uses them
// as-is with no further down-selection.
type Provider interface {
	Generate(ctx context.Context, m model.AIModel, spec model.Specialization, count int) ([]model.Question, error)
}

// ValidateDraft checks the structural contract of a generated
// question: at least one option and at most one marked correct.
// Semantic quality is not the assembler's concern.
func ValidateDraft(q model.Question) error {
	if len(q.Options) == 0 {
		return fmt.Errorf("generated question has no options")
	}
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	if correct > 1 {
		return fmt.Errorf("generated question has %d correct options", correct)
	}
	return nil
}

package aiq

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/eduplatform/examd/internal/model"
)

// Placeholder is the stub Provider used when no generation backend is
// configured. Its output names the specialization and model so the
// origin of a generated question stays visible in the bank.
type Placeholder struct {
	// Rand is used to vary the option count; nil means a fresh
	// entropy-derived source per call.
	Rand *rand.Rand
}

func (p *Placeholder) Generate(_ context.Context, m model.AIModel, spec model.Specialization, count int) ([]model.Question, error) {
	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	questions := make([]model.Question, 0, count)
	for i := 0; i < count; i++ {
		optionCount := 2 + rng.IntN(3)
		q := model.Question{
			Text:           fmt.Sprintf("AI Generated Question %d for %s (model: %s)", i+1, spec, m.Name),
			Specialization: spec,
			Marks:          1,
			Difficulty:     model.DifficultyMedium,
		}
		for j := 0; j < optionCount; j++ {
			q.Options = append(q.Options, model.Option{
				Text:      fmt.Sprintf("Option %d for question %d", j+1, i+1),
				IsCorrect: j == 0,
			})
		}
		questions = append(questions, q)
	}
	return questions, nil
}

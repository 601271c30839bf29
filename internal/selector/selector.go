// Package selector chooses a fixed ordered question set from a pool.
//
// Randomness is injected so selection is reproducible under test; when
// no source is given each call derives a fresh one from the process
// entropy source, so concurrent selections never share state.
package selector

import (
	"fmt"
	"math/rand/v2"

	"github.com/eduplatform/examd/internal/model"
)

// Policy selects the sampling strategy.
type Policy string

const (
	// PolicyUniform draws a uniform random sample from the whole pool.
	PolicyUniform Policy = "uniform"
	// PolicyStratified targets a 40/40/20 easy/medium/hard mix, with
	// the hard share absorbing the rounding remainder and any short
	// bucket topped up from the rest of the pool.
	PolicyStratified Policy = "stratified"
)

// InsufficientError reports a pool smaller than the requested count.
type InsufficientError struct {
	Available int
	Requested int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient questions: %d available, %d requested", e.Available, e.Requested)
}

// Select returns exactly count distinct questions from pool in their
// final exam order. It fails with *InsufficientError when the pool is
// smaller than count; no partial result is returned in that case.
func Select(pool []model.Question, count int, policy Policy, rng *rand.Rand) ([]model.Question, error) {
	if len(pool) < count {
		return nil, &InsufficientError{Available: len(pool), Requested: count}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	var picked []int
	switch policy {
	case PolicyStratified:
		picked = stratifiedIndices(pool, count, rng)
	default:
		picked = sampleIndices(rng, allIndices(len(pool)), count)
	}

	selected := make([]model.Question, 0, len(picked))
	for _, i := range picked {
		selected = append(selected, pool[i])
	}
	return selected, nil
}

// stratifiedIndices composes four independent samples: one per
// difficulty bucket at its target size, then a top-up drawn from the
// not-yet-selected remainder when a bucket came up short. The result
// keeps the concatenation order easy, medium, hard, top-up.
func stratifiedIndices(pool []model.Question, count int, rng *rand.Rand) []int {
	var easy, medium, hard []int
	for i, q := range pool {
		switch q.Difficulty {
		case model.DifficultyEasy:
			easy = append(easy, i)
		case model.DifficultyMedium:
			medium = append(medium, i)
		case model.DifficultyHard:
			hard = append(hard, i)
		}
	}

	easyTarget := count * 4 / 10
	mediumTarget := count * 4 / 10
	hardTarget := count - easyTarget - mediumTarget

	easyPick := sampleIndices(rng, easy, min(easyTarget, len(easy)))
	mediumPick := sampleIndices(rng, medium, min(mediumTarget, len(medium)))
	hardPick := sampleIndices(rng, hard, min(hardTarget, len(hard)))

	selected := make([]int, 0, count)
	selected = append(selected, easyPick...)
	selected = append(selected, mediumPick...)
	selected = append(selected, hardPick...)

	if shortfall := count - len(selected); shortfall > 0 {
		taken := make(map[int]bool, len(selected))
		for _, i := range selected {
			taken[i] = true
		}
		var remaining []int
		for i := range pool {
			if !taken[i] {
				remaining = append(remaining, i)
			}
		}
		selected = append(selected, sampleIndices(rng, remaining, min(shortfall, len(remaining)))...)
	}
	return selected
}

// sampleIndices draws n elements from idx without replacement. The
// input slice is not modified.
func sampleIndices(rng *rand.Rand, idx []int, n int) []int {
	shuffled := make([]int, len(idx))
	copy(shuffled, idx)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

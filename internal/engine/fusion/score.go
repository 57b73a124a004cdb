package fusion

import (
	"codefuse/internal/core/errors"
	"codefuse/internal/engine/parser"
)

// QualityScorer rates a unit from 0 to 100. It is an optional input to
// base selection, weighted by Options.QualityWeight.
type QualityScorer interface {
	Quality(unit *parser.ProgramUnit) float64
}

// QualityFunc adapts a plain function to QualityScorer.
type QualityFunc func(unit *parser.ProgramUnit) float64

func (f QualityFunc) Quality(unit *parser.ProgramUnit) float64 { return f(unit) }

// Score is 10 per function, 15 per class, plus summed function complexity
// and the unit's line count.
func Score(unit *parser.ProgramUnit) int {
	if unit == nil {
		return 0
	}
	return 10*unit.Functions.Len() + 15*unit.Classes.Len() + unit.TotalComplexity() + unit.LineCount
}

func weightedScore(unit *parser.ProgramUnit, opts Options) float64 {
	score := float64(Score(unit))
	if opts.Quality == nil || opts.QualityWeight == 0 {
		return score
	}
	q := opts.Quality.Quality(unit)
	switch {
	case q < 0:
		q = 0
	case q > 100:
		q = 100
	}
	return score + opts.QualityWeight*q
}

// SelectBase returns the index of the highest scoring unit. Ties go to the
// unit that appears first in the set.
func SelectBase(set VersionSet, opts Options) (int, error) {
	if len(set) == 0 {
		return -1, errors.New(errors.CodeEmptyInput, "version set is empty")
	}
	best := -1
	var bestScore float64
	for i, unit := range set {
		if unit == nil {
			continue
		}
		s := weightedScore(unit, opts)
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return -1, errors.New(errors.CodeEmptyInput, "version set has no units")
	}
	return best, nil
}

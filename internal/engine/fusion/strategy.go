package fusion

import (
	"fmt"
	"strings"
	"time"

	"codefuse/internal/core/errors"
	"codefuse/internal/engine/compare"
	"codefuse/internal/engine/parser"
)

// Strategy names a conflict resolution mode. Only StrategyManual changes
// where conflicts are routed; no strategy alters the synthesized text.
type Strategy string

const (
	StrategyManual          Strategy = "manual"
	StrategyKeepLargest     Strategy = "keep_largest"
	StrategyKeepMostComplex Strategy = "keep_most_complex"
	StrategyKeepNewest      Strategy = "keep_newest"
	StrategyKeepAll         Strategy = "keep_all"
)

var strategies = []Strategy{
	StrategyManual,
	StrategyKeepLargest,
	StrategyKeepMostComplex,
	StrategyKeepNewest,
	StrategyKeepAll,
}

// Strategies lists the accepted modes.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	return out
}

// ParseStrategy accepts the snake_case mode name, case-insensitively.
// An empty value selects StrategyManual.
func ParseStrategy(value string) (Strategy, error) {
	v := Strategy(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return StrategyManual, nil
	}
	for _, s := range strategies {
		if s == v {
			return s, nil
		}
	}
	return "", errors.New(errors.CodeValidationError, fmt.Sprintf("unknown strategy %q", value))
}

// Resolution is the advisory verdict of a non-manual strategy on one
// conflict. Kept is the unit whose implementation is in the output; Winner
// is the unit the strategy prefers, empty for keep_all.
type Resolution struct {
	Conflict compare.ConflictRecord `json:"conflict"`
	Strategy Strategy               `json:"strategy"`
	Kept     string                 `json:"kept"`
	Winner   string                 `json:"winner,omitempty"`
	Note     string                 `json:"note"`
}

// Agrees reports whether the strategy's preferred unit is the one kept.
func (r Resolution) Agrees() bool {
	return r.Winner == "" || r.Winner == r.Kept
}

func resolve(strategy Strategy, rec compare.ConflictRecord, kept string, modTimes map[string]time.Time) Resolution {
	res := Resolution{Conflict: rec, Strategy: strategy, Kept: kept}

	switch strategy {
	case StrategyKeepLargest:
		res.Winner = pickMax(rec.Summaries, func(s compare.UnitSummary) int64 { return int64(s.Lines) })
	case StrategyKeepMostComplex:
		res.Winner = pickMax(rec.Summaries, func(s compare.UnitSummary) int64 { return int64(s.Measure) })
	case StrategyKeepNewest:
		res.Winner = pickMax(rec.Summaries, func(s compare.UnitSummary) int64 {
			if t := modTimes[s.UnitID]; !t.IsZero() {
				return t.UnixNano()
			}
			return 0
		})
	case StrategyKeepAll:
		res.Note = fmt.Sprintf("%d implementations retained for review; output keeps %s", len(rec.Summaries), kept)
		return res
	}

	if res.Agrees() {
		res.Note = fmt.Sprintf("%s agrees with kept version from %s", strategy, kept)
	} else {
		res.Note = fmt.Sprintf("%s prefers %s; output keeps %s", strategy, res.Winner, kept)
	}
	return res
}

// pickMax returns the unit with the highest key, first-seen on ties.
func pickMax(summaries []compare.UnitSummary, key func(compare.UnitSummary) int64) string {
	winner := ""
	var best int64
	for i, s := range summaries {
		k := key(s)
		if i == 0 || k > best {
			winner, best = s.UnitID, k
		}
	}
	return winner
}

// keptUnit is the unit whose declaration ends up in the output: the base
// if it declares the name, otherwise the first unit in set order that does.
func keptUnit(set VersionSet, base *parser.ProgramUnit, kind parser.DeclKind, name string) string {
	if _, ok := base.Lookup(kind, name); ok {
		return base.ID
	}
	for _, u := range set {
		if u == base {
			continue
		}
		if _, ok := u.Lookup(kind, name); ok {
			return u.ID
		}
	}
	return ""
}

package engine

import (
	"context"
	"math"
	"sort"
	"time"
	"tripdesk/pkg/model"
)

// hourProbes are the per-day time offsets tried around the desired hour,
// nearest first.
var hourProbes = []int{0, 1, -1, 2, -2}

const (
	searchDaysBefore = 7
	searchDaysAfter  = 14
)

// Suggest searches the window around the desired date for alternatives that
// pass a full evaluation, then ranks them. The search is greedy and stops
// collecting once count valid candidates are found, so the result is the
// first count hits re-ranked, not a global optimum.
func (e *Engine) Suggest(ctx context.Context, booking *model.Booking, desired time.Time, actor model.Actor, count int) ([]model.Suggestion, error) {
	if count <= 0 {
		count = e.cfg.DefaultSuggestionCount
	}

	suggestions := make([]model.Suggestion, 0, count)

search:
	for dayOffset := -searchDaysBefore; dayOffset <= searchDaysAfter; dayOffset++ {
		if dayOffset == 0 {
			continue
		}

		day := desired.AddDate(0, 0, dayOffset)
		for _, hourOffset := range hourProbes {
			candidate := day.Add(time.Duration(hourOffset) * time.Hour)

			verdict, err := e.Evaluate(ctx, booking, candidate, "", actor)
			if err != nil {
				return nil, err
			}
			if !verdict.Valid {
				continue
			}

			suggestions = append(suggestions, model.Suggestion{
				CandidateTime: candidate,
				Available:     verdict.Availability.Available,
				Conflicts:     verdict.Availability.Conflicts,
				Penalty:       verdict.Penalty,
				Score:         score(desired, candidate, verdict),
			})

			if len(suggestions) >= count {
				break search
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	if len(suggestions) > count {
		suggestions = suggestions[:count]
	}

	return suggestions, nil
}

// score ranks a valid candidate: closeness to the desired date, an
// availability bonus, and a penalty adjustment.
func score(desired, candidate time.Time, verdict *model.Verdict) float64 {
	days := math.Abs(candidate.Sub(desired).Hours() / 24)

	closeness := math.Max(0, 10-days)

	availabilityBonus := 0.0
	if verdict.Availability.Available {
		availabilityBonus = 5
	}

	penaltyAdjustment := 2.0
	if verdict.Penalty.Applies {
		penaltyAdjustment = -2
	}

	return closeness + availabilityBonus + penaltyAdjustment
}

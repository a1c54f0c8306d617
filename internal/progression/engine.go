// Package progression turns recorded performance into the next
// weight/rep target for an exercise. The engine is pure: callers load
// the history and persist or display the result.
package progression

import (
	"fmt"
	"math"

	"github.com/claude/repcoach/internal/models"
)

// Conservative starting point when a trainee has no recorded history
// for an exercise.
const (
	initialWeightKg = 20.0
	initialReps     = 10
)

// weightIncrement is the practical plate step recommendations are
// rounded to.
const weightIncrement = 2.5

// Recommend evaluates the most recent completed session in history
// (ordered newest first) and produces the next target.
//
// Rules, in order:
//   - no history: conservative default, confidence 0.
//   - all sets completed at or above target reps:
//     avg RPE ≤ 7   → weight × 1.075
//     avg RPE ≤ 8.5 → weight × 1.025
//     avg RPE > 8.5 → same weight, reps + 1
//   - sets missing: completion < 50% → weight × 0.9, else repeat.
func Recommend(history []models.SessionPerformance) models.ProgressionRecommendation {
	if len(history) == 0 {
		return models.ProgressionRecommendation{
			Category:   models.ProgressionInitial,
			WeightKg:   initialWeightKg,
			Reps:       initialReps,
			Confidence: 0,
			Rationale:  []string{"no prior history for this exercise", "starting with a conservative default"},
		}
	}

	last := history[0]
	sets := workingSets(last.Sets)
	if len(sets) == 0 {
		// A session that planned only warmups carries no signal.
		return models.ProgressionRecommendation{
			Category:   models.ProgressionInitial,
			WeightKg:   initialWeightKg,
			Reps:       initialReps,
			Confidence: 0,
			Rationale:  []string{"last session contained no working sets"},
		}
	}

	weight, reps := topSet(sets)

	completed := 0
	allAtTarget := true
	for _, s := range sets {
		if s.Completed {
			completed++
			if s.ActualReps < s.TargetReps {
				allAtTarget = false
			}
		} else {
			allAtTarget = false
		}
	}

	if completed == len(sets) && allAtTarget {
		avg, hasRPE := averageRPE(sets)
		switch {
		case !hasRPE || avg <= 7:
			r := models.ProgressionRecommendation{
				Category:   models.ProgressionIncreaseWeight,
				WeightKg:   roundToIncrement(weight * 1.075),
				Reps:       reps,
				Confidence: 95,
				Rationale:  []string{"completed all repetitions in every set"},
			}
			if hasRPE {
				r.Rationale = append(r.Rationale, fmt.Sprintf("average RPE %.1f ≤ 7, effort has headroom", avg))
			} else {
				r.Rationale = append(r.Rationale, "no exertion data reported, assuming headroom")
			}
			return r
		case avg <= 8.5:
			return models.ProgressionRecommendation{
				Category:   models.ProgressionSmallIncrease,
				WeightKg:   roundToIncrement(weight * 1.025),
				Reps:       reps,
				Confidence: 85,
				Rationale: []string{
					"completed all repetitions in every set",
					fmt.Sprintf("average RPE %.1f is moderately hard, small load bump", avg),
				},
			}
		default:
			return models.ProgressionRecommendation{
				Category:   models.ProgressionIncreaseReps,
				WeightKg:   weight,
				Reps:       reps + 1,
				Confidence: 80,
				Rationale: []string{
					"completed all repetitions in every set",
					fmt.Sprintf("average RPE %.1f is near maximal, holding weight and adding a rep", avg),
				},
			}
		}
	}

	rate := float64(completed) / float64(len(sets))
	if rate < 0.5 {
		return models.ProgressionRecommendation{
			Category:   models.ProgressionDecreaseWeight,
			WeightKg:   roundToIncrement(weight * 0.9),
			Reps:       reps,
			Confidence: 90,
			Rationale: []string{
				fmt.Sprintf("only %d of %d sets completed", completed, len(sets)),
				"reducing load to rebuild volume",
			},
		}
	}
	return models.ProgressionRecommendation{
		Category:   models.ProgressionMaintain,
		WeightKg:   weight,
		Reps:       reps,
		Confidence: 75,
		Rationale: []string{
			fmt.Sprintf("%d of %d sets completed", completed, len(sets)),
			"repeating the same target before progressing",
		},
	}
}

// workingSets drops warmups; they are ramp-up work and do not gate
// progression. When a session recorded nothing but warmups the caller
// falls back to the initial rule.
func workingSets(sets []models.SetPerformance) []models.SetPerformance {
	var out []models.SetPerformance
	for _, s := range sets {
		if s.Type != models.SetWarmup {
			out = append(out, s)
		}
	}
	return out
}

// topSet returns the heaviest completed set's weight and its target
// reps. When no set was completed with weight on the bar it falls back
// to the heaviest prescribed weight, so a fully missed session still
// yields a usable load for the decrease rule.
func topSet(sets []models.SetPerformance) (float64, int) {
	weight := 0.0
	reps := sets[0].TargetReps
	for _, s := range sets {
		if s.Completed && s.ActualWeightKg > weight {
			weight = s.ActualWeightKg
			reps = s.TargetReps
		}
	}
	if weight == 0 {
		for _, s := range sets {
			if s.TargetWeightKg != nil && *s.TargetWeightKg > weight {
				weight = *s.TargetWeightKg
				reps = s.TargetReps
			}
		}
	}
	return weight, reps
}

// averageRPE averages reported exertion over sets that carry a
// meaningful value (6..10). Lower reports are treated as noise.
func averageRPE(sets []models.SetPerformance) (float64, bool) {
	sum, n := 0, 0
	for _, s := range sets {
		if s.RPE != nil && models.MeaningfulRPE(*s.RPE) {
			sum += *s.RPE
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

func roundToIncrement(w float64) float64 {
	return math.Round(w/weightIncrement) * weightIncrement
}

package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

const maxRationale = 3

// Scorer measures candidates against soft preference weights.
type Scorer struct{}

// NewScorer constructs a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the candidate with its preference score set, plus the detail
// retained for explain queries. Sub-scores are clamped before weighting so no
// dimension can contribute more than its share of the declared weight.
func (s *Scorer) Score(c models.ScheduleCandidate, prefs models.PreferenceSet, period bidPeriod) (models.ScheduleCandidate, models.ScoreBreakdown) {
	breakdown := models.ScoreBreakdown{
		CandidateID:   c.ID,
		Weights:       make(map[string]float64),
		SubScores:     make(map[string]float64),
		Contributions: make(map[string]float64),
	}

	totalWeight := 0.0
	for _, dimension := range models.Dimensions {
		weight := prefs.Weight(dimension)
		breakdown.SubScores[dimension] = round4(subScore(dimension, c, prefs, period))
		if weight > 0 {
			breakdown.Weights[dimension] = weight
			totalWeight += weight
		}
	}

	switch {
	case c.Degenerate:
		for _, dimension := range models.Dimensions {
			breakdown.SubScores[dimension] = 0
		}
		breakdown.Rationale = []string{fmt.Sprintf("No eligible trips satisfy the hard constraints for %s", period.Month)}
	case totalWeight == 0:
		breakdown.Rationale = []string{"No soft preferences declared; ranked by rule warnings and duty days"}
	default:
		score := 0.0
		for _, dimension := range models.Dimensions {
			weight, ok := breakdown.Weights[dimension]
			if !ok {
				continue
			}
			contribution := weight * breakdown.SubScores[dimension] / totalWeight
			breakdown.Contributions[dimension] = round4(contribution)
			breakdown.Penalties += weight * (1 - breakdown.SubScores[dimension]) / totalWeight
			score += contribution
		}
		breakdown.Score = round4(clamp01(score))
		breakdown.Penalties = round4(clamp01(breakdown.Penalties))
		breakdown.Rationale = rationale(breakdown, c, prefs, period)
	}

	c.Score = breakdown.Score
	return c, breakdown
}

// Rank orders candidates by score desc, then fewer warnings, then fewer duty
// days, then candidate id. The order is total.
func (s *Scorer) Rank(candidates []models.ScheduleCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Warnings) != len(b.Warnings) {
			return len(a.Warnings) < len(b.Warnings)
		}
		if a.DutyDays != b.DutyDays {
			return a.DutyDays < b.DutyDays
		}
		return a.ID < b.ID
	})
}

func subScore(dimension string, c models.ScheduleCandidate, prefs models.PreferenceSet, period bidPeriod) float64 {
	if c.Degenerate {
		return 0
	}
	switch dimension {
	case models.DimensionWeekend:
		if period.WeekendDays == 0 {
			return 1
		}
		return clamp01(1 - float64(c.WeekendDays)/float64(period.WeekendDays))
	case models.DimensionCredit:
		target := prefs.Targets.CreditHours
		if target <= 0 {
			target = models.DefaultCreditGoal
		}
		return clamp01(1 - math.Abs(c.TotalCredit-target)/target)
	case models.DimensionTrip:
		sum := 0.0
		for _, p := range c.Pairings {
			sum += tripLengthFit(p.DutyDays(), prefs.Targets.TripLength)
		}
		return clamp01(sum / float64(len(c.Pairings)))
	case models.DimensionLayover:
		return layoverFit(c.Pairings, prefs.Targets.LayoverCities)
	case models.DimensionRedEye:
		return clamp01(1 - float64(c.RedEyeCount)/float64(len(c.Pairings)))
	case models.DimensionDaysOff:
		if period.Days == 0 {
			return 0
		}
		return clamp01(float64(period.Days-c.DutyDays) / float64(period.Days))
	}
	return 0
}

func rationale(b models.ScoreBreakdown, c models.ScheduleCandidate, prefs models.PreferenceSet, period bidPeriod) []string {
	dims := make([]string, 0, len(b.Contributions))
	for dimension, contribution := range b.Contributions {
		if contribution > 0 {
			dims = append(dims, dimension)
		}
	}
	sort.Slice(dims, func(i, j int) bool {
		ci, cj := b.Contributions[dims[i]], b.Contributions[dims[j]]
		if ci != cj {
			return ci > cj
		}
		return dims[i] < dims[j]
	})
	if len(dims) > maxRationale {
		dims = dims[:maxRationale]
	}
	out := make([]string, 0, len(dims))
	for _, dimension := range dims {
		out = append(out, describeDimension(dimension, b, c, prefs, period))
	}
	if len(out) == 0 {
		out = append(out, "No declared preference is met by this schedule")
	}
	return out
}

func describeDimension(dimension string, b models.ScoreBreakdown, c models.ScheduleCandidate, prefs models.PreferenceSet, period bidPeriod) string {
	weight := b.Weights[dimension]
	switch dimension {
	case models.DimensionWeekend:
		off := period.WeekendDays - c.WeekendDays
		if off < 0 {
			off = 0
		}
		return fmt.Sprintf("Keeps %d of %d weekend days off (weight %.2f)", off, period.WeekendDays, weight)
	case models.DimensionCredit:
		return fmt.Sprintf("%.1f credit hours against a %.0f hour target (weight %.2f)", c.TotalCredit, prefs.Targets.CreditHours, weight)
	case models.DimensionTrip:
		return fmt.Sprintf("Trip lengths match the %d-day preference at %.0f%% (weight %.2f)", prefs.Targets.TripLength, b.SubScores[dimension]*100, weight)
	case models.DimensionLayover:
		if len(prefs.Targets.LayoverCities) == 0 {
			return fmt.Sprintf("%d layovers with no preferred city declared (weight %.2f)", c.LayoverCount, weight)
		}
		return fmt.Sprintf("%.0f%% of layovers in %s (weight %.2f)", b.SubScores[dimension]*100, strings.Join(prefs.Targets.LayoverCities, ", "), weight)
	case models.DimensionRedEye:
		return fmt.Sprintf("%d red-eye pairings out of %d (weight %.2f)", c.RedEyeCount, len(c.Pairings), weight)
	case models.DimensionDaysOff:
		return fmt.Sprintf("%d days off in %s (weight %.2f)", period.Days-c.DutyDays, period.Month, weight)
	}
	return dimension
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

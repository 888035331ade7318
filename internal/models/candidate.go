package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ScheduleCandidate is an ordered set of non-overlapping pairings for one bid period.
type ScheduleCandidate struct {
	ID           string        `json:"candidate_id"`
	Month        string        `json:"month"`
	Pairings     []TripPairing `json:"pairings"`
	TotalCredit  float64       `json:"total_credit"`
	TotalBlock   float64       `json:"total_block"`
	DutyDays     int           `json:"duty_days"`
	WeekendDays  int           `json:"weekend_days"`
	RedEyeCount  int           `json:"red_eye_count"`
	LayoverCount int           `json:"layover_count"`
	Score        float64       `json:"score"`
	Warnings     []string      `json:"warnings,omitempty"`
	Degenerate   bool          `json:"degenerate"`
	Heuristic    bool          `json:"heuristic"`
}

// NewScheduleCandidate builds a candidate with derived aggregates. Pairings are
// ordered by report time, ties by id.
func NewScheduleCandidate(month string, pairings []TripPairing) ScheduleCandidate {
	ordered := make([]TripPairing, len(pairings))
	copy(ordered, pairings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ReportAt.Equal(ordered[j].ReportAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].ReportAt.Before(ordered[j].ReportAt)
	})

	c := ScheduleCandidate{Month: month, Pairings: ordered}
	for _, p := range ordered {
		c.TotalCredit += p.CreditHours
		c.TotalBlock += p.BlockHours
		c.DutyDays += p.DutyDays()
		c.WeekendDays += p.WeekendDays()
		c.LayoverCount += len(p.Layovers)
		if p.RedEye {
			c.RedEyeCount++
		}
	}
	c.ID = CandidateID(month, ordered)
	c.Degenerate = len(ordered) == 0
	return c
}

// PairingIDs returns the pairing ids in schedule order.
func (c ScheduleCandidate) PairingIDs() []string {
	ids := make([]string, 0, len(c.Pairings))
	for _, p := range c.Pairings {
		ids = append(ids, p.ID)
	}
	return ids
}

// CandidateID derives a stable identifier from the bid period and the trip-id multiset.
func CandidateID(month string, pairings []TripPairing) string {
	ids := make([]string, 0, len(pairings))
	for _, p := range pairings {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(month + "|" + strings.Join(ids, ",")))
	return "cand_" + hex.EncodeToString(sum[:])[:16]
}

// ValidationResult reports rule compliance. Score is the fraction of checked
// rules that passed cleanly.
type ValidationResult struct {
	Score      float64  `json:"score"`
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}

// Feasible reports whether no hard rule failed.
func (v ValidationResult) Feasible() bool {
	return len(v.Violations) == 0
}

// ScoreBreakdown retains the scoring detail of one candidate.
type ScoreBreakdown struct {
	CandidateID   string             `json:"candidate_id"`
	Score         float64            `json:"score"`
	Weights       map[string]float64 `json:"weights"`
	SubScores     map[string]float64 `json:"sub_scores"`
	Contributions map[string]float64 `json:"contributions"`
	Penalties     float64            `json:"penalties"`
	Rationale     []string           `json:"rationale"`
}

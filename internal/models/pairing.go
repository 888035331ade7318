package models

import (
	"time"
)

// PilotProfile identifies the bidder and the context the bid is compiled in.
type PilotProfile struct {
	Airline   string   `json:"airline" validate:"omitempty,max=8"`
	Base      string   `json:"base" validate:"omitempty,max=8"`
	Seat      string   `json:"seat" validate:"omitempty,max=16"`
	Equipment []string `json:"equipment"`
}

// QualifiedFor reports whether the pilot may fly the given equipment type.
// An empty equipment list on either side means unrestricted.
func (p PilotProfile) QualifiedFor(equipment string) bool {
	if equipment == "" || len(p.Equipment) == 0 {
		return true
	}
	for _, eq := range p.Equipment {
		if eq == equipment {
			return true
		}
	}
	return false
}

// TripPairing is a single flyable work sequence, report to release.
type TripPairing struct {
	ID            string    `json:"id" validate:"required"`
	Route         []string  `json:"route"`
	Equipment     string    `json:"equipment,omitempty"`
	DurationDays  int       `json:"duration_days"`
	BlockHours    float64   `json:"block_hours" validate:"min=0"`
	CreditHours   float64   `json:"credit_hours" validate:"min=0"`
	Layovers      []string  `json:"layovers"`
	ReportAt      time.Time `json:"report_at" validate:"required"`
	ReleaseAt     time.Time `json:"release_at" validate:"required"`
	RedEye        bool      `json:"red_eye"`
	International bool      `json:"international"`
}

// Dates returns every calendar date (UTC midnight) the pairing touches.
func (p TripPairing) Dates() []time.Time {
	start := truncateDay(p.ReportAt)
	end := truncateDay(p.ReleaseAt)
	if end.Before(start) {
		end = start
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DutyDays is the number of calendar days spanned. DurationDays wins when the
// source supplied it.
func (p TripPairing) DutyDays() int {
	if p.DurationDays > 0 {
		return p.DurationDays
	}
	return len(p.Dates())
}

// WeekendDays counts Saturdays and Sundays touched by the pairing.
func (p TripPairing) WeekendDays() int {
	count := 0
	for _, d := range p.Dates() {
		if IsWeekend(d) {
			count++
		}
	}
	return count
}

// Overlaps reports whether two pairings share any part of their report-to-release span.
func (p TripPairing) Overlaps(other TripPairing) bool {
	return p.ReportAt.Before(other.ReleaseAt) && other.ReportAt.Before(p.ReleaseAt)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

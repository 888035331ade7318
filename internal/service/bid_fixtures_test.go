package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

// March 2026 starts on a Sunday; weekends fall on 1, 7-8, 14-15, 21-22 and 28-29.
const testMonth = "2026-03"

type pairingOption func(*models.TripPairing)

func withLayovers(cities ...string) pairingOption {
	return func(p *models.TripPairing) { p.Layovers = cities }
}

func withRedEye() pairingOption {
	return func(p *models.TripPairing) { p.RedEye = true }
}

func withInternational() pairingOption {
	return func(p *models.TripPairing) { p.International = true }
}

func withEquipment(eq string) pairingOption {
	return func(p *models.TripPairing) { p.Equipment = eq }
}

// testPairing reports at 06:00 on the given March day and releases at 18:00 on
// its last duty day.
func testPairing(id string, day, days int, credit float64, opts ...pairingOption) models.TripPairing {
	report := time.Date(2026, time.March, day, 6, 0, 0, 0, time.UTC)
	p := models.TripPairing{
		ID:           id,
		Route:        []string{"DEN", "XXX", "DEN"},
		Equipment:    "737",
		DurationDays: days,
		BlockHours:   credit * 0.8,
		CreditHours:  credit,
		ReportAt:     report,
		ReleaseAt:    report.AddDate(0, 0, days-1).Add(12 * time.Hour),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// weekdayPool has no weekend duty; P-WKND touches Saturday 7 March.
func weekdayPool() []models.TripPairing {
	return []models.TripPairing{
		testPairing("P100", 2, 3, 18, withLayovers("SEA", "PDX")),
		testPairing("P200", 9, 2, 12, withLayovers("BOS")),
		testPairing("P300", 16, 3, 19, withLayovers("SEA", "SFO")),
		testPairing("P400", 23, 4, 26, withLayovers("ORD", "LGA", "SEA")),
		testPairing("P500", 5, 1, 7),
		testPairing("P-WKND", 6, 3, 20, withLayovers("LAX", "LAS")),
	}
}

func testPeriod(t *testing.T) bidPeriod {
	t.Helper()
	period, err := parseBidPeriod(testMonth)
	require.NoError(t, err)
	return period
}

func testEngine(t *testing.T) *RuleEngine {
	t.Helper()
	rules, err := LoadRuleCatalogue("", nil)
	require.NoError(t, err)
	engine, err := NewRuleEngine(rules, 4, nil)
	require.NoError(t, err)
	return engine
}

func testProfile() models.PilotProfile {
	return models.PilotProfile{Airline: "UA", Base: "DEN", Seat: "FO", Equipment: []string{"737"}}
}

func maxDuty(days int) *int {
	return &days
}

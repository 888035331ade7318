package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

func TestRuleEngineValidateCleanSchedule(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	c := models.NewScheduleCandidate(testMonth, []models.TripPairing{
		testPairing("P100", 2, 3, 18),
		testPairing("P200", 9, 2, 12),
	})

	result := engine.Validate(c, testProfile(), period, engine.Rules())

	assert.True(t, result.Feasible())
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1.0, result.Score)
}

func TestRuleEngineValidateReportsVersionedViolations(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	// second pairing reports 6 hours after the first releases
	first := testPairing("P100", 2, 3, 18)
	second := testPairing("P200", 5, 1, 6)
	second.ReportAt = first.ReleaseAt.Add(6 * time.Hour)
	second.ReleaseAt = second.ReportAt.Add(10 * time.Hour)
	c := models.NewScheduleCandidate(testMonth, []models.TripPairing{first, second})

	result := engine.Validate(c, testProfile(), period, engine.Rules())

	require.False(t, result.Feasible())
	require.Len(t, result.Violations, 1)
	assert.True(t, strings.HasPrefix(result.Violations[0], "far117.min_rest@1:"))
	assert.Less(t, result.Score, 1.0)
}

func TestRuleEngineOverlapAndPeriod(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	april := testPairing("P900", 2, 2, 10)
	april.ReportAt = april.ReportAt.AddDate(0, 1, 0)
	april.ReleaseAt = april.ReleaseAt.AddDate(0, 1, 0)

	overlap := models.NewScheduleCandidate(testMonth, []models.TripPairing{
		testPairing("P100", 2, 3, 18),
		testPairing("P101", 3, 2, 10),
	})
	result := engine.Validate(overlap, testProfile(), period, engine.Rules())
	assert.Contains(t, strings.Join(result.Violations, "|"), "schedule.no_overlap@builtin")

	outside := models.NewScheduleCandidate(testMonth, []models.TripPairing{april})
	result = engine.Validate(outside, testProfile(), period, engine.Rules())
	assert.Contains(t, strings.Join(result.Violations, "|"), "schedule.within_bid_period@builtin")
}

func TestRuleEngineNoReportAfterRedEye(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	redEye := testPairing("P100", 2, 1, 8, withRedEye())
	redEye.ReleaseAt = time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC)
	next := testPairing("P200", 3, 1, 8)
	next.ReportAt = time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	next.ReleaseAt = next.ReportAt.Add(8 * time.Hour)

	c := models.NewScheduleCandidate(testMonth, []models.TripPairing{redEye, next})
	result := engine.Validate(c, testProfile(), period, engine.Rules())

	assert.Contains(t, strings.Join(result.Violations, "|"), "contract.no_report_after_red_eye@3")
}

func TestRuleEnginePreferenceRules(t *testing.T) {
	engine := testEngine(t)
	prefs := models.PreferenceSet{Hard: models.HardConstraints{NoWeekends: true, NoRedEyes: true, DomesticOnly: true, MaxDutyDays: maxDuty(4)}}

	rules := engine.RulesFor(prefs)

	names := make([]string, 0)
	for _, r := range rules {
		if strings.HasPrefix(r.Name, models.PreferenceRulePrefix) {
			names = append(names, r.Name)
			assert.Equal(t, models.PreferenceRuleVersion, r.Version)
		}
	}
	assert.Equal(t, []string{"pref.no_weekends", "pref.no_red_eyes", "pref.domestic_only", "pref.max_duty_days", "pref.near_max_duty_days"}, names)
	assert.Len(t, engine.Rules(), len(rules)-len(names))
}

func TestRuleEngineEquipmentQualification(t *testing.T) {
	engine := testEngine(t)
	c := models.NewScheduleCandidate(testMonth, []models.TripPairing{testPairing("P100", 2, 2, 10, withEquipment("787"))})

	result := engine.Validate(c, testProfile(), testPeriod(t), engine.Rules())
	assert.False(t, result.Feasible())

	unrestricted := models.PilotProfile{}
	result = engine.Validate(c, unrestricted, testPeriod(t), engine.Rules())
	assert.True(t, result.Feasible())
}

func TestRuleEngineFilterPoolIsSound(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	pool := append(weekdayPool(),
		testPairing("P600", 10, 2, 12, withRedEye()),
		testPairing("P700", 12, 2, 14, withInternational()),
		testPairing("P800", 18, 5, 30),
	)
	prefs := models.PreferenceSet{Hard: models.HardConstraints{NoWeekends: true, NoRedEyes: true, DomesticOnly: true, MaxDutyDays: maxDuty(4)}}

	result := engine.FilterPool(context.Background(), pool, testProfile(), period, engine.RulesFor(prefs))

	require.False(t, result.Partial)
	ids := make([]string, 0, len(result.Eligible))
	for _, p := range result.Eligible {
		ids = append(ids, p.ID)
		assert.Zero(t, p.WeekendDays())
		assert.False(t, p.RedEye)
		assert.False(t, p.International)
		assert.LessOrEqual(t, p.DutyDays(), 4)
	}
	assert.Equal(t, []string{"P100", "P500", "P200", "P300", "P400"}, ids)
	for _, id := range []string{"P-WKND", "P600", "P700", "P800"} {
		assert.Contains(t, result.Rejected, id)
	}
}

func TestRuleEngineFilterPoolExpiredContext(t *testing.T) {
	engine := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.FilterPool(ctx, weekdayPool(), testProfile(), testPeriod(t), engine.Rules())

	assert.True(t, result.Partial)
}

func TestRuleEngineValidateCandidatesKeepsOrder(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	pool := weekdayPool()
	candidates := []models.ScheduleCandidate{
		models.NewScheduleCandidate(testMonth, pool[:1]),
		models.NewScheduleCandidate(testMonth, []models.TripPairing{pool[0], pool[0]}),
		models.NewScheduleCandidate(testMonth, pool[1:2]),
	}

	results, err := engine.ValidateCandidates(context.Background(), candidates, testProfile(), period, engine.Rules())

	require.NoError(t, err)
	require.Len(t, results, len(candidates))
	for i, c := range candidates {
		require.NotNil(t, results[i])
		assert.Equal(t, engine.Validate(c, testProfile(), period, engine.Rules()), *results[i])
	}
	assert.True(t, results[0].Feasible())
	assert.False(t, results[1].Feasible())
}

func TestRuleEngineValidateCandidatesExpiredContext(t *testing.T) {
	engine := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	candidates := []models.ScheduleCandidate{models.NewScheduleCandidate(testMonth, weekdayPool()[:1])}

	results, err := engine.ValidateCandidates(ctx, candidates, testProfile(), testPeriod(t), engine.Rules())

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Nil(t, results[0])
}

func TestRuleEngineValidatePreferences(t *testing.T) {
	engine := testEngine(t)
	period := testPeriod(t)
	ctx := context.Background()

	t.Run("feasible", func(t *testing.T) {
		prefs := models.PreferenceSet{Hard: models.HardConstraints{NoWeekends: true, MaxDutyDays: maxDuty(4)}}
		result := engine.ValidatePreferences(ctx, prefs, nil, weekdayPool(), testProfile(), period)
		assert.Empty(t, result.Violations)
		assert.Equal(t, 1.0, result.Score)
	})

	t.Run("notes become warnings", func(t *testing.T) {
		result := engine.ValidatePreferences(ctx, models.PreferenceSet{}, []string{"ignored unknown soft preference \"golf\""}, weekdayPool(), testProfile(), period)
		require.Len(t, result.Warnings, 1)
		assert.Less(t, result.Score, 1.0)
	})

	t.Run("empty pool", func(t *testing.T) {
		result := engine.ValidatePreferences(ctx, models.PreferenceSet{}, nil, nil, testProfile(), period)
		require.Len(t, result.Violations, 1)
		assert.Contains(t, result.Violations[0], "no trip pairings")
	})

	t.Run("constraint eliminates everything", func(t *testing.T) {
		pool := []models.TripPairing{testPairing("P-WKND", 6, 3, 20)}
		prefs := models.PreferenceSet{Hard: models.HardConstraints{NoWeekends: true}}
		result := engine.ValidatePreferences(ctx, prefs, nil, pool, testProfile(), period)
		assert.Contains(t, strings.Join(result.Violations, "|"), "pref.no_weekends eliminates every pairing")
		assert.Contains(t, strings.Join(result.Violations, "|"), "no pairing satisfies all hard constraints together")
	})

	t.Run("limit above contract", func(t *testing.T) {
		prefs := models.PreferenceSet{Hard: models.HardConstraints{MaxDutyDays: maxDuty(25)}}
		result := engine.ValidatePreferences(ctx, prefs, nil, weekdayPool(), testProfile(), period)
		assert.Contains(t, strings.Join(result.Warnings, "|"), "exceeds the contract limit of 20")
	})

	t.Run("heavy elimination", func(t *testing.T) {
		pool := []models.TripPairing{
			testPairing("P100", 2, 3, 18),
			testPairing("R1", 9, 1, 8, withRedEye()),
			testPairing("R2", 10, 1, 8, withRedEye()),
			testPairing("R3", 11, 1, 8, withRedEye()),
			testPairing("R4", 12, 1, 8, withRedEye()),
			testPairing("R5", 16, 1, 8, withRedEye()),
		}
		prefs := models.PreferenceSet{Hard: models.HardConstraints{NoRedEyes: true}}
		result := engine.ValidatePreferences(ctx, prefs, nil, pool, testProfile(), period)
		assert.Empty(t, result.Violations)
		assert.Contains(t, strings.Join(result.Warnings, "|"), "eliminate 83% of the trip pool")
	})
}

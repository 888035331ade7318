package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

const eliminationWarningRatio = 0.8

// builtinRules guard the structural schedule invariants and always run first.
var builtinRules = []models.Rule{
	{Name: "schedule.no_overlap", Version: models.BuiltinRuleVersion, Type: models.RuleNoOverlap, Severity: models.SeverityHard},
	{Name: "schedule.within_bid_period", Version: models.BuiltinRuleVersion, Type: models.RuleWithinPeriod, Severity: models.SeverityHard},
}

// ruleCheck evaluates one rule against a schedule. It returns an empty string
// when the rule passes, otherwise a description of the failure.
type ruleCheck func(rule models.Rule, c models.ScheduleCandidate, profile models.PilotProfile, period bidPeriod) string

var ruleChecks = map[string]ruleCheck{
	models.RuleMaxDutyDays:         checkMaxDutyDays,
	models.RuleMaxCreditHours:      checkMaxCreditHours,
	models.RuleMaxBlockHours:       checkMaxBlockHours,
	models.RuleMinRestHours:        checkMinRest,
	models.RuleNoReportAfterRedEye: checkNoReportAfterRedEye,
	models.RuleMinDaysOff:          checkMinDaysOff,
	models.RuleNearDutyLimit:       checkNearDutyLimit,
	models.RuleNoWeekends:          checkNoWeekends,
	models.RuleNoRedEyes:           checkNoRedEyes,
	models.RuleDomesticOnly:        checkDomesticOnly,
	models.RuleEquipmentQualified:  checkEquipment,
	models.RuleNoOverlap:           checkNoOverlap,
	models.RuleWithinPeriod:        checkWithinPeriod,
}

// RuleEngine evaluates contract, regulatory and preference rules. Evaluation is
// pure, so pool filtering and candidate validation fan out across goroutines.
type RuleEngine struct {
	rules       []models.Rule
	concurrency int
	logger      *zap.Logger
}

// NewRuleEngine builds an engine over a checked rule catalogue.
func NewRuleEngine(rules []models.Rule, concurrency int, logger *zap.Logger) (*RuleEngine, error) {
	if err := checkRules(rules); err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	catalogue := make([]models.Rule, 0, len(builtinRules)+len(rules))
	catalogue = append(catalogue, builtinRules...)
	catalogue = append(catalogue, rules...)
	return &RuleEngine{rules: catalogue, concurrency: concurrency, logger: logger}, nil
}

// Rules returns the contract catalogue including built-in structural rules.
func (e *RuleEngine) Rules() []models.Rule {
	out := make([]models.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// RulesFor returns the catalogue extended with the preference hard constraints.
func (e *RuleEngine) RulesFor(prefs models.PreferenceSet) []models.Rule {
	return append(e.Rules(), preferenceRules(prefs.Hard)...)
}

func preferenceRules(hard models.HardConstraints) []models.Rule {
	var rules []models.Rule
	add := func(name, ruleType string, severity models.RuleSeverity, params map[string]float64) {
		rules = append(rules, models.Rule{
			Name:     models.PreferenceRulePrefix + name,
			Version:  models.PreferenceRuleVersion,
			Type:     ruleType,
			Severity: severity,
			Params:   params,
		})
	}
	if hard.NoWeekends {
		add("no_weekends", models.RuleNoWeekends, models.SeverityHard, nil)
	}
	if hard.NoRedEyes {
		add("no_red_eyes", models.RuleNoRedEyes, models.SeverityHard, nil)
	}
	if hard.DomesticOnly {
		add("domestic_only", models.RuleDomesticOnly, models.SeverityHard, nil)
	}
	if hard.MaxDutyDays != nil {
		limit := float64(*hard.MaxDutyDays)
		add("max_duty_days", models.RuleMaxDutyDays, models.SeverityHard, map[string]float64{"limit": limit})
		add("near_max_duty_days", models.RuleNearDutyLimit, models.SeverityWarning, map[string]float64{"limit": limit, "margin": 1})
	}
	return rules
}

// Validate evaluates every rule against the schedule.
func (e *RuleEngine) Validate(c models.ScheduleCandidate, profile models.PilotProfile, period bidPeriod, rules []models.Rule) models.ValidationResult {
	result := models.ValidationResult{Violations: []string{}, Warnings: []string{}}
	if len(rules) == 0 {
		result.Score = 1
		return result
	}
	clean := 0
	for _, rule := range rules {
		check, ok := ruleChecks[rule.Type]
		if !ok {
			// NewRuleEngine rejects unknown types; reaching here means a caller
			// built rules by hand.
			result.Violations = append(result.Violations, fmt.Sprintf("%s: unknown rule type %q", rule.Name, rule.Type))
			continue
		}
		failure := check(rule, c, profile, period)
		if failure == "" {
			clean++
			continue
		}
		message := fmt.Sprintf("%s@%s: %s", rule.Name, rule.Version, failure)
		if rule.Severity == models.SeverityHard {
			result.Violations = append(result.Violations, message)
		} else {
			result.Warnings = append(result.Warnings, message)
		}
	}
	result.Score = float64(clean) / float64(len(rules))
	return result
}

// PoolFilterResult is the outcome of screening a trip pool.
type PoolFilterResult struct {
	Eligible []models.TripPairing
	Rejected map[string][]string
	Partial  bool
}

// FilterPool evaluates each pairing as a one-trip schedule and keeps those with
// no hard violation. Every check is monotone, so a pairing that fails alone can
// never appear in a legal schedule. When ctx expires the pairings already
// evaluated are returned and the result is marked partial.
func (e *RuleEngine) FilterPool(ctx context.Context, pool []models.TripPairing, profile models.PilotProfile, period bidPeriod, rules []models.Rule) PoolFilterResult {
	ordered := orderPool(pool)
	results := make([]*models.ValidationResult, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range ordered {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			single := models.NewScheduleCandidate(period.Month, []models.TripPairing{ordered[i]})
			res := e.Validate(single, profile, period, rules)
			results[i] = &res
			return nil
		})
	}
	err := g.Wait()

	out := PoolFilterResult{Rejected: make(map[string][]string), Partial: err != nil}
	for i, res := range results {
		if res == nil {
			continue
		}
		if res.Feasible() {
			out.Eligible = append(out.Eligible, ordered[i])
			continue
		}
		out.Rejected[ordered[i].ID] = res.Violations
	}
	if out.Partial {
		e.logger.Warn("trip pool filtering exceeded budget",
			zap.String("month", period.Month),
			zap.Int("pool", len(ordered)),
			zap.Int("eligible", len(out.Eligible)),
			zap.Error(err))
	}
	return out
}

// ValidateCandidates evaluates candidates concurrently. A nil entry marks a
// candidate that was not evaluated before ctx expired.
func (e *RuleEngine) ValidateCandidates(ctx context.Context, candidates []models.ScheduleCandidate, profile models.PilotProfile, period bidPeriod, rules []models.Rule) ([]*models.ValidationResult, error) {
	results := make([]*models.ValidationResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.Validate(candidates[i], profile, period, rules)
			results[i] = &res
			return nil
		})
	}
	return results, g.Wait()
}

// ValidatePreferences checks a preference set against the contract catalogue
// and the trip pool. Notes from normalisation surface as warnings.
func (e *RuleEngine) ValidatePreferences(ctx context.Context, prefs models.PreferenceSet, notes []string, pool []models.TripPairing, profile models.PilotProfile, period bidPeriod) models.ValidationResult {
	result := models.ValidationResult{Violations: []string{}, Warnings: []string{}}
	checks, clean := 0, 0
	pass := func() { checks++; clean++ }
	violate := func(msg string) { checks++; result.Violations = append(result.Violations, msg) }
	warn := func(msg string) { checks++; result.Warnings = append(result.Warnings, msg) }

	for _, note := range notes {
		warn(note)
	}

	if prefs.Hard.MaxDutyDays != nil {
		requested := *prefs.Hard.MaxDutyDays
		if limit, ok := e.contractLimit(models.RuleMaxDutyDays); ok && float64(requested) > limit {
			warn(fmt.Sprintf("max_duty_days %d exceeds the contract limit of %.0f; the contract limit applies", requested, limit))
		} else if requested > period.Days {
			warn(fmt.Sprintf("max_duty_days %d exceeds the %d days in %s", requested, period.Days, period.Month))
		} else {
			pass()
		}
	}

	if len(pool) == 0 {
		violate(fmt.Sprintf("no trip pairings are available for %s", period.Month))
		return finishValidation(result, checks, clean)
	}

	contract := e.Rules()
	for _, rule := range preferenceRules(prefs.Hard) {
		if rule.Severity != models.SeverityHard {
			continue
		}
		filtered := e.FilterPool(ctx, pool, profile, period, append(contract, rule))
		if len(filtered.Eligible) == 0 {
			violate(fmt.Sprintf("%s eliminates every pairing in the pool", rule.Name))
			continue
		}
		pass()
	}

	combined := e.FilterPool(ctx, pool, profile, period, e.RulesFor(prefs))
	switch {
	case len(combined.Eligible) == 0:
		violate("no pairing satisfies all hard constraints together")
	default:
		pass()
		eliminated := 1 - float64(len(combined.Eligible))/float64(len(orderPool(pool)))
		if eliminated > eliminationWarningRatio {
			warn(fmt.Sprintf("hard constraints eliminate %.0f%% of the trip pool; expect a low award probability", eliminated*100))
		} else {
			pass()
		}
	}
	if combined.Partial {
		warn("rule evaluation exceeded the time budget; results are best effort")
	}

	return finishValidation(result, checks, clean)
}

func finishValidation(result models.ValidationResult, checks, clean int) models.ValidationResult {
	if checks == 0 {
		result.Score = 1
		return result
	}
	result.Score = float64(clean) / float64(checks)
	return result
}

func (e *RuleEngine) contractLimit(ruleType string) (float64, bool) {
	found := false
	var limit float64
	for _, rule := range e.rules {
		if rule.Type != ruleType || rule.Severity != models.SeverityHard {
			continue
		}
		value := rule.Param("limit", 0)
		if !found || value < limit {
			limit = value
			found = true
		}
	}
	return limit, found
}

// orderPool sorts by report time then id and drops repeated ids.
func orderPool(pool []models.TripPairing) []models.TripPairing {
	ordered := make([]models.TripPairing, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ReportAt.Equal(ordered[j].ReportAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].ReportAt.Before(ordered[j].ReportAt)
	})
	seen := make(map[string]bool, len(ordered))
	out := ordered[:0]
	for _, p := range ordered {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// --- checks ---

func checkMaxDutyDays(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	limit := int(rule.Param("limit", 0))
	if c.DutyDays > limit {
		return fmt.Sprintf("%d duty days exceed the limit of %d", c.DutyDays, limit)
	}
	return ""
}

func checkMaxCreditHours(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	limit := rule.Param("limit", 0)
	if c.TotalCredit > limit {
		return fmt.Sprintf("%.1f credit hours exceed %.1f", c.TotalCredit, limit)
	}
	return ""
}

func checkMaxBlockHours(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	limit := rule.Param("limit", 0)
	if c.TotalBlock > limit {
		return fmt.Sprintf("%.1f block hours exceed %.1f", c.TotalBlock, limit)
	}
	return ""
}

func checkMinRest(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	hours := rule.Param("hours", 0)
	for i := 1; i < len(c.Pairings); i++ {
		prev, next := c.Pairings[i-1], c.Pairings[i]
		rest := next.ReportAt.Sub(prev.ReleaseAt).Hours()
		if rest < hours {
			return fmt.Sprintf("only %.1fh rest between %s and %s (minimum %.0fh)", rest, prev.ID, next.ID, hours)
		}
	}
	return ""
}

func checkNoReportAfterRedEye(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	for i := 1; i < len(c.Pairings); i++ {
		prev, next := c.Pairings[i-1], c.Pairings[i]
		if !prev.RedEye {
			continue
		}
		if sameDay(prev.ReleaseAt, next.ReportAt) {
			return fmt.Sprintf("%s reports the same day red-eye %s releases", next.ID, prev.ID)
		}
	}
	return ""
}

func checkMinDaysOff(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, period bidPeriod) string {
	required := int(rule.Param("days", 0))
	off := period.Days - c.DutyDays
	if off < required {
		return fmt.Sprintf("%d days off is below the minimum of %d", off, required)
	}
	return ""
}

func checkNearDutyLimit(rule models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	limit := int(rule.Param("limit", 0))
	margin := int(rule.Param("margin", 0))
	if c.DutyDays > 0 && c.DutyDays >= limit-margin {
		return fmt.Sprintf("%d duty days is within %d of the %d day limit", c.DutyDays, margin, limit)
	}
	return ""
}

func checkNoWeekends(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	var offenders []string
	for _, p := range c.Pairings {
		if p.WeekendDays() > 0 {
			offenders = append(offenders, p.ID)
		}
	}
	if len(offenders) > 0 {
		return fmt.Sprintf("weekend duty on %s", strings.Join(offenders, ", "))
	}
	return ""
}

func checkNoRedEyes(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	var offenders []string
	for _, p := range c.Pairings {
		if p.RedEye {
			offenders = append(offenders, p.ID)
		}
	}
	if len(offenders) > 0 {
		return fmt.Sprintf("red-eye flying on %s", strings.Join(offenders, ", "))
	}
	return ""
}

func checkDomesticOnly(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	var offenders []string
	for _, p := range c.Pairings {
		if p.International {
			offenders = append(offenders, p.ID)
		}
	}
	if len(offenders) > 0 {
		return fmt.Sprintf("international flying on %s", strings.Join(offenders, ", "))
	}
	return ""
}

func checkEquipment(_ models.Rule, c models.ScheduleCandidate, profile models.PilotProfile, _ bidPeriod) string {
	for _, p := range c.Pairings {
		if !profile.QualifiedFor(p.Equipment) {
			return fmt.Sprintf("not qualified on %s for %s", p.Equipment, p.ID)
		}
	}
	return ""
}

func checkNoOverlap(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, _ bidPeriod) string {
	for i := 1; i < len(c.Pairings); i++ {
		if c.Pairings[i-1].Overlaps(c.Pairings[i]) {
			return fmt.Sprintf("%s overlaps %s", c.Pairings[i-1].ID, c.Pairings[i].ID)
		}
	}
	for _, p := range c.Pairings {
		if !p.ReleaseAt.After(p.ReportAt) {
			return fmt.Sprintf("%s releases before it reports", p.ID)
		}
	}
	return ""
}

func checkWithinPeriod(_ models.Rule, c models.ScheduleCandidate, _ models.PilotProfile, period bidPeriod) string {
	for _, p := range c.Pairings {
		if !period.Contains(p) {
			return fmt.Sprintf("%s reports outside %s", p.ID, period.Month)
		}
	}
	return ""
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

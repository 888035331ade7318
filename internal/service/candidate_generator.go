package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

// GenerationResult is the candidate set produced by one search.
type GenerationResult struct {
	Candidates []models.ScheduleCandidate
	Heuristic  bool
}

// CandidateGenerator builds feasible monthly schedules from an eligible pool.
type CandidateGenerator struct {
	engine      *RuleEngine
	budget      int
	concurrency int
	logger      *zap.Logger
}

// NewCandidateGenerator constructs a generator capped at budget candidates.
func NewCandidateGenerator(engine *RuleEngine, budget, concurrency int, logger *zap.Logger) *CandidateGenerator {
	if budget <= 0 {
		budget = 24
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateGenerator{engine: engine, budget: budget, concurrency: concurrency, logger: logger}
}

// Generate runs a greedy constructive search from every eligible seed. The
// eligible pool must already be rule filtered; every extension is revalidated
// against rules so the returned schedules are legal as a whole, and the merged
// set is validated once more in parallel to collect warnings. When ctx expires
// the schedules built so far are returned with Heuristic set.
func (g *CandidateGenerator) Generate(ctx context.Context, eligible []models.TripPairing, prefs models.PreferenceSet, profile models.PilotProfile, period bidPeriod, rules []models.Rule) GenerationResult {
	pool := orderPool(eligible)
	if len(pool) == 0 {
		return GenerationResult{Candidates: []models.ScheduleCandidate{degenerateCandidate(period)}}
	}

	byAffinity := rankByAffinity(pool, prefs, period)
	chronological := pool

	branches := make([][]models.ScheduleCandidate, len(byAffinity))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range byAffinity {
		i := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := byAffinity[i]
			var built []models.ScheduleCandidate
			for _, order := range [][]models.TripPairing{byAffinity, chronological} {
				built = append(built, g.extend(gctx, seed, order, prefs, profile, period, rules)...)
			}
			branches[i] = built
			return gctx.Err()
		})
	}
	err := eg.Wait()

	candidates, checked := g.check(ctx, g.merge(branches), profile, period, rules)
	result := GenerationResult{Candidates: candidates, Heuristic: err != nil || !checked}
	if len(result.Candidates) == 0 {
		result.Candidates = []models.ScheduleCandidate{degenerateCandidate(period)}
	}
	if result.Heuristic {
		g.logger.Warn("candidate search exceeded budget; returning best-effort set",
			zap.String("month", period.Month),
			zap.Int("eligible", len(pool)),
			zap.Int("candidates", len(result.Candidates)),
			zap.Error(err))
		for i := range result.Candidates {
			result.Candidates[i].Heuristic = true
		}
	}
	return result
}

// extend grows a schedule from seed, taking pairings in order and keeping each
// one only when the extended schedule still has no hard violation. A snapshot is
// also emitted once the credit target is reached, which gives days-off minded
// bidders a lighter alternative to the fully packed schedule.
func (g *CandidateGenerator) extend(ctx context.Context, seed models.TripPairing, order []models.TripPairing, prefs models.PreferenceSet, profile models.PilotProfile, period bidPeriod, rules []models.Rule) []models.ScheduleCandidate {
	current := []models.TripPairing{seed}
	if !g.engine.Validate(models.NewScheduleCandidate(period.Month, current), profile, period, rules).Feasible() {
		return nil
	}
	var out []models.ScheduleCandidate
	target := prefs.Targets.CreditHours
	snapshotTaken := false
	credit := seed.CreditHours
	if target > 0 && credit >= target {
		snapshotTaken = true
	}

	for _, next := range order {
		if ctx.Err() != nil {
			break
		}
		if next.ID == seed.ID || overlapsAny(next, current) {
			continue
		}
		tentative := append(append([]models.TripPairing(nil), current...), next)
		if !g.engine.Validate(models.NewScheduleCandidate(period.Month, tentative), profile, period, rules).Feasible() {
			continue
		}
		current = tentative
		credit += next.CreditHours
		if !snapshotTaken && target > 0 && credit >= target {
			snapshotTaken = true
			out = append(out, models.NewScheduleCandidate(period.Month, current))
		}
	}
	return append(out, models.NewScheduleCandidate(period.Month, current))
}

// check validates the merged set concurrently and fills candidate warnings.
// Candidates left unevaluated when ctx expires are kept, since every extension
// was already validated, but the result is reported as not fully checked.
func (g *CandidateGenerator) check(ctx context.Context, candidates []models.ScheduleCandidate, profile models.PilotProfile, period bidPeriod, rules []models.Rule) ([]models.ScheduleCandidate, bool) {
	results, err := g.engine.ValidateCandidates(ctx, candidates, profile, period, rules)
	checked := err == nil
	kept := candidates[:0]
	for i, candidate := range candidates {
		res := results[i]
		if res == nil {
			checked = false
			candidate.Warnings = []string{}
			kept = append(kept, candidate)
			continue
		}
		if !res.Feasible() {
			g.logger.Error("dropping candidate with hard violation",
				zap.String("candidate", candidate.ID),
				zap.Strings("violations", res.Violations))
			continue
		}
		candidate.Warnings = res.Warnings
		kept = append(kept, candidate)
	}
	return kept, checked
}

// merge flattens branch output in seed order, drops repeated ids, caps the set
// at the budget and returns it sorted by id.
func (g *CandidateGenerator) merge(branches [][]models.ScheduleCandidate) []models.ScheduleCandidate {
	seen := make(map[string]bool)
	var merged []models.ScheduleCandidate
	for _, branch := range branches {
		for _, candidate := range branch {
			if seen[candidate.ID] {
				continue
			}
			seen[candidate.ID] = true
			merged = append(merged, candidate)
			if len(merged) == g.budget {
				break
			}
		}
		if len(merged) == g.budget {
			break
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}

func degenerateCandidate(period bidPeriod) models.ScheduleCandidate {
	candidate := models.NewScheduleCandidate(period.Month, nil)
	candidate.Warnings = []string{}
	return candidate
}

func overlapsAny(p models.TripPairing, schedule []models.TripPairing) bool {
	for _, existing := range schedule {
		if p.Overlaps(existing) {
			return true
		}
	}
	return false
}

type scoredPairing struct {
	pairing  models.TripPairing
	affinity float64
}

// rankByAffinity orders pairings by how well each one suits the soft weights on
// its own, ties by id.
func rankByAffinity(pool []models.TripPairing, prefs models.PreferenceSet, period bidPeriod) []models.TripPairing {
	scored := make([]scoredPairing, len(pool))
	for i, p := range pool {
		scored[i] = scoredPairing{pairing: p, affinity: pairingAffinity(p, prefs, period)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].affinity == scored[j].affinity {
			return scored[i].pairing.ID < scored[j].pairing.ID
		}
		return scored[i].affinity > scored[j].affinity
	})
	out := make([]models.TripPairing, len(scored))
	for i, s := range scored {
		out[i] = s.pairing
	}
	return out
}

func pairingAffinity(p models.TripPairing, prefs models.PreferenceSet, period bidPeriod) float64 {
	duty := float64(p.DutyDays())
	if duty <= 0 {
		duty = 1
	}
	total := 0.0
	for _, dimension := range models.Dimensions {
		weight := prefs.Weight(dimension)
		if weight == 0 {
			continue
		}
		var fit float64
		switch dimension {
		case models.DimensionWeekend:
			fit = 1 - float64(p.WeekendDays())/duty
		case models.DimensionCredit:
			// credit earned per duty day relative to the pace needed to hit target
			pace := prefs.Targets.CreditHours / float64(period.Days)
			if pace > 0 {
				fit = p.CreditHours / duty / (pace * 2)
			}
		case models.DimensionTrip:
			fit = tripLengthFit(p.DutyDays(), prefs.Targets.TripLength)
		case models.DimensionLayover:
			fit = layoverFit([]models.TripPairing{p}, prefs.Targets.LayoverCities)
		case models.DimensionRedEye:
			if !p.RedEye {
				fit = 1
			}
		case models.DimensionDaysOff:
			fit = 1 / duty
		}
		total += weight * clamp01(fit)
	}
	return total
}

func tripLengthFit(days, target int) float64 {
	if target <= 0 {
		target = models.DefaultTripLength
	}
	return clamp01(1 - math.Abs(float64(days-target))/float64(target))
}

// layoverFit is the share of layovers in preferred cities. Without preferred
// cities every layover is neutral.
func layoverFit(pairings []models.TripPairing, cities []string) float64 {
	if len(cities) == 0 {
		return 0.5
	}
	preferred := make(map[string]bool, len(cities))
	for _, c := range cities {
		preferred[c] = true
	}
	total, hits := 0, 0
	for _, p := range pairings {
		for _, l := range p.Layovers {
			total++
			if preferred[strings.ToUpper(l)] {
				hits++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func clamp01(v float64) float64 {
	out, _ := clampUnit(v)
	return out
}

package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

// Bid-system directive vocabulary.
const (
	commandAwardPairing   = "AWARD PAIRING"
	commandAwardAny       = "AWARD ANY LEGAL PAIRING"
	commandAvoidWeekends  = "AVOID WEEKEND DUTY"
	commandAvoidRedEye    = "AVOID RED_EYE"
	commandAvoidIntl      = "AVOID INTERNATIONAL"
	commandLimitDutyDays  = "LIMIT DUTY_DAYS <="
	catchAllProbability   = 0.99
	defaultMaxLayers      = 7
	defaultProbabilityMin = 0.15
	defaultProbabilityMax = 0.95
	defaultProbabilityTau = 2.0
)

// LayerConfig tunes the fallback sequence.
type LayerConfig struct {
	MaxLayers int
	PMin      float64
	PMax      float64
	Tau       float64
}

// LayerGenerator turns ranked candidates into a fallback bidding strategy.
type LayerGenerator struct {
	engine *RuleEngine
	cfg    LayerConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewLayerGenerator constructs a layer generator.
func NewLayerGenerator(engine *RuleEngine, cfg LayerConfig, logger *zap.Logger) *LayerGenerator {
	if cfg.MaxLayers < 2 {
		cfg.MaxLayers = defaultMaxLayers
	}
	if cfg.PMin <= 0 || cfg.PMin >= 1 {
		cfg.PMin = defaultProbabilityMin
	}
	if cfg.PMax <= cfg.PMin || cfg.PMax >= catchAllProbability {
		cfg.PMax = defaultProbabilityMax
	}
	if cfg.Tau <= 0 {
		cfg.Tau = defaultProbabilityTau
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LayerGenerator{engine: engine, cfg: cfg, logger: logger, now: time.Now}
}

// Probability is the estimated award likelihood at a relaxation degree.
func (g *LayerGenerator) Probability(degree int) float64 {
	d := float64(degree)
	if d < 0 {
		d = 0
	}
	p := g.cfg.PMin + (g.cfg.PMax-g.cfg.PMin)*(1-math.Exp(-d/g.cfg.Tau))
	return math.Round(p*1000) / 1000
}

type softDirective struct {
	dimension string
	weight    float64
}

// Generate builds the layer sequence for ranked candidates and renders it as an
// export artifact. Layers that fail revalidation are dropped.
func (g *LayerGenerator) Generate(ranked []models.ScheduleCandidate, prefs models.PreferenceSet, profile models.PilotProfile, period bidPeriod, rules []models.Rule) ([]models.BidLayer, models.ExportArtifact) {
	hard := hardDirectives(prefs.Hard)
	soft := softDirectives(prefs)

	slots := g.cfg.MaxLayers - 1
	relaxSteps := len(soft)
	specificCap := slots - relaxSteps
	if minSpecific := (slots + 1) / 2; specificCap < minSpecific {
		specificCap = minSpecific
	}

	var drafts []models.BidLayer
	degree := 0
	byID := make(map[string]models.ScheduleCandidate)
	for _, c := range ranked {
		if c.Degenerate || len(drafts) >= specificCap {
			continue
		}
		byID[c.ID] = c
		commands := make([]string, 0, len(c.Pairings)+len(hard)+len(soft))
		for _, id := range c.PairingIDs() {
			commands = append(commands, fmt.Sprintf("%s %s", commandAwardPairing, id))
		}
		commands = append(commands, hard...)
		commands = append(commands, renderSoft(soft, prefs, 0)...)
		drafts = append(drafts, models.BidLayer{
			Commands:        commands,
			Relaxation:      degree,
			CandidateID:     c.ID,
			Description:     fmt.Sprintf("Bid schedule %s exactly: %d pairings, %.1f credit hours, %d duty days", c.ID, len(c.Pairings), c.TotalCredit, c.DutyDays),
			ExpectedOutcome: fmt.Sprintf("Award of the preferred schedule (score %.2f)", c.Score),
		})
		degree++
	}

	for step := 1; step <= relaxSteps && len(drafts) < slots; step++ {
		kept := soft[:len(soft)-step]
		dropped := soft[len(soft)-step]
		commands := append(append([]string(nil), hard...), renderSoft(kept, prefs, step)...)
		drafts = append(drafts, models.BidLayer{
			Commands:        commands,
			Relaxation:      degree,
			Description:     relaxDescription(dropped, kept, step),
			ExpectedOutcome: fmt.Sprintf("Any legal schedule honouring %d remaining soft preference(s)", len(kept)),
		})
		degree++
	}

	layers := make([]models.BidLayer, 0, len(drafts)+1)
	for _, layer := range drafts {
		if reason := g.checkLayer(layer, byID, hard, profile, period, rules); reason != "" {
			g.logger.Warn("dropping illegal bid layer",
				zap.String("month", period.Month),
				zap.String("candidate_id", layer.CandidateID),
				zap.String("reason", reason))
			continue
		}
		layers = append(layers, layer)
	}
	layers = append(layers, models.BidLayer{
		Commands:        append(append([]string(nil), hard...), commandAwardAny),
		Relaxation:      degree,
		Description:     "Catch-all: any legal pairing within hard constraints",
		ExpectedOutcome: "Near-certain award; schedule quality is not guaranteed",
	})

	prev := 0.0
	for i := range layers {
		layers[i].LayerNumber = i + 1
		p := g.Probability(layers[i].Relaxation)
		if i == len(layers)-1 {
			p = catchAllProbability
		}
		if p < prev {
			p = prev
		}
		layers[i].Probability = p
		prev = p
	}

	content := RenderLayers(period.Month, layers)
	artifact := models.ExportArtifact{
		Hash:      ContentHash(content),
		Month:     period.Month,
		Content:   content,
		CreatedAt: g.now().UTC(),
	}
	return layers, artifact
}

// checkLayer returns why a layer is illegal, or an empty string.
func (g *LayerGenerator) checkLayer(layer models.BidLayer, candidates map[string]models.ScheduleCandidate, hard []string, profile models.PilotProfile, period bidPeriod, rules []models.Rule) string {
	present := make(map[string]bool, len(layer.Commands))
	for _, cmd := range layer.Commands {
		present[cmd] = true
	}
	for _, directive := range hard {
		if !present[directive] {
			return fmt.Sprintf("missing hard directive %q", directive)
		}
	}
	if layer.CandidateID == "" {
		return ""
	}
	candidate, ok := candidates[layer.CandidateID]
	if !ok {
		return "references an unknown candidate"
	}
	schedule := models.NewScheduleCandidate(period.Month, candidate.Pairings)
	if result := g.engine.Validate(schedule, profile, period, rules); !result.Feasible() {
		return strings.Join(result.Violations, "; ")
	}
	return ""
}

func hardDirectives(h models.HardConstraints) []string {
	var out []string
	if h.NoWeekends {
		out = append(out, commandAvoidWeekends)
	}
	if h.NoRedEyes {
		out = append(out, commandAvoidRedEye)
	}
	if h.DomesticOnly {
		out = append(out, commandAvoidIntl)
	}
	if h.MaxDutyDays != nil {
		out = append(out, fmt.Sprintf("%s %d", commandLimitDutyDays, *h.MaxDutyDays))
	}
	return out
}

// softDirectives returns weighted dimensions strongest first, so relaxation
// drops from the tail.
func softDirectives(prefs models.PreferenceSet) []softDirective {
	var out []softDirective
	for _, dimension := range models.Dimensions {
		if w := prefs.Weight(dimension); w > 0 {
			out = append(out, softDirective{dimension: dimension, weight: w})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].weight > out[j].weight })
	return out
}

// relaxDescription names the dropped preference, and the trip length widening
// only when a trip preference is still rendered.
func relaxDescription(dropped softDirective, kept []softDirective, widen int) string {
	desc := fmt.Sprintf("Relax %s preference", dropped.dimension)
	for _, d := range kept {
		if d.dimension == models.DimensionTrip {
			return fmt.Sprintf("%s and widen trip length by %d day(s)", desc, widen)
		}
	}
	return desc
}

func renderSoft(directives []softDirective, prefs models.PreferenceSet, widen int) []string {
	out := make([]string, 0, len(directives))
	for _, d := range directives {
		switch d.dimension {
		case models.DimensionWeekend:
			out = append(out, "PREFER WEEKENDS OFF")
		case models.DimensionCredit:
			target := prefs.Targets.CreditHours
			out = append(out, fmt.Sprintf("PREFER CREDIT BETWEEN %.0f AND %.0f", math.Max(0, target-5), target+5))
		case models.DimensionTrip:
			length := prefs.Targets.TripLength
			low := length - widen
			if low < 1 {
				low = 1
			}
			out = append(out, fmt.Sprintf("PREFER TRIP_LENGTH BETWEEN %d AND %d", low, length+widen))
		case models.DimensionLayover:
			if len(prefs.Targets.LayoverCities) > 0 {
				out = append(out, "PREFER LAYOVER IN "+strings.Join(prefs.Targets.LayoverCities, " "))
			}
		case models.DimensionRedEye:
			out = append(out, "PREFER NO RED_EYE")
		case models.DimensionDaysOff:
			out = append(out, "PREFER MAX DAYS_OFF")
		}
	}
	return out
}

// RenderLayers renders the layer sequence as bid-system text. The output
// depends only on its inputs.
func RenderLayers(month string, layers []models.BidLayer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# BID LAYERS %s\n", month)
	for _, layer := range layers {
		fmt.Fprintf(&b, "\nLAYER %d PROBABILITY %.3f\n", layer.LayerNumber, layer.Probability)
		fmt.Fprintf(&b, "# %s\n", layer.Description)
		for _, cmd := range layer.Commands {
			fmt.Fprintf(&b, "  %s\n", cmd)
		}
	}
	return b.String()
}

// ContentHash is the hex sha256 of export content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

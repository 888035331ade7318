package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/dto"
	"github.com/noah-isme/crew-bid-api/internal/models"
)

const maxFreeTextLength = 2000

// NormalizerConfig tunes how untrusted preference input is accepted.
type NormalizerConfig struct {
	ConfidenceThreshold float64
	CreditTarget        float64
	TripLength          int
}

// PreferenceNormalizer turns a loose submission into a canonical PreferenceSet.
type PreferenceNormalizer struct {
	cfg    NormalizerConfig
	logger *zap.Logger
}

// NewPreferenceNormalizer constructs a normalizer.
func NewPreferenceNormalizer(cfg NormalizerConfig, logger *zap.Logger) *PreferenceNormalizer {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.CreditTarget <= 0 {
		cfg.CreditTarget = models.DefaultCreditGoal
	}
	if cfg.TripLength <= 0 {
		cfg.TripLength = models.DefaultTripLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceNormalizer{cfg: cfg, logger: logger}
}

// Normalize never fails: anything it cannot use is dropped and reported in the
// returned notes.
func (n *PreferenceNormalizer) Normalize(sub dto.PreferenceSubmission) (models.PreferenceSet, []string) {
	var notes []string
	set := models.PreferenceSet{
		Hard:     sub.HardConstraints,
		Soft:     make(map[string]float64),
		FreeText: truncate(strings.TrimSpace(sub.FreeText), maxFreeTextLength),
		Persona:  strings.ToLower(strings.TrimSpace(sub.Persona)),
	}

	if set.Hard.MaxDutyDays != nil {
		limit := *set.Hard.MaxDutyDays
		if limit <= 0 {
			notes = append(notes, fmt.Sprintf("ignored max_duty_days=%d; treating duty days as unconstrained", limit))
			set.Hard.MaxDutyDays = nil
		} else {
			set.Hard.MaxDutyDays = intPtr(limit)
		}
	}

	keys := make([]string, 0, len(sub.SoftPrefs))
	for key := range sub.SoftPrefs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		dimension, ok := canonicalDimension(key)
		if !ok {
			notes = append(notes, fmt.Sprintf("ignored unknown soft preference %q", key))
			continue
		}
		weight, clamped := clampUnit(sub.SoftPrefs[key])
		if clamped {
			notes = append(notes, fmt.Sprintf("soft preference %q weight clamped to %.2f", key, weight))
		}
		if weight > set.Soft[dimension] {
			set.Soft[dimension] = weight
		}
	}
	explicit := len(set.Soft) > 0

	if sub.ParsedPreferences != nil {
		for _, item := range sub.ParsedPreferences.ParsedItems {
			notes = append(notes, n.applyParsedItem(&set, item, explicit)...)
		}
	}

	if len(set.Soft) == 0 && set.Persona != "" {
		if defaults, ok := personaDefaults[set.Persona]; ok {
			for dimension, weight := range defaults {
				set.Soft[dimension] = weight
			}
		} else {
			notes = append(notes, fmt.Sprintf("unknown persona %q; no default weights applied", set.Persona))
		}
	}

	set.Targets = n.normalizeTargets(sub.Targets, set.Targets)

	if len(notes) > 0 {
		n.logger.Debug("preference submission normalised with notes", zap.Int("notes", len(notes)))
	}
	return set, notes
}

func (n *PreferenceNormalizer) applyParsedItem(set *models.PreferenceSet, item models.ParsedItem, explicitSoft bool) []string {
	text := strings.ToLower(strings.TrimSpace(item.Text))
	if text == "" {
		return nil
	}
	confidence, _ := clampUnit(item.Confidence)
	if confidence < n.cfg.ConfidenceThreshold {
		return []string{fmt.Sprintf("dropped low-confidence item %q (confidence %.2f)", item.Text, confidence)}
	}
	hard := canonicalCategory(item.Category) == models.CategoryHard

	match, ok := matchPreferenceText(text)
	if !ok {
		return []string{fmt.Sprintf("could not interpret preference %q", item.Text)}
	}
	if match.tripLength > 0 {
		set.Targets.TripLength = match.tripLength
	}

	if hard && match.hard != nil {
		return tightenHard(&set.Hard, *match.hard, item.Text)
	}
	if match.dimension == "" {
		return []string{fmt.Sprintf("preference %q has no soft equivalent; add it as a hard constraint instead", item.Text)}
	}
	if explicitSoft {
		if _, declared := set.Soft[match.dimension]; declared {
			return nil
		}
	}
	if confidence > set.Soft[match.dimension] {
		set.Soft[match.dimension] = confidence
	}
	return nil
}

// tightenHard merges a parsed hard constraint into the declared gates. Flags
// are only ever switched on and a duty-day cap only ever lowered.
func tightenHard(dst *models.HardConstraints, parsed models.HardConstraints, text string) []string {
	dst.NoWeekends = dst.NoWeekends || parsed.NoWeekends
	dst.NoRedEyes = dst.NoRedEyes || parsed.NoRedEyes
	dst.DomesticOnly = dst.DomesticOnly || parsed.DomesticOnly
	if parsed.MaxDutyDays == nil {
		return nil
	}
	limit := *parsed.MaxDutyDays
	if dst.MaxDutyDays != nil && *dst.MaxDutyDays <= limit {
		if *dst.MaxDutyDays < limit {
			return []string{fmt.Sprintf("kept max_duty_days=%d; preference %q is looser", *dst.MaxDutyDays, text)}
		}
		return nil
	}
	dst.MaxDutyDays = intPtr(limit)
	return nil
}

func (n *PreferenceNormalizer) normalizeTargets(in *models.PreferenceTargets, parsed models.PreferenceTargets) models.PreferenceTargets {
	out := models.PreferenceTargets{
		CreditHours: n.cfg.CreditTarget,
		TripLength:  n.cfg.TripLength,
	}
	if parsed.TripLength > 0 {
		out.TripLength = parsed.TripLength
	}
	if in == nil {
		return out
	}
	if in.CreditHours > 0 && !math.IsInf(in.CreditHours, 0) {
		out.CreditHours = in.CreditHours
	}
	if in.TripLength > 0 && in.TripLength <= 6 {
		out.TripLength = in.TripLength
	}
	seen := make(map[string]bool, len(in.LayoverCities))
	for _, city := range in.LayoverCities {
		code := strings.ToUpper(strings.TrimSpace(city))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out.LayoverCities = append(out.LayoverCities, code)
	}
	return out
}

// --- keyword interpretation ---

type preferenceMatch struct {
	hard       *models.HardConstraints
	dimension  string
	tripLength int
}

var (
	maxDutyPattern    = regexp.MustCompile(`(?:max(?:imum)?|at most|no more than|up to)\s+(\d{1,2})\s+(?:duty\s+|work(?:ing)?\s+)?days?`)
	tripLengthPattern = regexp.MustCompile(`(\d)[- ]day\s+(?:trips?|pairings?)`)
	avoidCue          = regexp.MustCompile(`\b(?:no|not|never|avoid|avoiding|without|off|free|hate)\b|n't\b`)
	onlyCue           = regexp.MustCompile(`\bonly\b`)
	acceptCue         = regexp.MustCompile(`\b(?:don'?t mind|do not mind|happy to|willing to|(?:ok|okay|fine) with)\b`)
)

// keywordRule maps a topic to a gate or dimension. When cue is set the text
// must also carry it, so "work weekends" never becomes "no weekends".
type keywordRule struct {
	keywords  []string
	cue       *regexp.Regexp
	hard      *models.HardConstraints
	dimension string
}

var keywordRules = []keywordRule{
	{keywords: []string{"weekend", "saturday", "sunday"}, cue: avoidCue, hard: &models.HardConstraints{NoWeekends: true}, dimension: models.DimensionWeekend},
	{keywords: []string{"red-eye", "redeye", "red eye", "overnight flying"}, cue: avoidCue, hard: &models.HardConstraints{NoRedEyes: true}, dimension: models.DimensionRedEye},
	{keywords: []string{"domestic"}, cue: onlyCue, hard: &models.HardConstraints{DomesticOnly: true}},
	{keywords: []string{"international"}, cue: avoidCue, hard: &models.HardConstraints{DomesticOnly: true}},
	{keywords: []string{"days off", "time off", "off days", "day off"}, dimension: models.DimensionDaysOff},
	{keywords: []string{"credit", "pay", "money", "hours"}, dimension: models.DimensionCredit},
	{keywords: []string{"layover", "overnight in"}, dimension: models.DimensionLayover},
	{keywords: []string{"trip length", "turns", "day trip", "short trip", "long trip", "pairing length"}, dimension: models.DimensionTrip},
}

func matchPreferenceText(text string) (preferenceMatch, bool) {
	if m := maxDutyPattern.FindStringSubmatch(text); m != nil {
		limit, err := strconv.Atoi(m[1])
		if err == nil && limit > 0 {
			return preferenceMatch{
				hard:      &models.HardConstraints{MaxDutyDays: intPtr(limit)},
				dimension: models.DimensionDaysOff,
			}, true
		}
	}
	if m := tripLengthPattern.FindStringSubmatch(text); m != nil {
		length, _ := strconv.Atoi(m[1])
		return preferenceMatch{dimension: models.DimensionTrip, tripLength: length}, true
	}
	accepting := acceptCue.MatchString(text)
	for _, rule := range keywordRules {
		if rule.cue != nil && (accepting || !rule.cue.MatchString(text)) {
			continue
		}
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return preferenceMatch{hard: rule.hard, dimension: rule.dimension}, true
			}
		}
	}
	return preferenceMatch{}, false
}

var dimensionAliases = map[string]string{
	"weekend":         models.DimensionWeekend,
	"weekends":        models.DimensionWeekend,
	"weekend_off":     models.DimensionWeekend,
	"weekends_off":    models.DimensionWeekend,
	"credit":          models.DimensionCredit,
	"credit_hours":    models.DimensionCredit,
	"pay":             models.DimensionCredit,
	"trip":            models.DimensionTrip,
	"trip_length":     models.DimensionTrip,
	"layover":         models.DimensionLayover,
	"layovers":        models.DimensionLayover,
	"redeye":          models.DimensionRedEye,
	"red_eye":         models.DimensionRedEye,
	"red_eyes":        models.DimensionRedEye,
	"days_off":        models.DimensionDaysOff,
	"daysoff":         models.DimensionDaysOff,
	"time_off":        models.DimensionDaysOff,
	"quality_of_life": models.DimensionDaysOff,
}

func canonicalDimension(key string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	dimension, ok := dimensionAliases[normalized]
	return dimension, ok
}

func canonicalCategory(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case models.CategoryHard, "hard":
		return models.CategoryHard
	default:
		return models.CategorySoft
	}
}

var personaDefaults = map[string]map[string]float64{
	"commuter": {models.DimensionTrip: 0.8, models.DimensionDaysOff: 0.6, models.DimensionRedEye: 0.4},
	"family":   {models.DimensionWeekend: 0.9, models.DimensionDaysOff: 0.7, models.DimensionRedEye: 0.5},
	"money":    {models.DimensionCredit: 1.0, models.DimensionTrip: 0.3},
	"senior":   {models.DimensionLayover: 0.7, models.DimensionWeekend: 0.6, models.DimensionCredit: 0.4},
}

func clampUnit(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, true
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func intPtr(v int) *int {
	return &v
}

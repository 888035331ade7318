package models

// Soft preference dimensions understood by the scorer.
const (
	DimensionWeekend  = "weekend"
	DimensionCredit   = "credit"
	DimensionTrip     = "trip"
	DimensionLayover  = "layover"
	DimensionRedEye   = "redeye"
	DimensionDaysOff  = "days_off"
	CategoryHard      = "hard_constraint"
	CategorySoft      = "soft_preference"
	DefaultCreditGoal = 75.0
	DefaultTripLength = 3
)

// Dimensions lists the soft dimensions in their canonical order.
var Dimensions = []string{
	DimensionWeekend,
	DimensionCredit,
	DimensionTrip,
	DimensionLayover,
	DimensionRedEye,
	DimensionDaysOff,
}

// HardConstraints are binary feasibility gates. Zero values mean unconstrained.
type HardConstraints struct {
	NoWeekends   bool `json:"no_weekends"`
	NoRedEyes    bool `json:"no_red_eyes"`
	DomesticOnly bool `json:"domestic_only"`
	MaxDutyDays  *int `json:"max_duty_days,omitempty"`
}

// Any reports whether at least one hard constraint is declared.
func (h HardConstraints) Any() bool {
	return h.NoWeekends || h.NoRedEyes || h.DomesticOnly || h.MaxDutyDays != nil
}

// PreferenceTargets are the numeric goals soft dimensions are measured against.
type PreferenceTargets struct {
	CreditHours   float64  `json:"credit_hours"`
	TripLength    int      `json:"trip_length"`
	LayoverCities []string `json:"layover_cities,omitempty"`
}

// PreferenceSet is the canonical, normalised preference submission.
type PreferenceSet struct {
	Hard     HardConstraints    `json:"hard_constraints"`
	Soft     map[string]float64 `json:"soft_prefs"`
	Targets  PreferenceTargets  `json:"targets"`
	FreeText string             `json:"free_text,omitempty"`
	Persona  string             `json:"persona,omitempty"`
}

// Weight returns the declared weight for a dimension, zero when absent.
func (p PreferenceSet) Weight(dimension string) float64 {
	if p.Soft == nil {
		return 0
	}
	return p.Soft[dimension]
}

// ParsedItem is one entry produced by the upstream natural-language parser.
// Category and confidence are untrusted.
type ParsedItem struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

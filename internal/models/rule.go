package models

// RuleSeverity decides whether a failed rule is fatal to feasibility.
type RuleSeverity string

const (
	SeverityHard    RuleSeverity = "hard"
	SeverityWarning RuleSeverity = "warning"
)

// Rule types understood by the rule engine.
const (
	RuleMaxDutyDays         = "max_duty_days"
	RuleMaxCreditHours      = "max_credit_hours"
	RuleMaxBlockHours       = "max_block_hours"
	RuleMinRestHours        = "min_rest_hours"
	RuleNoReportAfterRedEye = "no_report_after_red_eye"
	RuleMinDaysOff          = "min_days_off"
	RuleNearDutyLimit       = "near_duty_limit"
	RuleNoWeekends          = "no_weekends"
	RuleNoRedEyes           = "no_red_eyes"
	RuleDomesticOnly        = "domestic_only"
	RuleEquipmentQualified  = "equipment_qualified"
	RuleNoOverlap           = "no_overlap"
	RuleWithinPeriod        = "within_bid_period"
	PreferenceRulePrefix    = "pref."
	PreferenceRuleVersion   = "request"
	BuiltinRuleVersion      = "builtin"
)

// Rule is a versioned, named predicate over a schedule.
type Rule struct {
	Name     string             `yaml:"name" json:"name" validate:"required"`
	Version  string             `yaml:"version" json:"version" validate:"required"`
	Type     string             `yaml:"type" json:"type" validate:"required"`
	Severity RuleSeverity       `yaml:"severity" json:"severity" validate:"required,oneof=hard warning"`
	Params   map[string]float64 `yaml:"params" json:"params,omitempty"`
}

// Param returns a numeric parameter or the fallback when absent.
func (r Rule) Param(key string, fallback float64) float64 {
	if v, ok := r.Params[key]; ok {
		return v
	}
	return fallback
}

// RuleCatalogue is the on-disk rule definition file.
type RuleCatalogue struct {
	Version string `yaml:"version" validate:"required"`
	Rules   []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

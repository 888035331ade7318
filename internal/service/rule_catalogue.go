package service

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

//go:embed rules/default_rules.yaml
var defaultRuleCatalogue []byte

// requiredRuleParams lists the numeric parameters each rule type needs.
var requiredRuleParams = map[string][]string{
	models.RuleMaxDutyDays:         {"limit"},
	models.RuleMaxCreditHours:      {"limit"},
	models.RuleMaxBlockHours:       {"limit"},
	models.RuleMinRestHours:        {"hours"},
	models.RuleNoReportAfterRedEye: nil,
	models.RuleMinDaysOff:          {"days"},
	models.RuleNearDutyLimit:       {"limit", "margin"},
	models.RuleNoWeekends:          nil,
	models.RuleNoRedEyes:           nil,
	models.RuleDomesticOnly:        nil,
	models.RuleEquipmentQualified:  nil,
	models.RuleNoOverlap:           nil,
	models.RuleWithinPeriod:        nil,
}

// LoadRuleCatalogue reads the rule catalogue from path, or the embedded default
// when path is empty. Any malformed rule is an error; callers treat it as fatal.
func LoadRuleCatalogue(path string, validate *validator.Validate) ([]models.Rule, error) {
	data := defaultRuleCatalogue
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidRules.Code, appErrors.ErrInvalidRules.Status, fmt.Sprintf("read rule catalogue %s", path))
		}
		data = raw
	}
	return ParseRuleCatalogue(data, validate)
}

// ParseRuleCatalogue decodes and checks a YAML rule catalogue.
func ParseRuleCatalogue(data []byte, validate *validator.Validate) ([]models.Rule, error) {
	if validate == nil {
		validate = validator.New()
	}
	var catalogue models.RuleCatalogue
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalogue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRules.Code, appErrors.ErrInvalidRules.Status, "failed to decode rule catalogue")
	}
	if err := validate.Struct(catalogue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRules.Code, appErrors.ErrInvalidRules.Status, "rule catalogue failed validation")
	}
	if err := checkRules(catalogue.Rules); err != nil {
		return nil, err
	}
	return catalogue.Rules, nil
}

func checkRules(rules []models.Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if seen[rule.Name] {
			return appErrors.Clone(appErrors.ErrInvalidRules, fmt.Sprintf("duplicate rule name %q", rule.Name))
		}
		seen[rule.Name] = true

		params, known := requiredRuleParams[rule.Type]
		if !known {
			return appErrors.Clone(appErrors.ErrInvalidRules, fmt.Sprintf("rule %q has unknown type %q", rule.Name, rule.Type))
		}
		for _, key := range params {
			value, ok := rule.Params[key]
			if !ok {
				return appErrors.Clone(appErrors.ErrInvalidRules, fmt.Sprintf("rule %q is missing param %q", rule.Name, key))
			}
			if value < 0 {
				return appErrors.Clone(appErrors.ErrInvalidRules, fmt.Sprintf("rule %q param %q must be non-negative", rule.Name, key))
			}
		}
	}
	return nil
}

package tax

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// rulesFile is the layout of a tax rule seed file:
//
//	rules:
//	  Kantoorkosten:
//	    vat_deductible_percentage: 100
//	    ib_deductible_percentage: 100
type rulesFile struct {
	Rules map[string]Rule `yaml:"rules"`
}

// LoadRulesFile reads overrides from a YAML file and stores them through the rule book,
// so every entry passes the same validation as an interactive edit. It returns the number of rules applied.
func LoadRulesFile(path string, book *RuleBook) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return 0, fmt.Errorf("parsing rules file: %w", err)
	}

	// Reject the whole file before writing anything
	for label, rule := range f.Rules {
		if _, err := book.check(label, rule); err != nil {
			return 0, fmt.Errorf("rule %q: %w", label, err)
		}
	}
	for label, rule := range f.Rules {
		if _, err := book.SetOverride(label, rule); err != nil {
			return 0, fmt.Errorf("applying rule %q: %w", label, err)
		}
	}
	return len(f.Rules), nil
}

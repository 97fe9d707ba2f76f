package tax

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is returned when an override is rejected at write time
var ErrValidation = errors.New("validation failed")

// DefaultScope is the override scope used by single-user installations
const DefaultScope = "default"

// RuleStore persists per-scope category overrides
type RuleStore interface {
	// TaxRules returns all overrides for scope
	TaxRules(scope string) (map[Category]Rule, error)

	// SaveTaxRule writes the override for category in scope
	SaveTaxRule(scope string, category Category, rule Rule) error

	// DeleteTaxRule removes the override for category in scope
	DeleteTaxRule(scope string, category Category) error
}

// RuleBook resolves and maintains the tax rule overrides of a single scope
type RuleBook struct {
	store    RuleStore
	scope    string
	validate *validator.Validate
}

// NewRuleBook creates a RuleBook for scope. An empty scope means DefaultScope.
func NewRuleBook(store RuleStore, scope string) *RuleBook {
	if scope == "" {
		scope = DefaultScope
	}
	return &RuleBook{
		store:    store,
		scope:    scope,
		validate: validator.New(),
	}
}

// Overrides returns the stored overrides of this scope
func (r *RuleBook) Overrides() (map[Category]Rule, error) {
	overrides, err := r.store.TaxRules(r.scope)
	if err != nil {
		return nil, fmt.Errorf("loading tax rules: %w", err)
	}
	return overrides, nil
}

// Resolve returns the rule that applies to category for this scope
func (r *RuleBook) Resolve(category Category) (Rule, error) {
	overrides, err := r.Overrides()
	if err != nil {
		return Rule{}, err
	}
	rule := Resolve(category, overrides)
	slog.Debug("Resolved tax rule",
		"scope", r.scope,
		"category", category,
		"vat_pct", rule.VATDeductiblePercentage,
		"ib_pct", rule.IBDeductiblePercentage,
	)
	return rule, nil
}

// Effective returns the resolved rule for every category
func (r *RuleBook) Effective() (map[Category]Rule, error) {
	overrides, err := r.Overrides()
	if err != nil {
		return nil, err
	}
	out := make(map[Category]Rule, len(allCategories))
	for _, c := range allCategories {
		out[c] = Resolve(c, overrides)
	}
	return out, nil
}

// SetOverride validates and stores an override. Out of range percentages are rejected, never clamped.
func (r *RuleBook) SetOverride(label string, rule Rule) (Category, error) {
	category, err := r.check(label, rule)
	if err != nil {
		return "", err
	}
	if err := r.store.SaveTaxRule(r.scope, category, rule); err != nil {
		return "", fmt.Errorf("saving tax rule: %w", err)
	}
	slog.Info("Tax rule override saved",
		"scope", r.scope,
		"category", category,
		"vat_pct", rule.VATDeductiblePercentage,
		"ib_pct", rule.IBDeductiblePercentage,
	)
	return category, nil
}

func (r *RuleBook) check(label string, rule Rule) (Category, error) {
	category, ok := ParseCategory(label)
	if !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, label)
	}
	if err := r.validate.Struct(rule); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrValidation, category, err)
	}
	return category, nil
}

// ResetOverride removes the override for label so the default applies again
func (r *RuleBook) ResetOverride(label string) (Category, error) {
	category, ok := ParseCategory(label)
	if !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, label)
	}
	if err := r.store.DeleteTaxRule(r.scope, category); err != nil {
		return "", fmt.Errorf("deleting tax rule: %w", err)
	}
	return category, nil
}

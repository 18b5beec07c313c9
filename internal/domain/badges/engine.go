package badges

import "github.com/volunteerfinder/reputation/internal/domain/model"

// Evaluator proposes badges a user has earned but does not yet hold.
type Evaluator interface {
	Evaluate(u model.User) []model.Badge
}

// Engine is a pure reducer over a fixed rule table.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over rules, or DefaultRules when none given.
// The table is copied; later changes to the argument have no effect.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	table := make([]Rule, len(rules))
	copy(table, rules)
	return &Engine{rules: table}
}

// Rules returns a copy of the engine's rule table.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate returns, in rule order, every badge whose predicate holds for u
// and whose name u does not already hold. It never mutates u.
func (e *Engine) Evaluate(u model.User) []model.Badge {
	var earned []model.Badge
	proposed := make(map[string]struct{})
	for _, r := range e.rules {
		if _, dup := proposed[r.Badge.Name]; dup {
			continue
		}
		if u.HasBadge(r.Badge.Name) || !r.Matches(u) {
			continue
		}
		proposed[r.Badge.Name] = struct{}{}
		earned = append(earned, r.Badge)
	}
	return earned
}

// Missing returns the badges in earned whose names are not in held.
func Missing(held, earned []model.Badge) []model.Badge {
	have := make(map[string]struct{}, len(held))
	for _, b := range held {
		have[b.Name] = struct{}{}
	}
	var out []model.Badge
	for _, b := range earned {
		if _, ok := have[b.Name]; ok {
			continue
		}
		have[b.Name] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Package insights turns a metrics-enriched harvest record into advisory text.
//
// Each business rule is an Evaluator. The Aggregator runs a fixed, ordered
// registry of them, isolating failures so that one rule that cannot read its
// inputs never suppresses the output of the others.
package insights

import (
	"fmt"
	"strconv"
	"strings"

	"caneharvest/internal/types"
)

// Finding is what one evaluator contributes: zero or more alert and
// recommendation sentences.
type Finding struct {
	Alerts          []string `json:"alerts,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Empty reports whether the finding carries no text at all.
func (f Finding) Empty() bool {
	return len(f.Alerts) == 0 && len(f.Recommendations) == 0
}

func finding(alert, recommendation string) Finding {
	var out Finding
	if alert != "" {
		out.Alerts = []string{alert}
	}
	if recommendation != "" {
		out.Recommendations = []string{recommendation}
	}
	return out
}

// Evaluator is one independent advisory rule. Implementations must be
// deterministic: identical input yields identical output.
type Evaluator interface {
	Name() string
	Evaluate(f types.Fields) (Finding, error)
}

// EvaluatorFunc adapts a plain function into a named Evaluator.
type EvaluatorFunc struct {
	name string
	fn   func(types.Fields) (Finding, error)
}

// NewEvaluatorFunc wraps fn under the given name.
func NewEvaluatorFunc(name string, fn func(types.Fields) (Finding, error)) EvaluatorFunc {
	return EvaluatorFunc{name: name, fn: fn}
}

// Name implements Evaluator.
func (e EvaluatorFunc) Name() string { return e.name }

// Evaluate implements Evaluator.
func (e EvaluatorFunc) Evaluate(f types.Fields) (Finding, error) { return e.fn(f) }

// lookupAll returns the raw value of every key, failing on the first one absent.
func lookupAll(f types.Fields, keys ...string) ([]any, error) {
	if err := f.Require(keys...); err != nil {
		return nil, err
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = f[k]
	}
	return out, nil
}

// formatNumber renders a float the way the advisory texts show numbers:
// shortest representation, always with a fractional part ("10.0", "47.5").
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// formatValue renders an arbitrary input value inside an invalid-value alert.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v", v)
}

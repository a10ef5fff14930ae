package insights

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"caneharvest/internal/types"
)

// Outcome is the tagged result of one evaluator invocation. Exactly one of
// Finding or Err is meaningful.
type Outcome struct {
	Evaluator string
	Finding   Finding
	Err       error
}

// Failed reports whether the evaluator could not produce a finding.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Report is the full result of an aggregation pass.
type Report struct {
	Advisory types.Advisory
	Outcomes []Outcome
}

// Failures returns the outcomes that were skipped.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Aggregator runs a fixed list of evaluators and joins their output.
// It holds no per-call state and is safe for concurrent use.
type Aggregator struct {
	evaluators []Evaluator
	logger     *slog.Logger
}

// NewAggregator builds an Aggregator over evaluators, run in slice order.
func NewAggregator(evaluators []Evaluator, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]Evaluator, len(evaluators))
	copy(list, evaluators)
	return &Aggregator{evaluators: list, logger: logger}
}

// Names returns the evaluator names in run order.
func (a *Aggregator) Names() []string {
	names := make([]string, len(a.evaluators))
	for i, e := range a.evaluators {
		names[i] = e.Name()
	}
	return names
}

// Generate returns only the joined advisory.
func (a *Aggregator) Generate(ctx context.Context, f types.Fields) types.Advisory {
	return a.Evaluate(ctx, f).Advisory
}

// Evaluate runs every evaluator against f. A failing or panicking evaluator
// is logged and skipped; the remaining ones still contribute. Alerts and
// recommendations are each joined with single spaces in evaluator order.
func (a *Aggregator) Evaluate(ctx context.Context, f types.Fields) Report {
	logger := types.LoggerFromContext(ctx, a.logger)

	outcomes := make([]Outcome, 0, len(a.evaluators))
	var alerts, recs []string
	for _, e := range a.evaluators {
		o := invoke(e, f)
		outcomes = append(outcomes, o)
		if o.Failed() {
			logger.ErrorContext(ctx, "insight evaluator failed",
				"evaluator", o.Evaluator,
				"error", o.Err,
			)
			continue
		}
		alerts = appendNonEmpty(alerts, o.Finding.Alerts)
		recs = appendNonEmpty(recs, o.Finding.Recommendations)
	}

	return Report{
		Advisory: types.Advisory{
			Alert:          strings.Join(alerts, " "),
			Recommendation: strings.Join(recs, " "),
		},
		Outcomes: outcomes,
	}
}

// invoke calls e and captures any error or panic as a failed Outcome.
func invoke(e Evaluator, f types.Fields) (out Outcome) {
	out.Evaluator = e.Name()
	defer func() {
		if r := recover(); r != nil {
			out.Finding = Finding{}
			out.Err = evaluationFailure(out.Evaluator, fmt.Errorf("panic: %v", r))
		}
	}()

	finding, err := e.Evaluate(f)
	if err != nil {
		out.Err = evaluationFailure(out.Evaluator, err)
		return out
	}
	out.Finding = finding
	return out
}

func evaluationFailure(name string, cause error) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeEvaluationFailure,
		fmt.Sprintf("evaluator %s failed", name),
		cause,
		map[string]any{"evaluator": name},
	)
}

func appendNonEmpty(dst, src []string) []string {
	for _, s := range src {
		if s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}

// Package metrics derives the efficiency figures of a harvest record.
//
// The calculation is pure: a flat field mapping goes in, the four derived
// values come out, rounded to a fixed number of decimal digits. Rounding is
// round-half-to-even applied to the shortest decimal representation of each
// float (so 0.125 rounds to 0.12 and 0.135 rounds to 0.14 at precision 2).
// Persisted values and test fixtures depend on this rule.
package metrics

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"caneharvest/internal/types"
)

// DefaultPrecision is the number of decimal digits kept when no precision is
// configured.
const DefaultPrecision = 2

// MaxPrecision bounds the configurable precision.
const MaxPrecision = 10

// RequiredFields are the inputs the calculator reads.
var RequiredFields = []string{
	types.FieldLossPercentage,
	types.FieldProduction,
	types.FieldDurationHours,
	types.FieldArea,
}

// Calculator computes DerivedMetrics at a fixed precision.
type Calculator struct {
	precision int32
}

// NewCalculator returns a Calculator that rounds to precision digits.
func NewCalculator(precision int) (*Calculator, error) {
	if precision < 0 || precision > MaxPrecision {
		return nil, fmt.Errorf("metrics: precision must be between 0 and %d, got %d", MaxPrecision, precision)
	}
	return &Calculator{precision: int32(precision)}, nil
}

// Precision returns the configured number of decimal digits.
func (c *Calculator) Precision() int {
	return int(c.precision)
}

// Calculate derives lost tonnage, net production and both productivity
// figures. A zero duration or area yields 0.0 for the matching productivity
// rather than an error. Any required field that is absent or not numeric
// fails with INVALID_INPUT, as does a result that overflows to a non-finite
// value.
func (c *Calculator) Calculate(f types.Fields) (types.DerivedMetrics, error) {
	in := make(map[string]float64, len(RequiredFields))
	for _, key := range RequiredFields {
		v, err := f.Number(key)
		if err != nil {
			return types.DerivedMetrics{}, err
		}
		in[key] = v
	}

	production := in[types.FieldProduction]
	lostTonnage := (in[types.FieldLossPercentage] / 100) * production
	netProduction := production - lostTonnage

	var perHour, perHectare float64
	if d := in[types.FieldDurationHours]; d != 0 {
		perHour = netProduction / d
	}
	if a := in[types.FieldArea]; a != 0 {
		perHectare = netProduction / a
	}

	for _, out := range []struct {
		value float64
		input string
	}{
		{lostTonnage, types.FieldProduction},
		{netProduction, types.FieldProduction},
		{perHour, types.FieldDurationHours},
		{perHectare, types.FieldArea},
	} {
		if math.IsInf(out.value, 0) || math.IsNaN(out.value) {
			return types.DerivedMetrics{}, types.NewInvalidInputError(out.input, "derived metrics are not finite")
		}
	}

	return types.DerivedMetrics{
		LostTonnage:            c.round(lostTonnage),
		NetProduction:          c.round(netProduction),
		ProductivityPerHour:    c.round(perHour),
		ProductivityPerHectare: c.round(perHectare),
	}, nil
}

// Enrich returns a copy of f with the derived metrics merged in.
func (c *Calculator) Enrich(f types.Fields) (types.Fields, types.DerivedMetrics, error) {
	m, err := c.Calculate(f)
	if err != nil {
		return nil, types.DerivedMetrics{}, err
	}
	return f.Merge(m.Fields()), m, nil
}

func (c *Calculator) round(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).RoundBank(c.precision).Float64()
	return out
}

// Calculate runs a Calculator at DefaultPrecision.
func Calculate(f types.Fields) (types.DerivedMetrics, error) {
	c := &Calculator{precision: DefaultPrecision}
	return c.Calculate(f)
}

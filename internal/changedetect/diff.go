// Package changedetect computes field-level diffs between two extraction
// records of the same source and classifies each difference by materiality.
package changedetect

import (
	"math"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/normalize"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// Config tunes value equivalence during comparison.
type Config struct {
	// DateLayouts are tried when parsing date fields; nil selects defaults.
	DateLayouts []string

	// CurrencyTolerance is the absolute amount difference under which two
	// currency values with the same code compare equal. Default: 0.005.
	CurrencyTolerance float64
}

func (c Config) withDefaults() Config {
	if len(c.DateLayouts) == 0 {
		c.DateLayouts = normalize.DefaultDateLayouts
	}
	if c.CurrencyTolerance <= 0 {
		c.CurrencyTolerance = 0.005
	}
	return c
}

// Engine diffs records. It is a pure function over two immutable inputs and
// never touches the record store.
type Engine struct {
	cfg Config
}

// New creates a change-detection engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Diff compares the previous record (nil for a first-ever extraction)
// against the current one. Every schema field appears exactly once in the
// output.
func (e *Engine) Diff(prev, cur *model.ExtractionRecord, sch *schema.Schema) []model.FieldDiff {
	diffs := make([]model.FieldDiff, 0, len(sch.Fields))

	for _, f := range sch.Fields {
		var oldVal *string
		if prev != nil {
			oldVal = prev.Field(f.Name).Value
		}
		newVal := cur.Field(f.Name).Value

		diffs = append(diffs, model.FieldDiff{
			Field: f.Name,
			Old:   oldVal,
			New:   newVal,
			Class: e.classify(f.Type, prev == nil, oldVal, newVal),
		})
	}

	return diffs
}

func (e *Engine) classify(ft schema.FieldType, firstEver bool, oldVal, newVal *string) model.Materiality {
	// First-ever record: every non-null field is newly present, nothing else
	// applies.
	if firstEver {
		if newVal != nil {
			return model.DiffNewlyPresent
		}
		return model.DiffUnchanged
	}

	switch {
	case oldVal == nil && newVal == nil:
		return model.DiffUnchanged
	case oldVal != nil && newVal == nil:
		return model.DiffMissingNow
	case oldVal == nil && newVal != nil:
		return model.DiffNewlyPresent
	}

	if *oldVal == *newVal {
		return model.DiffUnchanged
	}
	if e.equivalent(ft, *oldVal, *newVal) {
		return model.DiffCosmetic
	}
	return model.DiffMaterial
}

// equivalent compares two raw values after type-aware normalization:
// numeric tolerance for currency, calendar-day equality for dates,
// trim plus case-fold for text.
func (e *Engine) equivalent(ft schema.FieldType, a, b string) bool {
	switch ft {
	case schema.TypeCurrency:
		ca, okA := normalize.ParseCurrency(a)
		cb, okB := normalize.ParseCurrency(b)
		if okA && okB {
			return ca.Code == cb.Code && math.Abs(ca.Amount-cb.Amount) <= e.cfg.CurrencyTolerance
		}

	case schema.TypeDate:
		ta, okA := normalize.ParseDate(a, e.cfg.DateLayouts)
		tb, okB := normalize.ParseDate(b, e.cfg.DateLayouts)
		if okA && okB {
			return ta.Year() == tb.Year() && ta.Month() == tb.Month() && ta.Day() == tb.Day()
		}
	}

	return normalize.CanonicalText(a) == normalize.CanonicalText(b)
}

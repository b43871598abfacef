// Package validate applies declarative rules to an extraction record,
// producing per-field confidence scores and an overall verdict.
package validate

import (
	"time"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/normalize"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// Field flags recorded when a rule fires.
const (
	FlagTypeMismatch      = "type_mismatch"
	FlagImplausibleAmount = "implausible_amount"
	FlagDateInPast        = "date_in_past"
	FlagDateTooFarFuture  = "date_too_far_future"
)

// Config holds the scoring rule parameters.
type Config struct {
	// ConfidenceThreshold is the minimum confidence every required field
	// needs for an accept verdict. Default: 0.7.
	ConfidenceThreshold float64

	// MaxFee is the exclusive upper bound for plausible currency amounts.
	// Default: 1,000,000.
	MaxFee float64

	// DateLayouts are tried when parsing date fields; nil selects defaults.
	DateLayouts []string

	// GraceDays is how far before "today" a date may fall before it is
	// flagged. Default: 365.
	GraceDays int

	// MaxFutureYears is how far ahead of "today" a date may fall before it
	// is flagged. Default: 5.
	MaxFutureYears int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.MaxFee <= 0 {
		c.MaxFee = 1_000_000
	}
	if len(c.DateLayouts) == 0 {
		c.DateLayouts = normalize.DefaultDateLayouts
	}
	if c.GraceDays <= 0 {
		c.GraceDays = 365
	}
	if c.MaxFutureYears <= 0 {
		c.MaxFutureYears = 5
	}
	return c
}

// Scorer scores extraction records. It is a pure deterministic reduction
// over field confidences; validation always completes and never errors.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// New creates a Scorer with the given rule configuration.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.withDefaults(), now: time.Now}
}

// WithNow overrides the clock used by date plausibility rules. Test hook.
func (s *Scorer) WithNow(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score returns a new record with updated confidences and verdict; the
// input record is not mutated.
func (s *Scorer) Score(rec *model.ExtractionRecord, sch *schema.Schema) *model.ExtractionRecord {
	out := rec.Clone()

	for _, f := range sch.Fields {
		fv := out.Field(f.Name)
		out.Fields[f.Name] = s.scoreField(f, fv)
	}

	out.Verdict = s.verdict(out, sch)
	return out
}

// scoreField applies presence, type-conformance, and plausibility rules
// independently to one field.
func (s *Scorer) scoreField(f schema.FieldSpec, fv model.FieldValue) model.FieldValue {
	if fv.Value == nil {
		fv.Confidence = 0
		return fv
	}

	switch f.Type {
	case schema.TypeCurrency:
		cur, ok := normalize.ParseCurrency(*fv.Value)
		if !ok {
			fv.Confidence /= 2
			fv.Flags = append(fv.Flags, FlagTypeMismatch)
			break
		}
		if cur.Amount <= 0 || cur.Amount >= s.cfg.MaxFee {
			fv.Confidence /= 2
			fv.Flags = append(fv.Flags, FlagImplausibleAmount)
		}

	case schema.TypeDate:
		t, ok := normalize.ParseDate(*fv.Value, s.cfg.DateLayouts)
		if !ok {
			fv.Confidence /= 2
			fv.Flags = append(fv.Flags, FlagTypeMismatch)
			break
		}
		// Year 0 means the layout carried no year; plausibility cannot be
		// judged against the calendar.
		if t.Year() == 0 {
			break
		}
		today := s.now().UTC().Truncate(24 * time.Hour)
		if t.Before(today.AddDate(0, 0, -s.cfg.GraceDays)) {
			fv.Confidence /= 2
			fv.Flags = append(fv.Flags, FlagDateInPast)
		} else if t.After(today.AddDate(s.cfg.MaxFutureYears, 0, 0)) {
			fv.Confidence /= 2
			fv.Flags = append(fv.Flags, FlagDateTooFarFuture)
		}
	}

	if fv.Confidence < 0 {
		fv.Confidence = 0
	}
	if fv.Confidence > 1 {
		fv.Confidence = 1
	}
	return fv
}

// verdict reduces field confidences to accept/review/reject. A record where
// the extractor produced nothing at all is rejected; otherwise any required
// field below the threshold demotes the record to review.
func (s *Scorer) verdict(rec *model.ExtractionRecord, sch *schema.Schema) model.Verdict {
	produced := false
	for _, f := range sch.Fields {
		if rec.Field(f.Name).Value != nil {
			produced = true
			break
		}
	}
	if !produced {
		return model.VerdictReject
	}

	for _, f := range sch.Required() {
		if rec.Field(f.Name).Confidence < s.cfg.ConfidenceThreshold {
			return model.VerdictReview
		}
	}
	return model.VerdictAccept
}

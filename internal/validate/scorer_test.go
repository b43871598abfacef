package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// fixedNow pins the clock so date plausibility rules are deterministic.
var fixedNow = func() time.Time {
	return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func newScorer(cfg Config) *Scorer {
	return New(cfg).WithNow(fixedNow)
}

func feeSchema() *schema.Schema {
	return schema.New([]schema.FieldSpec{
		{Name: "fee", Type: schema.TypeCurrency},
		{Name: "deadline", Type: schema.TypeDate},
		{Name: "requirements", Type: schema.TypeText, Required: true},
	})
}

func record(fields map[string]model.FieldValue) *model.ExtractionRecord {
	return &model.ExtractionRecord{SourceID: "src-1", Fields: fields}
}

func TestScore_DoesNotMutateInput(t *testing.T) {
	rec := record(map[string]model.FieldValue{
		"fee":          {Value: model.Str("not money"), Confidence: 1.0},
		"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
	})

	out := newScorer(Config{}).Score(rec, feeSchema())

	assert.Empty(t, rec.Fields["fee"].Flags, "input record must stay untouched")
	assert.Equal(t, 1.0, rec.Fields["fee"].Confidence)
	assert.Equal(t, 0.5, out.Fields["fee"].Confidence)
}

func TestScoreField_NullHasZeroConfidence(t *testing.T) {
	out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"fee":          {Confidence: 0},
		"deadline":     {Confidence: 0},
		"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
	}), feeSchema())

	assert.Zero(t, out.Fields["fee"].Confidence)
	assert.Empty(t, out.Fields["fee"].Flags)
}

func TestScoreField_CurrencyRules(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantConf  float64
		wantFlags []string
	}{
		{"well-formed", "EUR 20,000", 1.0, nil},
		{"unparseable", "twenty grand", 0.5, []string{FlagTypeMismatch}},
		{"zero amount", "EUR 0", 0.5, []string{FlagImplausibleAmount}},
		{"above max fee", "EUR 2,000,000", 0.5, []string{FlagImplausibleAmount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
				"fee":          {Value: model.Str(tt.value), Confidence: 1.0},
				"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
			}), feeSchema())

			assert.Equal(t, tt.wantConf, out.Fields["fee"].Confidence)
			assert.Equal(t, tt.wantFlags, out.Fields["fee"].Flags)
		})
	}
}

func TestScoreField_DateRules(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantConf  float64
		wantFlags []string
	}{
		{"near future", "2026-06-01", 1.0, nil},
		{"recent past within grace", "2025-09-01", 1.0, nil},
		{"distant past", "2020-06-01", 0.5, []string{FlagDateInPast}},
		{"too far future", "2040-06-01", 0.5, []string{FlagDateTooFarFuture}},
		{"unparseable", "next summer", 0.5, []string{FlagTypeMismatch}},
		{"year unknown skips plausibility", "June 1st", 1.0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
				"deadline":     {Value: model.Str(tt.value), Confidence: 1.0},
				"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
			}), feeSchema())

			assert.Equal(t, tt.wantConf, out.Fields["deadline"].Confidence, tt.value)
			assert.Equal(t, tt.wantFlags, out.Fields["deadline"].Flags)
		})
	}
}

func TestVerdict_ThresholdBoundary(t *testing.T) {
	sch := feeSchema()

	// Exactly at the threshold accepts.
	out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"requirements": {Value: model.Str("a degree"), Confidence: 0.7},
	}), sch)
	assert.Equal(t, model.VerdictAccept, out.Verdict)

	// One hundredth below demotes to review.
	out = newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"requirements": {Value: model.Str("a degree"), Confidence: 0.69},
	}), sch)
	assert.Equal(t, model.VerdictReview, out.Verdict)
}

func TestVerdict_RejectWhenNothingProduced(t *testing.T) {
	out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"fee":          {Confidence: 0},
		"deadline":     {Confidence: 0},
		"requirements": {Confidence: 0},
	}), feeSchema())
	assert.Equal(t, model.VerdictReject, out.Verdict)
}

func TestVerdict_RequiredMissingIsReview(t *testing.T) {
	// Well-formed fee and deadline, but the required requirements field is
	// null: the record needs review, not rejection.
	out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"fee":          {Value: model.Str("EUR 20,000"), Confidence: 1.0},
		"deadline":     {Value: model.Str("June 1st"), Confidence: 1.0},
		"requirements": {Confidence: 0},
	}), feeSchema())
	assert.Equal(t, model.VerdictReview, out.Verdict)
}

func TestVerdict_OptionalLowConfidenceStillAccepts(t *testing.T) {
	out := newScorer(Config{}).Score(record(map[string]model.FieldValue{
		"fee":          {Value: model.Str("not money"), Confidence: 1.0},
		"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
	}), feeSchema())
	require.Equal(t, 0.5, out.Fields["fee"].Confidence)
	assert.Equal(t, model.VerdictAccept, out.Verdict)
}

func TestScore_Deterministic(t *testing.T) {
	rec := record(map[string]model.FieldValue{
		"fee":          {Value: model.Str("EUR 20,000"), Confidence: 1.0},
		"deadline":     {Value: model.Str("2026-06-01"), Confidence: 1.0},
		"requirements": {Value: model.Str("a degree"), Confidence: 1.0},
	})
	s := newScorer(Config{})

	a := s.Score(rec, feeSchema())
	b := s.Score(rec, feeSchema())
	assert.Equal(t, a.Verdict, b.Verdict)
	assert.Equal(t, a.Fields, b.Fields)
}

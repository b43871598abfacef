package changedetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

func diffSchema() *schema.Schema {
	return schema.New([]schema.FieldSpec{
		{Name: "fee", Type: schema.TypeCurrency},
		{Name: "deadline", Type: schema.TypeDate},
		{Name: "requirements", Type: schema.TypeText},
	})
}

func rec(fields map[string]model.FieldValue) *model.ExtractionRecord {
	return &model.ExtractionRecord{SourceID: "src-1", Fields: fields}
}

func byField(diffs []model.FieldDiff) map[string]model.FieldDiff {
	out := make(map[string]model.FieldDiff, len(diffs))
	for _, d := range diffs {
		out[d.Field] = d
	}
	return out
}

func TestDiff_EmitsEverySchemaFieldOnce(t *testing.T) {
	e := New(Config{})
	cur := rec(map[string]model.FieldValue{
		"fee": {Value: model.Str("EUR 20,000")},
	})

	diffs := e.Diff(nil, cur, diffSchema())
	require.Len(t, diffs, 3)

	seen := map[string]int{}
	for _, d := range diffs {
		seen[d.Field]++
	}
	for _, f := range diffSchema().Fields {
		assert.Equal(t, 1, seen[f.Name], f.Name)
	}
}

func TestDiff_FirstEver(t *testing.T) {
	e := New(Config{})
	cur := rec(map[string]model.FieldValue{
		"fee":      {Value: model.Str("EUR 20,000")},
		"deadline": {Confidence: 0},
	})

	d := byField(e.Diff(nil, cur, diffSchema()))
	assert.Equal(t, model.DiffNewlyPresent, d["fee"].Class)
	assert.Equal(t, model.DiffUnchanged, d["deadline"].Class)
	assert.Nil(t, d["fee"].Old)
	assert.Equal(t, "EUR 20,000", *d["fee"].New)
}

func TestDiff_CurrencyFormattingIsCosmetic(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"fee": {Value: model.Str("1000 EUR")}})
	cur := rec(map[string]model.FieldValue{"fee": {Value: model.Str("1,000.00 EUR")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffCosmetic, d["fee"].Class)
}

func TestDiff_CurrencyAmountChangeIsMaterial(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"fee": {Value: model.Str("EUR 20,000")}})
	cur := rec(map[string]model.FieldValue{"fee": {Value: model.Str("EUR 21,000")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffMaterial, d["fee"].Class)
}

func TestDiff_CurrencyCodeChangeIsMaterial(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"fee": {Value: model.Str("EUR 20,000")}})
	cur := rec(map[string]model.FieldValue{"fee": {Value: model.Str("USD 20,000")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffMaterial, d["fee"].Class)
}

func TestDiff_DateFormattingIsCosmetic(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("2026-06-01")}})
	cur := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("June 1, 2026")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffCosmetic, d["deadline"].Class)
}

func TestDiff_DateDayChangeIsMaterial(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("2026-06-01")}})
	cur := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("2026-07-15")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffMaterial, d["deadline"].Class)
}

func TestDiff_TextCaseAndSpacingIsCosmetic(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"requirements": {Value: model.Str("A Bachelor  Degree")}})
	cur := rec(map[string]model.FieldValue{"requirements": {Value: model.Str("a bachelor degree")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffCosmetic, d["requirements"].Class)
}

func TestDiff_MissingNowAndNewlyPresent(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{
		"fee":      {Value: model.Str("EUR 20,000")},
		"deadline": {Confidence: 0},
	})
	cur := rec(map[string]model.FieldValue{
		"fee":      {Confidence: 0},
		"deadline": {Value: model.Str("2026-06-01")},
	})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffMissingNow, d["fee"].Class)
	assert.Equal(t, model.DiffNewlyPresent, d["deadline"].Class)
	assert.Equal(t, model.DiffUnchanged, d["requirements"].Class)
}

func TestDiff_RawEqualIsUnchanged(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("June 1st")}})
	cur := rec(map[string]model.FieldValue{"deadline": {Value: model.Str("June 1st")}})

	d := byField(e.Diff(prev, cur, diffSchema()))
	assert.Equal(t, model.DiffUnchanged, d["deadline"].Class)
}

// The fee reformat scenario: same fee written differently plus an identical
// deadline must report exactly one cosmetic change and no material ones.
func TestDiff_FeeReformatScenario(t *testing.T) {
	e := New(Config{})
	prev := rec(map[string]model.FieldValue{
		"fee":      {Value: model.Str("1000 EUR")},
		"deadline": {Value: model.Str("June 1st")},
	})
	cur := rec(map[string]model.FieldValue{
		"fee":      {Value: model.Str("1,000.00 EUR")},
		"deadline": {Value: model.Str("June 1st")},
	})

	diffs := e.Diff(prev, cur, diffSchema())
	d := byField(diffs)
	assert.Equal(t, model.DiffCosmetic, d["fee"].Class)
	assert.Equal(t, model.DiffUnchanged, d["deadline"].Class)
	assert.False(t, model.Material(diffs))
}

package extractor

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/normalize"
	"github.com/progwatch/progwatch-cli/internal/schema"
)

// HeuristicVersion identifies the keyword-scan implementation for
// provenance and idempotence checks.
const HeuristicVersion = "v1"

// maxSpanLen caps the extracted sentence span for a field.
const maxSpanLen = 240

// Heuristic extracts fields by scanning for configured keyword anchors.
// It is pure in-memory computation: no external calls, never fails, and a
// field with no matching anchor yields a null value with confidence 0.
type Heuristic struct {
	dateLayouts []string
}

// NewHeuristic creates a keyword-anchor extractor. dateLayouts are used to
// narrow date fields to a parseable token; nil selects the defaults.
func NewHeuristic(dateLayouts []string) *Heuristic {
	if len(dateLayouts) == 0 {
		dateLayouts = normalize.DefaultDateLayouts
	}
	return &Heuristic{dateLayouts: dateLayouts}
}

func (h *Heuristic) Name() string { return "heuristic" }

// Extract scans normalizedText for each field's anchors and returns the
// first matching span, narrowed to a typed token for currency and date
// fields. The returned error is always nil; it exists to satisfy the
// Extractor contract.
func (h *Heuristic) Extract(_ context.Context, normalizedText string, s *schema.Schema) (*model.ExtractionRecord, error) {
	rec := &model.ExtractionRecord{
		Extractor:        h.Name(),
		ExtractorVersion: HeuristicVersion,
		Fields:           make(map[string]model.FieldValue, len(s.Fields)),
		ExtractedAt:      time.Now().UTC(),
	}

	for _, f := range s.Fields {
		anchor, pos := firstAnchor(normalizedText, f.Keywords)
		if pos < 0 {
			rec.Fields[f.Name] = model.FieldValue{Confidence: 0}
			continue
		}

		span := sentenceAround(normalizedText, pos)
		value := span

		switch f.Type {
		case schema.TypeCurrency:
			if tok := normalize.FindCurrency(span); tok != "" {
				value = tok
			}
		case schema.TypeDate:
			if tok := normalize.FindDate(span, h.dateLayouts); tok != "" {
				value = tok
			}
		}

		rec.Fields[f.Name] = model.FieldValue{
			Value:      model.Str(value),
			Confidence: 1.0,
			Provenance: "anchor:" + anchor,
		}
	}

	return rec, nil
}

// firstAnchor returns the anchor with the earliest case-insensitive match in
// text, breaking position ties by keyword order so extraction stays
// deterministic. The returned offset is a byte offset into text itself;
// searching strings.ToLower(text) instead would shift offsets for runes whose
// lowercase form has a different byte length.
func firstAnchor(text string, keywords []string) (string, int) {
	best := -1
	var anchor string
	for _, kw := range keywords {
		idx := indexFold(text, kw)
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			anchor = kw
		}
	}
	return anchor, best
}

// indexFold returns the byte offset in text of the first case-insensitive
// occurrence of kw, or -1.
func indexFold(text, kw string) int {
	if kw == "" {
		return -1
	}
	for i := 0; i < len(text); {
		if foldPrefix(text[i:], kw) {
			return i
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1
}

// foldPrefix reports whether s starts with prefix under simple case folding.
func foldPrefix(s, prefix string) bool {
	for _, pr := range prefix {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(pr) {
			return false
		}
		s = s[size:]
	}
	return true
}

// sentenceAround extracts the sentence containing position pos, capped at
// maxSpanLen characters.
func sentenceAround(text string, pos int) string {
	start := 0
	if idx := strings.LastIndexAny(text[:pos], ".!?"); idx >= 0 {
		start = idx + 1
	}

	end := len(text)
	if idx := strings.IndexAny(text[pos:], ".!?"); idx >= 0 {
		end = pos + idx
	}

	if end-start > maxSpanLen {
		end = start + maxSpanLen
	}

	return strings.TrimSpace(text[start:end])
}

package model

import "time"

// Verdict is the validation outcome for one extraction record.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReview Verdict = "review"
	VerdictReject Verdict = "reject"
)

// FieldValue is one extracted field with its confidence and provenance.
// Value is nil when the extractor found nothing for the field.
type FieldValue struct {
	Value      *string  `json:"value"`
	Confidence float64  `json:"confidence"`
	Provenance string   `json:"provenance,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// Str returns a pointer to s, for building FieldValue literals.
func Str(s string) *string {
	return &s
}

// ExtractionRecord is the output of one extraction attempt. It is immutable
// once created; the validation scorer returns a new record rather than
// mutating its input, and the record store owns it after acceptance.
type ExtractionRecord struct {
	ID               string                `json:"id,omitempty"`
	SourceID         string                `json:"source_id"`
	Extractor        string                `json:"extractor"`
	ExtractorVersion string                `json:"extractor_version"`
	Fields           map[string]FieldValue `json:"fields"`
	Verdict          Verdict               `json:"verdict"`
	ExtractedAt      time.Time             `json:"extracted_at"`
	RawTextHash      string                `json:"raw_text_hash"`

	// Version is assigned by the record store on append, starting at 1.
	Version int `json:"version,omitempty"`

	// Diffs against the previous version, attached by the change-detection
	// engine before append. Never persisted independently of the record.
	Diffs []FieldDiff `json:"diffs,omitempty"`
}

// Field returns the value for name, or a zero FieldValue if absent.
func (r *ExtractionRecord) Field(name string) FieldValue {
	return r.Fields[name]
}

// Clone returns a deep copy of the record. The scorer and change-detection
// engine operate on copies so callers can treat records as immutable.
func (r *ExtractionRecord) Clone() *ExtractionRecord {
	out := *r
	out.Fields = make(map[string]FieldValue, len(r.Fields))
	for name, fv := range r.Fields {
		cp := fv
		if fv.Value != nil {
			v := *fv.Value
			cp.Value = &v
		}
		if len(fv.Flags) > 0 {
			cp.Flags = append([]string(nil), fv.Flags...)
		}
		out.Fields[name] = cp
	}
	if len(r.Diffs) > 0 {
		out.Diffs = append([]FieldDiff(nil), r.Diffs...)
	}
	return &out
}

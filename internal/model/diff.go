package model

// Materiality classifies a field-level change between two record versions.
type Materiality string

const (
	// DiffUnchanged means the values are equal as stored.
	DiffUnchanged Materiality = "unchanged"
	// DiffCosmetic means the values differ only in formatting; their
	// normalized forms are equal.
	DiffCosmetic Materiality = "cosmetic"
	// DiffMaterial means the normalized values differ.
	DiffMaterial Materiality = "material"
	// DiffMissingNow means the field was present before and is null now.
	DiffMissingNow Materiality = "missing-now"
	// DiffNewlyPresent means the field was null (or had no prior record)
	// and is present now.
	DiffNewlyPresent Materiality = "newly-present"
)

// FieldDiff is the comparison result for one field between two extraction
// records of the same source.
type FieldDiff struct {
	Field string      `json:"field"`
	Old   *string     `json:"old"`
	New   *string     `json:"new"`
	Class Materiality `json:"class"`
}

// Material reports whether any diff in the slice is material, missing-now,
// or newly-present.
func Material(diffs []FieldDiff) bool {
	for _, d := range diffs {
		switch d.Class {
		case DiffMaterial, DiffMissingNow, DiffNewlyPresent:
			return true
		}
	}
	return false
}

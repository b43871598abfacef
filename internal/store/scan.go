package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/progwatch/progwatch-cli/internal/model"
)

// recordColumns is the shared column order for record scans across backends.
const recordColumns = `id, source_id, version, extractor, extractor_version, fields, verdict, diffs, raw_text_hash, extracted_at`

func marshalRecordBlobs(rec *model.ExtractionRecord) (fields string, diffs sql.NullString, err error) {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", sql.NullString{}, eris.Wrap(err, "store: marshal fields")
	}
	if len(rec.Diffs) > 0 {
		diffsJSON, err := json.Marshal(rec.Diffs)
		if err != nil {
			return "", sql.NullString{}, eris.Wrap(err, "store: marshal diffs")
		}
		diffs = sql.NullString{String: string(diffsJSON), Valid: true}
	}
	return string(fieldsJSON), diffs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row from either backend. A no-rows result
// yields (nil, nil).
func scanRecord(row scannable) (*model.ExtractionRecord, error) {
	var rec model.ExtractionRecord
	var fieldsJSON string
	var diffsJSON sql.NullString
	var verdict string

	err := row.Scan(&rec.ID, &rec.SourceID, &rec.Version, &rec.Extractor, &rec.ExtractorVersion,
		&fieldsJSON, &verdict, &diffsJSON, &rec.RawTextHash, &rec.ExtractedAt)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan record")
	}

	rec.Verdict = model.Verdict(verdict)
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal fields")
	}
	if diffsJSON.Valid {
		if err := json.Unmarshal([]byte(diffsJSON.String), &rec.Diffs); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal diffs")
		}
	}
	return &rec, nil
}

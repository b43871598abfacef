package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/progwatch/progwatch-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	last_seen_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS records (
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES sources(id),
	version           INTEGER NOT NULL,
	extractor         TEXT NOT NULL,
	extractor_version TEXT NOT NULL,
	fields            TEXT NOT NULL,
	verdict           TEXT NOT NULL,
	diffs             TEXT,
	raw_text_hash     TEXT NOT NULL,
	extracted_at      DATETIME NOT NULL,
	UNIQUE(source_id, version)
);

CREATE INDEX IF NOT EXISTS idx_records_source_extracted ON records(source_id, extracted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, url, label, last_seen_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET url = excluded.url, label = excluded.label`,
		src.ID, src.URL, src.Label, now,
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.ID)
}

func (s *SQLiteStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, label, last_seen_at FROM sources WHERE id = ?`, sourceID)

	var src model.Source
	err := row.Scan(&src.ID, &src.URL, &src.Label, &src.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", sourceID)
	}
	return &src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, label, last_seen_at FROM sources ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.URL, &src.Label, &src.LastSeenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}


func (s *SQLiteStore) Latest(ctx context.Context, sourceID string) (*model.ExtractionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = ? ORDER BY version DESC LIMIT 1`,
		sourceID,
	)
	return scanRecord(row)
}

func (s *SQLiteStore) AsOf(ctx context.Context, sourceID string, t time.Time) (*model.ExtractionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE source_id = ? AND extracted_at <= ?
		 ORDER BY extracted_at DESC, version DESC LIMIT 1`,
		sourceID, t.UTC(),
	)
	return scanRecord(row)
}

func (s *SQLiteStore) History(ctx context.Context, sourceID string) ([]model.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = ? ORDER BY version ASC`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history %s", sourceID)
	}
	defer rows.Close()

	var records []model.ExtractionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) Append(ctx context.Context, rec *model.ExtractionRecord, parentVersion int) (*AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	latest, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = ? ORDER BY version DESC LIMIT 1`,
		rec.SourceID,
	))
	if err != nil {
		return nil, err
	}

	latestVersion := 0
	if latest != nil {
		latestVersion = latest.Version
	}
	if parentVersion != latestVersion {
		return nil, ErrConflict
	}

	now := time.Now().UTC()

	// Identical re-scrape: freshness ping, no new version.
	if latest != nil && latest.RawTextHash == rec.RawTextHash {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET last_seen_at = ? WHERE id = ?`, now, rec.SourceID); err != nil {
			return nil, eris.Wrapf(err, "sqlite: touch source %s", rec.SourceID)
		}
		if err := tx.Commit(); err != nil {
			return nil, eris.Wrap(err, "sqlite: commit freshness ping")
		}
		return &AppendResult{Record: latest, NewVersion: false}, nil
	}

	stored := rec.Clone()
	stored.ID = uuid.New().String()
	stored.Version = latestVersion + 1
	if stored.ExtractedAt.IsZero() {
		stored.ExtractedAt = now
	}

	fieldsJSON, diffsJSON, err := marshalRecordBlobs(stored)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.SourceID, stored.Version, stored.Extractor, stored.ExtractorVersion,
		fieldsJSON, string(stored.Verdict), diffsJSON, stored.RawTextHash, stored.ExtractedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrConflict
		}
		return nil, eris.Wrapf(err, "sqlite: insert record for %s", rec.SourceID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sources SET last_seen_at = ? WHERE id = ?`, now, rec.SourceID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: touch source %s", rec.SourceID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit append")
	}
	return &AppendResult{Record: stored, NewVersion: true}, nil
}


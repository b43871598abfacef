package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/progwatch/progwatch-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Test hook.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES sources(id),
	version           INTEGER NOT NULL,
	extractor         TEXT NOT NULL,
	extractor_version TEXT NOT NULL,
	fields            JSONB NOT NULL,
	verdict           TEXT NOT NULL,
	diffs             JSONB,
	raw_text_hash     TEXT NOT NULL,
	extracted_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(source_id, version)
);

CREATE INDEX IF NOT EXISTS idx_records_source_extracted ON records(source_id, extracted_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src *model.Source) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, url, label, last_seen_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, label = EXCLUDED.label`,
		src.ID, src.URL, src.Label,
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.ID)
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, label, last_seen_at FROM sources WHERE id = $1`, sourceID)

	var src model.Source
	err := row.Scan(&src.ID, &src.URL, &src.Label, &src.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", sourceID)
	}
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, label, last_seen_at FROM sources ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.URL, &src.Label, &src.LastSeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) Latest(ctx context.Context, sourceID string) (*model.ExtractionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = $1 ORDER BY version DESC LIMIT 1`,
		sourceID,
	)
	return scanRecord(row)
}

func (s *PostgresStore) AsOf(ctx context.Context, sourceID string, t time.Time) (*model.ExtractionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE source_id = $1 AND extracted_at <= $2
		 ORDER BY extracted_at DESC, version DESC LIMIT 1`,
		sourceID, t.UTC(),
	)
	return scanRecord(row)
}

func (s *PostgresStore) History(ctx context.Context, sourceID string) ([]model.ExtractionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = $1 ORDER BY version ASC`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history %s", sourceID)
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
	return records, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) Append(ctx context.Context, rec *model.ExtractionRecord, parentVersion int) (*AppendResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock the latest version row so concurrent appends for the same source
	// serialize here.
	latest, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE source_id = $1 ORDER BY version DESC LIMIT 1 FOR UPDATE`,
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

	if latest != nil && latest.RawTextHash == rec.RawTextHash {
		if _, err := tx.Exec(ctx,
			`UPDATE sources SET last_seen_at = now() WHERE id = $1`, rec.SourceID); err != nil {
			return nil, eris.Wrapf(err, "postgres: touch source %s", rec.SourceID)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, eris.Wrap(err, "postgres: commit freshness ping")
		}
		return &AppendResult{Record: latest, NewVersion: false}, nil
	}

	stored := rec.Clone()
	stored.ID = uuid.New().String()
	stored.Version = latestVersion + 1
	if stored.ExtractedAt.IsZero() {
		stored.ExtractedAt = time.Now().UTC()
	}

	fieldsJSON, diffsJSON, err := marshalRecordBlobs(stored)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		stored.ID, stored.SourceID, stored.Version, stored.Extractor, stored.ExtractorVersion,
		fieldsJSON, string(stored.Verdict), diffsJSON, stored.RawTextHash, stored.ExtractedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, eris.Wrapf(err, "postgres: insert record for %s", rec.SourceID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sources SET last_seen_at = now() WHERE id = $1`, rec.SourceID); err != nil {
		return nil, eris.Wrapf(err, "postgres: touch source %s", rec.SourceID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit append")
	}
	return &AppendResult{Record: stored, NewVersion: true}, nil
}

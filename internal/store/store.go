// Package store persists validated extraction records with full version
// history, keyed by source identity.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/progwatch/progwatch-cli/internal/model"
)

// ErrConflict is returned by Append when the caller's expected parent
// version no longer matches the stored latest. The caller must re-read the
// latest record, re-diff, and retry.
var ErrConflict = eris.New("store: concurrent append conflict")

// AppendResult reports the outcome of an Append call.
type AppendResult struct {
	// Record is the stored latest record after the call: the newly appended
	// version, or the existing latest when the append was a freshness ping.
	Record *model.ExtractionRecord

	// NewVersion is false when the appended record's raw-text hash matched
	// the current latest, so only the source's last-seen timestamp moved.
	NewVersion bool
}

// Store is the persistence interface for the extraction pipeline. Append
// never reorders or deletes history; version sequences are strictly
// increasing per source.
type Store interface {
	// Sources
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, sourceID string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)

	// Records
	// Latest returns the most recent record for the source, or nil when the
	// source has no history.
	Latest(ctx context.Context, sourceID string) (*model.ExtractionRecord, error)

	// Append stores rec as the next version. parentVersion is the version
	// the caller diffed against (0 for a first-ever record); a mismatch
	// with the stored latest yields ErrConflict. Appending a record whose
	// raw-text hash matches the current latest updates only the source's
	// last-seen timestamp.
	Append(ctx context.Context, rec *model.ExtractionRecord, parentVersion int) (*AppendResult, error)

	// AsOf returns the most recent record at or before t, or nil.
	AsOf(ctx context.Context, sourceID string, t time.Time) (*model.ExtractionRecord, error)

	// History returns all versions for the source in ascending version order.
	History(ctx context.Context, sourceID string) ([]model.ExtractionRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Package pipeline orchestrates normalization, extraction, scoring, change
// detection, and versioned persistence for program-page sources.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/progwatch/progwatch-cli/internal/changedetect"
	"github.com/progwatch/progwatch-cli/internal/extractor"
	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/normalize"
	"github.com/progwatch/progwatch-cli/internal/schema"
	"github.com/progwatch/progwatch-cli/internal/store"
	"github.com/progwatch/progwatch-cli/internal/validate"
)

// Outcome categorizes what happened to a single source's extraction attempt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeReview    Outcome = "review"
	OutcomeRejected  Outcome = "rejected"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// SourceInput is one document to run through the pipeline.
type SourceInput struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
	Text  string `yaml:"text"`
}

// Result reports the outcome of one source's run.
type Result struct {
	Source  model.Source
	Record  *model.ExtractionRecord
	Outcome Outcome
	Err     error
}

// Runner wires the pipeline stages together.
type Runner struct {
	store           store.Store
	extractor       extractor.Extractor
	scorer          *validate.Scorer
	differ          *changedetect.Engine
	schema          *schema.Schema
	limiter         *rate.Limiter
	conflictRetries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the Runner.
type Option func(*Runner)

// WithRateLimiter throttles extraction calls. Intended for model-backed
// extractors; pass nil to disable.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithConflictRetries bounds how many times an append is retried after a
// concurrent-write conflict.
func WithConflictRetries(n int) Option {
	return func(r *Runner) {
		r.conflictRetries = n
	}
}

// NewRunner creates a Runner over the given stages.
func NewRunner(st store.Store, ex extractor.Extractor, sc *validate.Scorer, df *changedetect.Engine, sch *schema.Schema, opts ...Option) *Runner {
	r := &Runner{
		store:           st,
		extractor:       ex,
		scorer:          sc,
		differ:          df,
		schema:          sch,
		conflictRetries: 3,
		locks:           map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// sourceLock returns the per-source mutex, creating it on first use.
// Appends for one source serialize here so diffs always compare against
// the true latest version.
func (r *Runner) sourceLock(sourceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sourceID] = l
	}
	return l
}

// Process runs one source through the full pipeline. Errors from a single
// source never affect other in-flight sources; the caller inspects
// Result.Outcome and Result.Err.
func (r *Runner) Process(ctx context.Context, in SourceInput) Result {
	src, err := model.NewSource(in.URL, in.Label)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: eris.Wrap(err, "pipeline: source identity")}
	}
	log := zap.L().With(zap.String("source_id", src.ID), zap.String("url", in.URL))

	res := Result{Source: *src}

	if err := r.store.UpsertSource(ctx, src); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = eris.Wrap(err, "pipeline: upsert source")
		return res
	}

	rawHash := model.TextHash(in.Text)

	// Re-running the same document is a freshness ping: skip extraction
	// entirely when the latest stored version already carries this hash.
	latest, err := r.store.Latest(ctx, src.ID)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = eris.Wrap(err, "pipeline: read latest")
		return res
	}
	if latest != nil && latest.RawTextHash == rawHash {
		pinged, err := r.freshnessPing(ctx, src.ID, rawHash)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		if pinged != nil {
			log.Info("pipeline: source unchanged")
			res.Record = pinged
			res.Outcome = OutcomeUnchanged
			return res
		}
		// A concurrent writer advanced the latest version past this hash;
		// fall through to full extraction.
	}

	normalized := normalize.Text(in.Text)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = eris.Wrap(err, "pipeline: rate limit wait")
			return res
		}
	}

	rec, err := r.extractor.Extract(ctx, normalized, r.schema)
	if err != nil {
		var malformed *extractor.MalformedResponseError
		if errors.As(err, &malformed) {
			// Unparseable model output is terminal for the attempt: the
			// record carries no values and is marked reject.
			log.Warn("pipeline: malformed extractor output", zap.Error(err))
			res.Record = emptyRecord(r.extractor.Name(), src.ID, rawHash, r.schema)
			res.Outcome = OutcomeRejected
			res.Err = err
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = eris.Wrap(err, "pipeline: extract")
		return res
	}

	rec.SourceID = src.ID
	rec.RawTextHash = rawHash
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = time.Now().UTC()
	}

	scored := r.scorer.Score(rec, r.schema)
	res.Record = scored

	switch scored.Verdict {
	case model.VerdictReject:
		log.Info("pipeline: record rejected")
		res.Outcome = OutcomeRejected
		return res
	case model.VerdictReview:
		log.Info("pipeline: record needs review")
		res.Outcome = OutcomeReview
		return res
	}

	stored, newVersion, err := r.appendAccepted(ctx, src.ID, scored)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.Record = stored
	if !newVersion {
		res.Outcome = OutcomeUnchanged
		return res
	}

	log.Info("pipeline: record accepted",
		zap.Int("version", stored.Version),
		zap.Bool("material_change", model.Material(stored.Diffs)),
	)
	res.Outcome = OutcomeAccepted
	return res
}

// freshnessPing bumps last_seen for a source whose latest version already
// carries rawHash. After a concurrent-write conflict the latest record is
// re-read: if its hash still matches, the ping is retried; if it no longer
// does, nil is returned and the caller runs full extraction instead.
func (r *Runner) freshnessPing(ctx context.Context, sourceID, rawHash string) (*model.ExtractionRecord, error) {
	lock := r.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; ; attempt++ {
		latest, err := r.store.Latest(ctx, sourceID)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: read latest for ping")
		}
		if latest == nil || latest.RawTextHash != rawHash {
			return nil, nil
		}

		result, err := r.store.Append(ctx, latest.Clone(), latest.Version)
		if errors.Is(err, store.ErrConflict) {
			if attempt >= r.conflictRetries {
				return nil, eris.Wrap(err, "pipeline: freshness ping conflict retries exhausted")
			}
			zap.L().Warn("pipeline: freshness ping conflict, re-reading latest",
				zap.String("source_id", sourceID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: freshness ping")
		}
		return result.Record, nil
	}
}

// appendAccepted runs the diff+append sequence under the source's lock,
// re-reading latest and re-diffing after each conflict.
func (r *Runner) appendAccepted(ctx context.Context, sourceID string, rec *model.ExtractionRecord) (*model.ExtractionRecord, bool, error) {
	lock := r.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; ; attempt++ {
		latest, err := r.store.Latest(ctx, sourceID)
		if err != nil {
			return nil, false, eris.Wrap(err, "pipeline: read latest for diff")
		}

		parentVersion := 0
		if latest != nil {
			parentVersion = latest.Version
		}

		rec.Diffs = r.differ.Diff(latest, rec, r.schema)

		result, err := r.store.Append(ctx, rec, parentVersion)
		if errors.Is(err, store.ErrConflict) {
			if attempt >= r.conflictRetries {
				return nil, false, eris.Wrap(err, "pipeline: append conflict retries exhausted")
			}
			zap.L().Warn("pipeline: append conflict, re-diffing",
				zap.String("source_id", sourceID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, false, eris.Wrap(err, "pipeline: append")
		}
		return result.Record, result.NewVersion, nil
	}
}

// emptyRecord builds an all-null rejected record for a terminal extraction
// failure, so review tooling still sees the attempt.
func emptyRecord(extractorName, sourceID, rawHash string, sch *schema.Schema) *model.ExtractionRecord {
	fields := make(map[string]model.FieldValue, len(sch.Fields))
	for _, f := range sch.Fields {
		fields[f.Name] = model.FieldValue{Confidence: 0}
	}
	return &model.ExtractionRecord{
		SourceID:    sourceID,
		Extractor:   extractorName,
		Fields:      fields,
		Verdict:     model.VerdictReject,
		RawTextHash: rawHash,
		ExtractedAt: time.Now().UTC(),
	}
}

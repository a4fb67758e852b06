// Package reconcile merges uploaded batches into the canonical dataset.
//
// A run moves idle -> loaded -> filtered -> resolved -> features_recomputed
// -> persisted -> idle. It works on a copy of the loaded state and writes
// once, through an atomic catalog commit, so a failed run leaves storage
// untouched. A batch with no surviving candidates ends after filtered
// without writing anything.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxoffice/internal/catalog"
	"boxoffice/internal/features"
	"boxoffice/internal/ingest"
	"boxoffice/internal/metrics"
	"boxoffice/internal/storage"
	"boxoffice/pkg/logging"
	"boxoffice/pkg/models"
)

type Config struct {
	UploadPrefix string `koanf:"upload_prefix"`
	Dedup        string `koanf:"dedup" validate:"oneof=first last"`
	// BoundProfitRatio holds new rows inside the canonical profit ratio range.
	BoundProfitRatio bool `koanf:"bound_profit_ratio"`
	ClearUploads     bool `koanf:"clear_uploads"`
}

func DefaultConfig() Config {
	return Config{
		UploadPrefix:     "",
		Dedup:            string(ingest.KeepFirst),
		BoundProfitRatio: true,
		ClearUploads:     false,
	}
}

// PersistHook is called after a successful commit with the new state.
type PersistHook func(state catalog.State, report *Report)

// FinishHook is called once per started run, whatever the outcome.
type FinishHook func(report *Report)

type Pipeline struct {
	catalog *catalog.Catalog
	uploads storage.Store
	cfg     Config
	filter  *ingest.Filter

	mu       sync.Mutex // run lock
	hooks    []PersistHook
	finished []FinishHook
}

func New(cat *catalog.Catalog, uploads storage.Store, cfg Config) (*Pipeline, error) {
	policy, err := ingest.ParseDedupPolicy(cfg.Dedup)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		catalog: cat,
		uploads: uploads,
		cfg:     cfg,
		filter:  ingest.New(ingest.Options{Dedup: policy, BoundProfitRatio: cfg.BoundProfitRatio}),
	}, nil
}

// OnPersist registers fn to run after every successful commit.
func (p *Pipeline) OnPersist(fn PersistHook) {
	p.hooks = append(p.hooks, fn)
}

// OnFinish registers fn to run when any started run ends.
func (p *Pipeline) OnFinish(fn FinishHook) {
	p.finished = append(p.finished, fn)
}

// Run executes one reconciliation. Only one run may be active per
// Pipeline; a concurrent call fails with ErrRunInProgress. The returned
// report is non-nil whenever the run started.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.mu.TryLock() {
		metrics.ReconcileRuns.WithLabelValues("busy").Inc()
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	rep := p.newReport()
	defer func() {
		for _, fn := range p.finished {
			fn(rep)
		}
	}()
	log := logging.Component("reconcile").With().Str("run_id", rep.RunID).Logger()

	err := p.run(ctx, rep, log)
	rep.FinishedAt = time.Now().UTC()
	dur := rep.FinishedAt.Sub(rep.StartedAt)
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Error = err.Error()
		metrics.RecordRun(string(OutcomeFailed), dur)
		log.Error().Err(err).Strs("states", statesOf(rep)).Msg("reconciliation failed")
		return rep, err
	}

	rep.enter(StateIdle)
	metrics.RecordRun(string(rep.Outcome), dur)
	log.Info().
		Str("outcome", string(rep.Outcome)).
		Int("raw_records", rep.RawRecords).
		Int("accepted", rep.Accepted).
		Int("rejected", rep.Rejected()).
		Int("canonical_after", rep.CanonicalAfter).
		Dur("duration", dur).
		Msg(rep.Summary())
	return rep, nil
}

func (p *Pipeline) newReport() *Report {
	return &Report{
		RunID:            uuid.NewString(),
		StartedAt:        time.Now().UTC(),
		States:           []State{StateIdle},
		RejectedByReason: ingest.CountByReason(nil),
		NewEntries:       make(map[models.Dimension]int, len(models.Dimensions)),
	}
}

func (p *Pipeline) run(ctx context.Context, rep *Report, log zerolog.Logger) error {
	loaded, err := p.catalog.Load(ctx)
	if err != nil {
		return &StorageFailure{Op: "load", Name: "catalog", Err: err}
	}
	batch, err := ingest.ReadUploads(ctx, p.uploads, p.cfg.UploadPrefix)
	if err != nil {
		return &StorageFailure{Op: "load", Name: "uploads", Err: err}
	}
	if rep.DigestBefore, err = p.catalog.Digest(loaded); err != nil {
		return err
	}
	rep.Uploads = batch.Uploads
	rep.RawRecords = len(batch.Records)
	rep.CanonicalBefore = len(loaded.Records)
	rep.CanonicalAfter = rep.CanonicalBefore
	rep.DigestAfter = rep.DigestBefore
	rep.enter(StateLoaded)
	log.Debug().Int("uploads", len(batch.Uploads)).Int("raw_records", rep.RawRecords).Msg("loaded")

	filtered := p.filter.Apply(batch.Records, loaded.Records)
	rep.Rejections = filtered.Rejections
	rep.RejectedByReason = ingest.CountByReason(filtered.Rejections)
	rep.Accepted = len(filtered.Candidates)
	rep.enter(StateFiltered)
	metrics.RecordRejections(reasonCounts(rep.RejectedByReason))
	for _, rj := range filtered.Rejections {
		log.Debug().Str("source", rj.Source).Int("line", rj.Line).Str("reason", string(rj.Reason)).Msg(rj.Detail)
	}

	if len(filtered.Candidates) == 0 {
		rep.Outcome = OutcomeNoop
		return nil
	}

	work := loaded.Clone()
	merged := work.Records
	for _, c := range filtered.Candidates {
		merged = append(merged, p.resolve(work, c, rep))
	}
	rep.enter(StateResolved)

	derived := features.Derive(merged)
	rep.Dropped = derived.Dropped
	next := catalog.State{Dictionaries: work.Dictionaries, Records: derived.Records}
	rep.enter(StateFeaturesRecomputed)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.catalog.Save(ctx, next); err != nil {
		return &StorageFailure{Op: "commit", Name: "catalog", Err: err}
	}
	rep.enter(StatePersisted)
	rep.Outcome = OutcomeMerged
	rep.CanonicalAfter = len(next.Records)
	if rep.DigestAfter, err = p.catalog.Digest(next); err != nil {
		return err
	}

	for _, fn := range p.hooks {
		fn(next, rep)
	}
	if p.cfg.ClearUploads {
		p.clearUploads(ctx, rep, log)
	}
	return nil
}

// resolve maps a candidate's free-text categories to IDs, creating entries
// for unseen values.
func (p *Pipeline) resolve(st catalog.State, c models.Candidate, rep *Report) models.CanonicalRecord {
	id := func(dim models.Dimension, value string) int {
		v, created := st.Dictionaries.ResolveOrCreate(dim, value)
		if created {
			rep.NewEntries[dim]++
		}
		return v
	}
	return models.CanonicalRecord{
		Title:      c.Title,
		LeadID:     id(models.DimensionLead, c.Lead),
		DirectorID: id(models.DimensionDirector, c.Director),
		GenreID:    id(models.DimensionGenre, c.Genre),
		Revenue:    c.Revenue,
		Budget:     c.Budget,
	}
}

// clearUploads deletes the consumed uploads. Failures are reported but do
// not fail the run: the merge is committed and a re-run drops the rows as
// duplicate titles.
func (p *Pipeline) clearUploads(ctx context.Context, rep *Report, log zerolog.Logger) {
	for _, name := range rep.Uploads {
		err := p.uploads.Delete(ctx, name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			rep.ClearErrors = append(rep.ClearErrors, err.Error())
			log.Warn().Err(err).Str("upload", name).Msg("failed to clear upload")
			continue
		}
		rep.Cleared = append(rep.Cleared, name)
	}
}

func reasonCounts(m map[ingest.Reason]int) map[string]int {
	out := make(map[string]int, len(m))
	for r, n := range m {
		out[string(r)] = n
	}
	return out
}

func statesOf(rep *Report) []string {
	out := make([]string, len(rep.States))
	for i, s := range rep.States {
		out[i] = string(s)
	}
	return out
}

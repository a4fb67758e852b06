// Package resolver answers single-record feature lookups at prediction
// time.
//
// Lookups read an immutable Snapshot behind an atomic pointer. A
// reconciliation publishes a new snapshot only after its commit, so a
// reader sees either the whole old state or the whole new one.
package resolver

import (
	"errors"
	"sync/atomic"

	"boxoffice/internal/catalog"
	"boxoffice/internal/dictionary"
	"boxoffice/internal/metrics"
	"boxoffice/pkg/logging"
	"boxoffice/pkg/models"
)

type Resolver struct {
	current atomic.Pointer[Snapshot]
}

func New() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Publish(s *Snapshot) {
	old := r.current.Swap(s)
	metrics.RecordSnapshot(s.Records(), s.DictionarySizes())

	ev := logging.Component("resolver").Info().Int("records", s.Records()).Str("digest", s.Digest())
	if old != nil {
		ev = ev.Str("previous_digest", old.Digest())
	}
	ev.Msg("snapshot published")
}

// PublishState is a reconcile persist hook.
func (r *Resolver) PublishState(st catalog.State, digest string) {
	r.Publish(NewSnapshot(st, digest))
}

// Snapshot returns the live snapshot, or nil before the first Publish.
func (r *Resolver) Snapshot() *Snapshot {
	return r.current.Load()
}

func (r *Resolver) Ready() bool {
	return r.current.Load() != nil
}

func (r *Resolver) Resolve(q Query) (models.FeatureVector, error) {
	s := r.Snapshot()
	if s == nil {
		return models.FeatureVector{}, ErrNotReady
	}
	v, err := s.Resolve(q)
	metrics.RecordResolve(Result(err))
	return v, err
}

func (r *Resolver) ResolveFeatures(lead, director, genre string, budget float64) (models.FeatureVector, error) {
	return r.Resolve(Query{Lead: ByValue(lead), Director: ByValue(director), Genre: ByValue(genre), Budget: budget})
}

// Result labels a resolution outcome for metrics and logs.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dictionary.ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrInvalidBudget):
		return "invalid"
	}
	return "error"
}

package reconcile

import (
	"errors"
	"fmt"
	"time"

	"boxoffice/internal/features"
	"boxoffice/internal/ingest"
	"boxoffice/pkg/models"
)

// State is a step of the run state machine.
type State string

const (
	StateIdle               State = "idle"
	StateLoaded             State = "loaded"
	StateFiltered           State = "filtered"
	StateResolved           State = "resolved"
	StateFeaturesRecomputed State = "features_recomputed"
	StatePersisted          State = "persisted"
)

type Outcome string

const (
	OutcomeMerged Outcome = "merged"
	OutcomeNoop   Outcome = "noop"
	OutcomeFailed Outcome = "failed"
)

var ErrRunInProgress = errors.New("reconciliation run already in progress")

// StorageFailure is a load or save error from a storage collaborator. The
// run that hit it persisted nothing.
type StorageFailure struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// Report describes one run. It is filled in as the run advances, so a
// failed run still reports how far it got.
type Report struct {
	RunID      string    `json:"run_id"`
	Outcome    Outcome   `json:"outcome"`
	States     []State   `json:"states"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`

	Uploads          []string                 `json:"uploads"`
	RawRecords       int                      `json:"raw_records"`
	Accepted         int                      `json:"accepted"`
	Rejections       []ingest.Rejection       `json:"rejections"`
	RejectedByReason map[ingest.Reason]int    `json:"rejected_by_reason"`
	NewEntries       map[models.Dimension]int `json:"new_entries"`
	Dropped          []features.Dropped       `json:"dropped,omitempty"`

	CanonicalBefore int    `json:"canonical_before"`
	CanonicalAfter  int    `json:"canonical_after"`
	DigestBefore    string `json:"digest_before"`
	DigestAfter     string `json:"digest_after"`

	Cleared     []string `json:"cleared,omitempty"`
	ClearErrors []string `json:"clear_errors,omitempty"`
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// Rejected is the number of upload rows excluded from the merge.
func (r *Report) Rejected() int {
	return len(r.Rejections)
}

func (r *Report) Summary() string {
	switch r.Outcome {
	case OutcomeNoop:
		return fmt.Sprintf("no-op: %d upload rows, nothing new to merge (%d rejected)", r.RawRecords, r.Rejected())
	case OutcomeMerged:
		return fmt.Sprintf("merged %d of %d upload rows (%d rejected); canonical %d -> %d",
			r.Accepted, r.RawRecords, r.Rejected(), r.CanonicalBefore, r.CanonicalAfter)
	}
	return fmt.Sprintf("failed after %s: %s", r.States[len(r.States)-1], r.Error)
}

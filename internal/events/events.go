package events

import (
	"time"

	"boxoffice/internal/reconcile"
)

const (
	TypeWelcome           = "welcome"
	TypeReconcileFinished = "reconcile.finished"
	TypeSnapshotPublished = "snapshot.published"
)

// Event is one line of the event stream.
type Event struct {
	Type       string         `json:"type"`
	RunID      string         `json:"run_id,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Accepted   int            `json:"accepted,omitempty"`
	Rejected   int            `json:"rejected,omitempty"`
	NewEntries map[string]int `json:"new_entries,omitempty"`
	Records    int            `json:"records,omitempty"`
	Digest     string         `json:"digest,omitempty"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}

// FromReport summarizes a finished run.
func FromReport(rep *reconcile.Report) Event {
	ev := Event{
		Type:     TypeReconcileFinished,
		RunID:    rep.RunID,
		Outcome:  string(rep.Outcome),
		Accepted: rep.Accepted,
		Rejected: rep.Rejected(),
		Records:  rep.CanonicalAfter,
		Digest:   rep.DigestAfter,
		Error:    rep.Error,
		At:       rep.FinishedAt,
	}
	if len(rep.NewEntries) > 0 {
		ev.NewEntries = make(map[string]int, len(rep.NewEntries))
		for dim, n := range rep.NewEntries {
			ev.NewEntries[string(dim)] = n
		}
	}
	return ev
}

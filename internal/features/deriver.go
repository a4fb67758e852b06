// Package features derives the statistical columns of the canonical dataset:
// profit ratio, per-lead and per-director average profit ratio, and the three
// co-occurrence counts.
//
// Every aggregate depends on the whole population, so Derive must be run over
// the full merged table, never batch by batch.
package features

import (
	"math"

	"boxoffice/pkg/models"
)

// Drop reasons reported by Derive.
const (
	DropUnresolvedID     = "unresolved_id"
	DropUndefinedRatio   = "undefined_profit_ratio"
	DropUndefinedFeature = "undefined_feature"
)

type Dropped struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

type Result struct {
	Records []models.CanonicalRecord
	Dropped []Dropped
}

// Derive recomputes every derived field of records from scratch. Only
// title, IDs, revenue and budget are read from the input. Input order is
// preserved and the input slice is not modified.
func Derive(records []models.CanonicalRecord) Result {
	var res Result
	population := make([]models.CanonicalRecord, 0, len(records))
	for _, r := range records {
		if !resolved(r) {
			res.Dropped = append(res.Dropped, Dropped{Title: r.Title, Reason: DropUnresolvedID})
			continue
		}
		if _, ok := ProfitRatio(r.Revenue, r.Budget); !ok {
			res.Dropped = append(res.Dropped, Dropped{Title: r.Title, Reason: DropUndefinedRatio})
			continue
		}
		population = append(population, r)
	}

	agg := Aggregate(population)

	res.Records = make([]models.CanonicalRecord, 0, len(population))
	for _, r := range population {
		out, ok := apply(agg, r)
		if !ok {
			res.Dropped = append(res.Dropped, Dropped{Title: r.Title, Reason: DropUndefinedFeature})
			continue
		}
		res.Records = append(res.Records, out)
	}
	return res
}

func apply(agg *Aggregates, r models.CanonicalRecord) (models.CanonicalRecord, bool) {
	out := models.CanonicalRecord{
		Title:      r.Title,
		LeadID:     r.LeadID,
		DirectorID: r.DirectorID,
		GenreID:    r.GenreID,
		Revenue:    r.Revenue,
		Budget:     r.Budget,
	}
	out.ProfitRatio, _ = ProfitRatio(r.Revenue, r.Budget)

	var okLead, okDirector bool
	out.LeadAverageProfitRatio, okLead = agg.LeadAverageProfitRatio(r.LeadID)
	out.DirectorAverageProfitRatio, okDirector = agg.DirectorAverageProfitRatio(r.DirectorID)
	out.LeadWorkedInGenreCount = agg.LeadWorkedInGenreCount(r.LeadID, r.GenreID)
	out.DirectorWorkedInGenreCount = agg.DirectorWorkedInGenreCount(r.DirectorID, r.GenreID)
	out.DirectorWorkedWithLeadCount = agg.DirectorWorkedWithLeadCount(r.DirectorID, r.LeadID)

	if !okLead || !okDirector || !finite(out.ProfitRatio, out.LeadAverageProfitRatio, out.DirectorAverageProfitRatio) {
		return models.CanonicalRecord{}, false
	}
	return out, true
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

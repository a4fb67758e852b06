package features

import (
	"math"

	"boxoffice/pkg/models"
)

type pair struct{ a, b int }

type mean struct {
	sum float64
	n   int
}

func (m mean) value() float64 { return m.sum / float64(m.n) }

// Aggregates holds the group-wise statistics of a record population.
// Both the batch deriver and the online resolver read features from here,
// so training and serving share one definition of mean and count.
type Aggregates struct {
	leadRatio      map[int]mean
	directorRatio  map[int]mean
	leadGenre      map[pair]int
	directorGenre  map[pair]int
	directorLead   map[pair]int
	recordsCounted int
}

// ProfitRatio is revenue / budget; ok is false when the ratio is undefined.
func ProfitRatio(revenue, budget float64) (ratio float64, ok bool) {
	if !(budget > 0) || math.IsInf(budget, 0) || math.IsNaN(revenue) || math.IsInf(revenue, 0) {
		return 0, false
	}
	return revenue / budget, true
}

// Aggregate groups records by lead, director and the three ID pairs.
// Records with unresolved IDs or an undefined profit ratio are skipped.
func Aggregate(records []models.CanonicalRecord) *Aggregates {
	a := &Aggregates{
		leadRatio:     make(map[int]mean),
		directorRatio: make(map[int]mean),
		leadGenre:     make(map[pair]int),
		directorGenre: make(map[pair]int),
		directorLead:  make(map[pair]int),
	}
	for _, r := range records {
		if !resolved(r) {
			continue
		}
		ratio, ok := ProfitRatio(r.Revenue, r.Budget)
		if !ok {
			continue
		}
		a.add(r, ratio)
	}
	return a
}

func (a *Aggregates) add(r models.CanonicalRecord, ratio float64) {
	lm := a.leadRatio[r.LeadID]
	lm.sum += ratio
	lm.n++
	a.leadRatio[r.LeadID] = lm

	dm := a.directorRatio[r.DirectorID]
	dm.sum += ratio
	dm.n++
	a.directorRatio[r.DirectorID] = dm

	a.leadGenre[pair{r.LeadID, r.GenreID}]++
	a.directorGenre[pair{r.DirectorID, r.GenreID}]++
	a.directorLead[pair{r.DirectorID, r.LeadID}]++
	a.recordsCounted++
}

// Len is the number of records that contributed to the aggregates.
func (a *Aggregates) Len() int { return a.recordsCounted }

func (a *Aggregates) LeadAverageProfitRatio(leadID int) (float64, bool) {
	m, ok := a.leadRatio[leadID]
	if !ok {
		return 0, false
	}
	return m.value(), true
}

func (a *Aggregates) DirectorAverageProfitRatio(directorID int) (float64, bool) {
	m, ok := a.directorRatio[directorID]
	if !ok {
		return 0, false
	}
	return m.value(), true
}

func (a *Aggregates) LeadWorkedInGenreCount(leadID, genreID int) int {
	return a.leadGenre[pair{leadID, genreID}]
}

func (a *Aggregates) DirectorWorkedInGenreCount(directorID, genreID int) int {
	return a.directorGenre[pair{directorID, genreID}]
}

func (a *Aggregates) DirectorWorkedWithLeadCount(directorID, leadID int) int {
	return a.directorLead[pair{directorID, leadID}]
}

func resolved(r models.CanonicalRecord) bool {
	return r.LeadID > 0 && r.DirectorID > 0 && r.GenreID > 0
}

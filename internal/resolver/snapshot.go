package resolver

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"boxoffice/internal/catalog"
	"boxoffice/internal/dictionary"
	"boxoffice/internal/features"
	"boxoffice/pkg/models"
)

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrInvalidBudget       = errors.New("invalid budget")
	ErrNotReady            = errors.New("no snapshot published")
)

// InsufficientHistoryError reports a known category with no canonical rows
// to average over.
type InsufficientHistoryError struct {
	Dimension models.Dimension
	ID        int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: %s id %d has no canonical records", e.Dimension, e.ID)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// Snapshot is an immutable, query-ready view of one catalog state.
type Snapshot struct {
	dicts     *dictionary.Set
	agg       *features.Aggregates
	records   int
	digest    string
	createdAt time.Time
}

// NewSnapshot indexes st. The dictionaries are copied; st may be reused.
func NewSnapshot(st catalog.State, digest string) *Snapshot {
	return &Snapshot{
		dicts:     st.Dictionaries.Clone(),
		agg:       features.Aggregate(st.Records),
		records:   len(st.Records),
		digest:    digest,
		createdAt: time.Now().UTC(),
	}
}

func (s *Snapshot) Records() int         { return s.records }
func (s *Snapshot) Digest() string       { return s.digest }
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

func (s *Snapshot) DictionarySizes() map[string]int {
	out := make(map[string]int, len(models.Dimensions))
	for dim, n := range s.dicts.Sizes() {
		out[string(dim)] = n
	}
	return out
}

// Ref names a categorical value either by its text or by its dictionary ID.
type Ref struct {
	Value string
	ID    int
	ByID  bool
}

func ByValue(v string) Ref { return Ref{Value: v} }
func ByID(id int) Ref      { return Ref{ID: id, ByID: true} }

// Query is one prediction-time feature request.
type Query struct {
	Lead, Director, Genre Ref
	Budget                float64
}

// Resolve maps q to the model's feature vector. An unseen value or ID fails
// with dictionary.ErrUnknownCategory; nothing is ever defaulted.
func (s *Snapshot) Resolve(q Query) (models.FeatureVector, error) {
	leadID, err := s.id(models.DimensionLead, q.Lead)
	if err != nil {
		return models.FeatureVector{}, err
	}
	directorID, err := s.id(models.DimensionDirector, q.Director)
	if err != nil {
		return models.FeatureVector{}, err
	}
	genreID, err := s.id(models.DimensionGenre, q.Genre)
	if err != nil {
		return models.FeatureVector{}, err
	}
	return s.vector(leadID, directorID, genreID, q.Budget)
}

func (s *Snapshot) ResolveFeatures(lead, director, genre string, budget float64) (models.FeatureVector, error) {
	return s.Resolve(Query{Lead: ByValue(lead), Director: ByValue(director), Genre: ByValue(genre), Budget: budget})
}

func (s *Snapshot) ResolveIDs(leadID, directorID, genreID int, budget float64) (models.FeatureVector, error) {
	return s.Resolve(Query{Lead: ByID(leadID), Director: ByID(directorID), Genre: ByID(genreID), Budget: budget})
}

func (s *Snapshot) id(dim models.Dimension, ref Ref) (int, error) {
	if !ref.ByID {
		return s.dicts.Resolve(dim, ref.Value)
	}
	if _, ok := s.dicts.Get(dim).Lookup(ref.ID); !ok {
		return 0, &dictionary.UnknownCategoryError{Dimension: dim, Value: "#" + strconv.Itoa(ref.ID)}
	}
	return ref.ID, nil
}

func (s *Snapshot) vector(leadID, directorID, genreID int, budget float64) (models.FeatureVector, error) {
	if !(budget > 0) || math.IsInf(budget, 0) {
		return models.FeatureVector{}, fmt.Errorf("%w: %v must be a positive number", ErrInvalidBudget, budget)
	}
	directorAvg, ok := s.agg.DirectorAverageProfitRatio(directorID)
	if !ok {
		return models.FeatureVector{}, &InsufficientHistoryError{Dimension: models.DimensionDirector, ID: directorID}
	}
	leadAvg, ok := s.agg.LeadAverageProfitRatio(leadID)
	if !ok {
		return models.FeatureVector{}, &InsufficientHistoryError{Dimension: models.DimensionLead, ID: leadID}
	}
	return models.FeatureVector{
		budget,
		directorAvg,
		leadAvg,
		float64(s.agg.LeadWorkedInGenreCount(leadID, genreID)),
		float64(s.agg.DirectorWorkedInGenreCount(directorID, genreID)),
		float64(s.agg.DirectorWorkedWithLeadCount(directorID, leadID)),
	}, nil
}

// Search returns up to limit entries of dim whose value starts with prefix,
// ignoring case.
func (s *Snapshot) Search(dim models.Dimension, prefix string, limit int) []models.DictionaryEntry {
	return s.dicts.Get(dim).Search(prefix, limit)
}

func (s *Snapshot) Entries(dim models.Dimension) []models.DictionaryEntry {
	return s.dicts.Get(dim).Entries()
}

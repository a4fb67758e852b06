package resolver

import (
	"errors"
	"testing"

	"boxoffice/internal/catalog"
	"boxoffice/internal/dictionary"
	"boxoffice/internal/features"
	"boxoffice/pkg/models"
)

type movie struct {
	title, lead, director, genre string
	revenue, budget              float64
}

func buildState(t *testing.T, movies []movie) catalog.State {
	t.Helper()
	st := catalog.EmptyState()
	var recs []models.CanonicalRecord
	for _, m := range movies {
		l, _ := st.Dictionaries.ResolveOrCreate(models.DimensionLead, m.lead)
		d, _ := st.Dictionaries.ResolveOrCreate(models.DimensionDirector, m.director)
		g, _ := st.Dictionaries.ResolveOrCreate(models.DimensionGenre, m.genre)
		recs = append(recs, models.CanonicalRecord{
			Title: m.title, LeadID: l, DirectorID: d, GenreID: g, Revenue: m.revenue, Budget: m.budget,
		})
	}
	st.Records = features.Derive(recs).Records
	return st
}

var movies = []movie{
	{"Cast Away", "Tom Hanks", "Robert Zemeckis", "Drama", 429, 90},
	{"Forrest Gump", "Tom Hanks", "Robert Zemeckis", "Drama", 678, 55},
	{"Big", "Tom Hanks", "Penny Marshall", "Comedy", 151, 18},
	{"Contact", "Jodie Foster", "Robert Zemeckis", "Sci-Fi", 171, 90},
}

func TestUnknownLeadIsUnknownCategory(t *testing.T) {
	s := NewSnapshot(buildState(t, movies), "")

	_, err := s.ResolveFeatures("Unknown Actor", "Robert Zemeckis", "Drama", 1000.0)
	if !errors.Is(err, dictionary.ErrUnknownCategory) {
		t.Fatalf("err = %v, want ErrUnknownCategory", err)
	}
	var uc *dictionary.UnknownCategoryError
	if !errors.As(err, &uc) || uc.Dimension != models.DimensionLead || uc.Value != "Unknown Actor" {
		t.Fatalf("err = %#v", err)
	}
}

func TestResolverMatchesDerivedFeatures(t *testing.T) {
	st := buildState(t, movies)
	s := NewSnapshot(st, "")

	for _, r := range st.Records {
		lead, _ := st.Dictionaries.Get(models.DimensionLead).Lookup(r.LeadID)
		director, _ := st.Dictionaries.Get(models.DimensionDirector).Lookup(r.DirectorID)
		genre, _ := st.Dictionaries.Get(models.DimensionGenre).Lookup(r.GenreID)

		got, err := s.ResolveFeatures(lead, director, genre, r.Budget)
		if err != nil {
			t.Fatalf("%s: %v", r.Title, err)
		}
		if want := models.FeatureVectorOf(r); got != want {
			t.Fatalf("%s: resolver %v, deriver %v", r.Title, got, want)
		}
	}
}

func TestResolveNewCombination(t *testing.T) {
	s := NewSnapshot(buildState(t, movies), "")

	// Jodie Foster never worked with Penny Marshall nor in Comedy
	v, err := s.ResolveFeatures("Jodie Foster", "Penny Marshall", "Comedy", 40)
	if err != nil {
		t.Fatalf("ResolveFeatures: %v", err)
	}
	if v[0] != 40 || v[3] != 0 || v[4] != 1 || v[5] != 0 {
		t.Fatalf("vector = %v", v)
	}
	if v[1] != 151.0/18 || v[2] != 171.0/90 {
		t.Fatalf("averages = %v, %v", v[1], v[2])
	}
}

func TestResolveIDs(t *testing.T) {
	st := buildState(t, movies)
	s := NewSnapshot(st, "")

	byName, _ := s.ResolveFeatures("Tom Hanks", "Robert Zemeckis", "Drama", 70)
	byID, err := s.ResolveIDs(1, 1, 1, 70)
	if err != nil {
		t.Fatalf("ResolveIDs: %v", err)
	}
	if byID != byName {
		t.Fatalf("by id %v, by name %v", byID, byName)
	}
	if _, err := s.ResolveIDs(1, 99, 1, 70); !errors.Is(err, dictionary.ErrUnknownCategory) {
		t.Fatalf("err = %v, want ErrUnknownCategory", err)
	}
}

func TestKnownValueWithoutRecordsIsInsufficientHistory(t *testing.T) {
	st := buildState(t, movies)
	st.Dictionaries.ResolveOrCreate(models.DimensionDirector, "Alan Smithee")
	s := NewSnapshot(st, "")

	_, err := s.ResolveFeatures("Tom Hanks", "Alan Smithee", "Drama", 10)
	var ih *InsufficientHistoryError
	if !errors.As(err, &ih) || ih.Dimension != models.DimensionDirector {
		t.Fatalf("err = %v, want director InsufficientHistoryError", err)
	}
}

func TestInvalidBudget(t *testing.T) {
	s := NewSnapshot(buildState(t, movies), "")
	for _, b := range []float64{0, -1} {
		if _, err := s.ResolveFeatures("Tom Hanks", "Robert Zemeckis", "Drama", b); !errors.Is(err, ErrInvalidBudget) {
			t.Fatalf("budget %v: err = %v", b, err)
		}
	}
}

func TestPublishSwapsSnapshot(t *testing.T) {
	r := New()
	if r.Ready() {
		t.Fatal("ready before publish")
	}
	if _, err := r.ResolveFeatures("a", "b", "c", 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	r.PublishState(buildState(t, movies[:1]), "d1")
	if _, err := r.ResolveFeatures("Jodie Foster", "Robert Zemeckis", "Sci-Fi", 1); err == nil {
		t.Fatal("value from a later state resolved early")
	}

	r.PublishState(buildState(t, movies), "d2")
	if r.Snapshot().Digest() != "d2" || r.Snapshot().Records() != 4 {
		t.Fatalf("snapshot = %s/%d", r.Snapshot().Digest(), r.Snapshot().Records())
	}
	if _, err := r.ResolveFeatures("Jodie Foster", "Robert Zemeckis", "Sci-Fi", 1); err != nil {
		t.Fatalf("ResolveFeatures after publish: %v", err)
	}
}

func TestResultLabels(t *testing.T) {
	tests := map[string]error{
		"ok":                   nil,
		"unknown_category":     &dictionary.UnknownCategoryError{Dimension: models.DimensionGenre, Value: "x"},
		"insufficient_history": &InsufficientHistoryError{Dimension: models.DimensionLead, ID: 3},
		"invalid":              ErrInvalidBudget,
		"error":                errors.New("boom"),
	}
	for want, err := range tests {
		if got := Result(err); got != want {
			t.Errorf("Result(%v) = %q, want %q", err, got, want)
		}
	}
}

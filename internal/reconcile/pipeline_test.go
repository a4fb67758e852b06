package reconcile

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"boxoffice/internal/catalog"
	"boxoffice/internal/dictionary"
	"boxoffice/internal/ingest"
	"boxoffice/internal/storage"
	"boxoffice/pkg/models"
)

// flakyStore fails Save for keys containing failOn.
type flakyStore struct {
	*storage.Memory
	failOn string
}

func (f *flakyStore) Save(ctx context.Context, name string, t storage.Table) error {
	if f.failOn != "" && strings.Contains(name, f.failOn) {
		return errors.New("disk full")
	}
	return f.Memory.Save(ctx, name, t)
}

type fixture struct {
	base    *flakyStore
	cat     *catalog.Catalog
	uploads *storage.Memory
	p       *Pipeline
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	base := &flakyStore{Memory: storage.NewMemory()}
	cat := catalog.New(storage.NewGenerations(base, 2), catalog.DefaultNames())
	uploads := storage.NewMemory()
	p, err := New(cat, uploads, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{base: base, cat: cat, uploads: uploads, p: p}
}

func (f *fixture) upload(t *testing.T, name string, rows ...[]string) {
	t.Helper()
	tbl := storage.NewTable(models.UploadColumns...)
	for _, r := range rows {
		tbl.Append(r...)
	}
	if err := f.uploads.Save(context.Background(), name, tbl); err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	rep, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func (f *fixture) state(t *testing.T) catalog.State {
	t.Helper()
	st, err := f.cat.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st
}

// rawBytes dumps every key of the backing store.
func (f *fixture) rawBytes(t *testing.T) map[string][]byte {
	t.Helper()
	ctx := context.Background()
	names, _ := f.base.List(ctx, "")
	out := make(map[string][]byte, len(names))
	for _, n := range names {
		tbl, _ := f.base.Load(ctx, n)
		b, _ := storage.MarshalCSV(tbl)
		out[n] = b
	}
	return out
}

func record(t *testing.T, st catalog.State, title string) models.CanonicalRecord {
	t.Helper()
	for _, r := range st.Records {
		if r.Title == title {
			return r
		}
	}
	t.Fatalf("no canonical record %q", title)
	return models.CanonicalRecord{}
}

func id(t *testing.T, st catalog.State, dim models.Dimension, value string) int {
	t.Helper()
	v, err := st.Dictionaries.Resolve(dim, value)
	if err != nil {
		t.Fatalf("Resolve %s %q: %v", dim, value, err)
	}
	return v
}

func TestRunMergesValidAndRejectsMissingGenre(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	good := storage.NewTable(models.UploadColumns...)
	good.Append("Heat", "Al Pacino", "Michael Mann", "Crime", "187000000", "60000000")
	_ = f.uploads.Save(ctx, "001.csv", good)
	noGenre := storage.NewTable("title", "lead", "director", "revenue", "budget")
	noGenre.Append("Ronin", "Robert De Niro", "John Frankenheimer", "70000000", "55000000")
	_ = f.uploads.Save(ctx, "002.csv", noGenre)

	rep := f.run(t)

	if rep.Outcome != OutcomeMerged || rep.Accepted != 1 || rep.CanonicalAfter != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.RejectedByReason[ingest.ReasonSchemaViolation] != 1 || rep.Rejected() != 1 {
		t.Fatalf("rejections = %+v", rep.Rejections)
	}
	want := []State{StateIdle, StateLoaded, StateFiltered, StateResolved, StateFeaturesRecomputed, StatePersisted, StateIdle}
	if len(rep.States) != len(want) {
		t.Fatalf("states = %v", rep.States)
	}
	for i := range want {
		if rep.States[i] != want[i] {
			t.Fatalf("states = %v, want %v", rep.States, want)
		}
	}

	st := f.state(t)
	heat := record(t, st, "Heat")
	if heat.LeadID != 1 || heat.DirectorID != 1 || heat.GenreID != 1 {
		t.Fatalf("ids = %+v", heat)
	}
	if rep.NewEntries[models.DimensionLead] != 1 {
		t.Fatalf("new entries = %v", rep.NewEntries)
	}
}

func TestIDsAreStableAcrossRuns(t *testing.T) {
	f := newFixture(t, Config{Dedup: "first", BoundProfitRatio: false, ClearUploads: true})

	f.upload(t, "a.csv",
		[]string{"Cast Away", "Tom Hanks", "Robert Zemeckis", "Drama", "429000000", "90000000"},
		[]string{"Big", "Tom Hanks", "Penny Marshall", "Comedy", "151000000", "18000000"},
	)
	f.run(t)
	first := f.state(t)

	f.upload(t, "b.csv",
		[]string{"Philadelphia", "Denzel Washington", "Jonathan Demme", "Drama", "206000000", "26000000"},
		[]string{"The Post", "Tom Hanks", "Steven Spielberg", "Drama", "179000000", "50000000"},
	)
	rep := f.run(t)
	if rep.Outcome != OutcomeMerged {
		t.Fatalf("second run = %s (%+v)", rep.Outcome, rep.Rejections)
	}
	second := f.state(t)

	for _, dim := range models.Dimensions {
		for _, e := range first.Dictionaries.Get(dim).Entries() {
			if got := id(t, second, dim, e.Value); got != e.ID {
				t.Fatalf("%s %q moved from %d to %d", dim, e.Value, e.ID, got)
			}
		}
	}
	if got := id(t, second, models.DimensionLead, "Denzel Washington"); got != 2 {
		t.Fatalf("new lead id = %d, want 2", got)
	}
	if got := record(t, second, "Big").LeadID; got != record(t, first, "Big").LeadID {
		t.Fatalf("existing record re-resolved: %d", got)
	}
}

func TestDuplicateBatchIsByteIdenticalNoop(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	row := []string{"Jaws", "Roy Scheider", "Steven Spielberg", "Thriller", "470000000", "9000000"}
	f.upload(t, "a.csv", row)
	f.run(t)

	before := f.rawBytes(t)
	rep := f.run(t) // same upload again: every row is a duplicate

	if rep.Outcome != OutcomeNoop {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if rep.DigestBefore != rep.DigestAfter {
		t.Fatal("noop changed digest")
	}
	if rep.RejectedByReason[ingest.ReasonDuplicateTitle] != 1 {
		t.Fatalf("rejections = %+v", rep.Rejections)
	}
	want := []State{StateIdle, StateLoaded, StateFiltered, StateIdle}
	if len(rep.States) != len(want) {
		t.Fatalf("states = %v", rep.States)
	}

	after := f.rawBytes(t)
	if len(after) != len(before) {
		t.Fatalf("key count %d -> %d", len(before), len(after))
	}
	for k, b := range before {
		if !bytes.Equal(after[k], b) {
			t.Fatalf("%s changed on noop", k)
		}
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	rep := f.run(t)
	if rep.Outcome != OutcomeNoop || rep.RawRecords != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(f.rawBytes(t)) != 0 {
		t.Fatal("noop wrote to storage")
	}
}

func TestAggregatesRecomputedOverMergedPopulation(t *testing.T) {
	f := newFixture(t, Config{Dedup: "first", BoundProfitRatio: false, ClearUploads: true})

	f.upload(t, "a.csv",
		[]string{"One", "Lead", "Dir", "Drama", "200", "100"}, // ratio 2
		[]string{"Wide", "Other", "Dir2", "Drama", "900", "300"},
	)
	f.run(t)
	if got := record(t, f.state(t), "One").LeadAverageProfitRatio; got != 2 {
		t.Fatalf("lead average after first run = %v", got)
	}

	f.upload(t, "b.csv", []string{"Two", "Lead", "Dir", "Drama", "800", "200"}) // ratio 4
	f.run(t)

	st := f.state(t)
	for _, title := range []string{"One", "Two"} {
		r := record(t, st, title)
		if math.Abs(r.LeadAverageProfitRatio-3.0) > 1e-12 {
			t.Fatalf("%s lead average = %v, want 3", title, r.LeadAverageProfitRatio)
		}
		if r.LeadWorkedInGenreCount != 2 || r.DirectorWorkedWithLeadCount != 2 {
			t.Fatalf("%s counts = %+v", title, r)
		}
	}
}

func TestBudgetAboveCanonicalMaxIsRejected(t *testing.T) {
	f := newFixture(t, Config{Dedup: "first", BoundProfitRatio: true, ClearUploads: true})
	f.upload(t, "a.csv",
		[]string{"Low", "A", "B", "C", "200", "100"},
		[]string{"High", "A", "B", "C", "1000", "400"},
	)
	f.run(t)

	f.upload(t, "b.csv", []string{"Huge", "A", "B", "C", "1000", "401"})
	rep := f.run(t)

	if rep.Outcome != OutcomeNoop || rep.RejectedByReason[ingest.ReasonRangeViolation] != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, r := range f.state(t).Records {
		if r.Title == "Huge" {
			t.Fatal("out-of-range record merged")
		}
	}
}

func TestStorageFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.upload(t, "a.csv", []string{"Alien", "Sigourney Weaver", "Ridley Scott", "Horror", "104000000", "11000000"})
	before := f.rawBytes(t)

	f.base.failOn = "unique_genres"
	rep, err := f.p.Run(context.Background())

	var sf *StorageFailure
	if !errors.As(err, &sf) || sf.Op != "commit" {
		t.Fatalf("err = %v, want commit StorageFailure", err)
	}
	if rep == nil || rep.Outcome != OutcomeFailed {
		t.Fatalf("report = %+v", rep)
	}
	if got := rep.States[len(rep.States)-1]; got != StateFeaturesRecomputed {
		t.Fatalf("last state = %s", got)
	}

	after := f.rawBytes(t)
	if len(after) != len(before) {
		t.Fatalf("failed run left %d keys behind", len(after)-len(before))
	}
	if n, _ := f.uploads.List(context.Background(), ""); len(n) != 1 {
		t.Fatal("upload cleared after failed run")
	}

	// the batch is still there and merges once storage recovers
	f.base.failOn = ""
	if rep := f.run(t); rep.Outcome != OutcomeMerged {
		t.Fatalf("retry outcome = %s", rep.Outcome)
	}
}

func TestConcurrentRunIsRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.p.mu.Lock()
	defer f.p.mu.Unlock()

	if _, err := f.p.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}

func TestClearUploadsAndPersistHook(t *testing.T) {
	f := newFixture(t, Config{Dedup: "last", BoundProfitRatio: true, ClearUploads: true})
	f.upload(t, "a.csv", []string{"Heat", "Al Pacino", "Michael Mann", "Crime", "187000000", "60000000"})

	var published *dictionary.Set
	f.p.OnPersist(func(st catalog.State, rep *Report) {
		published = st.Dictionaries
	})
	rep := f.run(t)

	if len(rep.Cleared) != 1 || rep.Cleared[0] != "a.csv" {
		t.Fatalf("cleared = %v", rep.Cleared)
	}
	if names, _ := f.uploads.List(context.Background(), ""); len(names) != 0 {
		t.Fatalf("uploads left: %v", names)
	}
	if published == nil || published.Get(models.DimensionLead).Len() != 1 {
		t.Fatal("persist hook not called with new state")
	}
}

func TestNewRejectsUnknownDedupPolicy(t *testing.T) {
	_, err := New(catalog.New(storage.NewMemory(), catalog.DefaultNames()), storage.NewMemory(), Config{Dedup: "random"})
	if err == nil {
		t.Fatal("New accepted unknown dedup policy")
	}
}

func TestFinishHookSeesEveryOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	var outcomes []Outcome
	f.p.OnFinish(func(rep *Report) { outcomes = append(outcomes, rep.Outcome) })

	f.run(t)
	f.upload(t, "a.csv", []string{"Heat", "Al Pacino", "Michael Mann", "Crime", "187000000", "60000000"})
	f.run(t)
	f.base.failOn = "unique_genres"
	f.upload(t, "b.csv", []string{"Collateral", "Tom Cruise", "Michael Mann", "Crime", "187000000", "60000000"})
	if _, err := f.p.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with failing store")
	}

	want := []Outcome{OutcomeNoop, OutcomeMerged, OutcomeFailed}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", outcomes, want)
		}
	}
}

func TestCanonicalRowWithoutProfitRatioFailsLoad(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	seed := catalog.EmptyState()
	lead, _ := seed.Dictionaries.ResolveOrCreate(models.DimensionLead, "Al Pacino")
	dir, _ := seed.Dictionaries.ResolveOrCreate(models.DimensionDirector, "Michael Mann")
	genre, _ := seed.Dictionaries.ResolveOrCreate(models.DimensionGenre, "Crime")
	seed.Records = []models.CanonicalRecord{
		{Title: "Zero", LeadID: lead, DirectorID: dir, GenreID: genre, Revenue: 100, Budget: 0},
		{Title: "Ok", LeadID: lead, DirectorID: dir, GenreID: genre, Revenue: 300, Budget: 100, ProfitRatio: 3},
	}
	if err := f.cat.Save(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.upload(t, "a.csv", []string{"Heat", "Al Pacino", "Michael Mann", "Crime", "300", "100"})
	before := f.rawBytes(t)

	rep, err := f.p.Run(ctx)
	var sf *StorageFailure
	if !errors.As(err, &sf) || sf.Op != "load" {
		t.Fatalf("err = %v, want load StorageFailure", err)
	}
	if rep.Outcome != OutcomeFailed || len(rep.Dropped) != 0 {
		t.Fatalf("report = %+v", rep)
	}

	after := f.rawBytes(t)
	if len(after) != len(before) {
		t.Fatalf("failed run changed the store: %d keys -> %d", len(before), len(after))
	}
	for k, b := range before {
		if !bytes.Equal(after[k], b) {
			t.Fatalf("key %s rewritten by failed run", k)
		}
	}
}

// Package catalog maps persisted tables to the engine's domain state: the
// canonical dataset plus one dictionary per categorical dimension.
package catalog

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"boxoffice/internal/dictionary"
	"boxoffice/internal/storage"
	"boxoffice/pkg/models"
)

// Names are the storage names of the four tables.
type Names struct {
	Canonical string `koanf:"canonical" validate:"required"`
	Leads     string `koanf:"leads" validate:"required"`
	Directors string `koanf:"directors" validate:"required"`
	Genres    string `koanf:"genres" validate:"required"`
}

func DefaultNames() Names {
	return Names{
		Canonical: "input_data.csv",
		Leads:     "unique_leads.csv",
		Directors: "unique_directors.csv",
		Genres:    "unique_genres.csv",
	}
}

func (n Names) Dictionary(dim models.Dimension) string {
	switch dim {
	case models.DimensionLead:
		return n.Leads
	case models.DimensionDirector:
		return n.Directors
	case models.DimensionGenre:
		return n.Genres
	}
	return ""
}

func (n Names) All() []string {
	return []string{n.Canonical, n.Leads, n.Directors, n.Genres}
}

// State is one consistent version of the canonical dataset and dictionaries.
type State struct {
	Dictionaries *dictionary.Set
	Records      []models.CanonicalRecord
}

func EmptyState() State {
	return State{Dictionaries: dictionary.NewSet()}
}

// Clone deep-copies s so a run can mutate it freely.
func (s State) Clone() State {
	return State{
		Dictionaries: s.Dictionaries.Clone(),
		Records:      append([]models.CanonicalRecord(nil), s.Records...),
	}
}

type Catalog struct {
	store storage.Store
	names Names
}

func New(store storage.Store, names Names) *Catalog {
	return &Catalog{store: store, names: names}
}

func (c *Catalog) Names() Names { return c.names }

// Load reads all four tables from one consistent store state. A missing
// table is empty, so a fresh store loads as the bootstrap state.
func (c *Catalog) Load(ctx context.Context) (State, error) {
	tables, err := storage.LoadSet(ctx, c.store, c.names.All())
	if err != nil {
		return State{}, fmt.Errorf("load catalog: %w", err)
	}
	return c.Decode(tables)
}

// Decode parses tables into a State. Canonical rows must reference IDs
// present in the dictionaries.
func (c *Catalog) Decode(tables map[string]storage.Table) (State, error) {
	st := EmptyState()
	for _, dim := range models.Dimensions {
		name := c.names.Dictionary(dim)
		t, ok := tables[name]
		if !ok {
			continue
		}
		d, err := decodeDictionary(dim, t)
		if err != nil {
			return State{}, fmt.Errorf("decode %s: %w", name, err)
		}
		if err := st.Dictionaries.Put(d); err != nil {
			return State{}, err
		}
	}

	if t, ok := tables[c.names.Canonical]; ok {
		records, err := decodeCanonical(t)
		if err != nil {
			return State{}, fmt.Errorf("decode %s: %w", c.names.Canonical, err)
		}
		for i, r := range records {
			if err := checkReferences(st.Dictionaries, r); err != nil {
				return State{}, fmt.Errorf("decode %s line %d: %w", c.names.Canonical, i+2, err)
			}
		}
		st.Records = records
	}
	return st, nil
}

// Encode renders s as the four tables, keyed by storage name.
func (c *Catalog) Encode(s State) map[string]storage.Table {
	out := make(map[string]storage.Table, 4)
	for _, dim := range models.Dimensions {
		out[c.names.Dictionary(dim)] = encodeDictionary(s.Dictionaries.Get(dim))
	}
	out[c.names.Canonical] = encodeCanonical(s.Records)
	return out
}

// Save writes s through a single all-or-nothing commit.
func (c *Catalog) Save(ctx context.Context, s State) error {
	committer, ok := c.store.(storage.Committer)
	if !ok {
		return fmt.Errorf("save catalog: store %T cannot commit atomically", c.store)
	}
	return committer.Commit(ctx, c.Encode(s))
}

// Digest is a blake2b-256 over the encoded state. Equal digests mean
// byte-identical tables.
func (c *Catalog) Digest(s State) (string, error) {
	return DigestTables(c.Encode(s))
}

func DigestTables(tables map[string]storage.Table) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	for _, name := range sortedNames(tables) {
		b, err := storage.MarshalCSV(tables[name])
		if err != nil {
			return "", fmt.Errorf("digest %s: %w", name, err)
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checkReferences(set *dictionary.Set, r models.CanonicalRecord) error {
	refs := map[models.Dimension]int{
		models.DimensionLead:     r.LeadID,
		models.DimensionDirector: r.DirectorID,
		models.DimensionGenre:    r.GenreID,
	}
	for _, dim := range models.Dimensions {
		if _, ok := set.Get(dim).Lookup(refs[dim]); !ok {
			return fmt.Errorf("%s id %d not in dictionary", dim, refs[dim])
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

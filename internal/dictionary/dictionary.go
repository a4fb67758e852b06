// Package dictionary holds the append-only encodings of categorical values
// (lead, director, genre) to stable integer IDs.
//
// IDs start at 1, grow by one per new value and are never reassigned or
// removed. A Dictionary is not safe for concurrent mutation; the
// reconciliation pipeline is the only writer and works on a Clone.
package dictionary

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"boxoffice/pkg/models"
)

var ErrUnknownCategory = errors.New("unknown category")

// UnknownCategoryError reports a value that was never assigned an ID.
type UnknownCategoryError struct {
	Dimension models.Dimension
	Value     string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category: %s %q", e.Dimension, e.Value)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

type Dictionary struct {
	dim     models.Dimension
	entries []models.DictionaryEntry // ascending by ID
	byValue map[string]int
	byID    map[int]int // id -> index in entries
	maxID   int
}

func New(dim models.Dimension) *Dictionary {
	return &Dictionary{
		dim:     dim,
		byValue: make(map[string]int),
		byID:    make(map[int]int),
	}
}

// FromEntries rebuilds a dictionary from a persisted snapshot. Entries may
// arrive in any order; duplicate IDs, duplicate values or non-positive IDs
// are rejected because they would break ID stability.
func FromEntries(dim models.Dimension, entries []models.DictionaryEntry) (*Dictionary, error) {
	sorted := make([]models.DictionaryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	d := New(dim)
	for _, e := range sorted {
		if e.ID <= 0 {
			return nil, fmt.Errorf("%s dictionary: non-positive id %d", dim, e.ID)
		}
		if e.Value == "" {
			return nil, fmt.Errorf("%s dictionary: empty value for id %d", dim, e.ID)
		}
		if _, dup := d.byID[e.ID]; dup {
			return nil, fmt.Errorf("%s dictionary: duplicate id %d", dim, e.ID)
		}
		if prev, dup := d.byValue[e.Value]; dup {
			return nil, fmt.Errorf("%s dictionary: value %q assigned to ids %d and %d", dim, e.Value, prev, e.ID)
		}
		d.insert(e)
	}
	return d, nil
}

func (d *Dictionary) insert(e models.DictionaryEntry) {
	d.byID[e.ID] = len(d.entries)
	d.byValue[e.Value] = e.ID
	d.entries = append(d.entries, e)
	if e.ID > d.maxID {
		d.maxID = e.ID
	}
}

func (d *Dictionary) Dimension() models.Dimension { return d.dim }

func (d *Dictionary) Len() int { return len(d.entries) }

func (d *Dictionary) MaxID() int { return d.maxID }

// ResolveOrCreate returns the ID of value, assigning max+1 when the value
// has not been seen. created reports whether a new ID was assigned.
func (d *Dictionary) ResolveOrCreate(value string) (id int, created bool) {
	if id, ok := d.byValue[value]; ok {
		return id, false
	}
	id = d.maxID + 1
	d.insert(models.DictionaryEntry{ID: id, Value: value})
	return id, true
}

// Resolve is the read-only lookup used at prediction time.
func (d *Dictionary) Resolve(value string) (int, error) {
	if id, ok := d.byValue[value]; ok {
		return id, nil
	}
	return 0, &UnknownCategoryError{Dimension: d.dim, Value: value}
}

// Lookup maps an ID back to its value.
func (d *Dictionary) Lookup(id int) (string, bool) {
	idx, ok := d.byID[id]
	if !ok {
		return "", false
	}
	return d.entries[idx].Value, true
}

// Entries returns a copy of all entries in ascending ID order.
func (d *Dictionary) Entries() []models.DictionaryEntry {
	out := make([]models.DictionaryEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Search returns entries whose value starts with prefix, ignoring case,
// in ID order. limit <= 0 means no limit.
func (d *Dictionary) Search(prefix string, limit int) []models.DictionaryEntry {
	prefix = strings.ToLower(prefix)
	out := make([]models.DictionaryEntry, 0)
	for _, e := range d.entries {
		if !strings.HasPrefix(strings.ToLower(e.Value), prefix) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (d *Dictionary) Clone() *Dictionary {
	c := &Dictionary{
		dim:     d.dim,
		entries: make([]models.DictionaryEntry, len(d.entries)),
		byValue: make(map[string]int, len(d.byValue)),
		byID:    make(map[int]int, len(d.byID)),
		maxID:   d.maxID,
	}
	copy(c.entries, d.entries)
	for k, v := range d.byValue {
		c.byValue[k] = v
	}
	for k, v := range d.byID {
		c.byID[k] = v
	}
	return c
}

package dictionary

import (
	"fmt"

	"boxoffice/pkg/models"
)

// Set bundles one dictionary per categorical dimension.
type Set struct {
	dicts map[models.Dimension]*Dictionary
}

// NewSet returns a set with an empty dictionary for every dimension.
func NewSet() *Set {
	s := &Set{dicts: make(map[models.Dimension]*Dictionary, len(models.Dimensions))}
	for _, dim := range models.Dimensions {
		s.dicts[dim] = New(dim)
	}
	return s
}

func (s *Set) Get(dim models.Dimension) *Dictionary {
	return s.dicts[dim]
}

// Put replaces the dictionary for d.Dimension().
func (s *Set) Put(d *Dictionary) error {
	if _, ok := models.ParseDimension(string(d.Dimension())); !ok {
		return fmt.Errorf("put dictionary: unknown dimension %q", d.Dimension())
	}
	s.dicts[d.Dimension()] = d
	return nil
}

func (s *Set) ResolveOrCreate(dim models.Dimension, value string) (int, bool) {
	return s.mustGet(dim).ResolveOrCreate(value)
}

func (s *Set) Resolve(dim models.Dimension, value string) (int, error) {
	return s.mustGet(dim).Resolve(value)
}

// Sizes reports the number of entries per dimension.
func (s *Set) Sizes() map[models.Dimension]int {
	out := make(map[models.Dimension]int, len(s.dicts))
	for dim, d := range s.dicts {
		out[dim] = d.Len()
	}
	return out
}

func (s *Set) Clone() *Set {
	c := &Set{dicts: make(map[models.Dimension]*Dictionary, len(s.dicts))}
	for dim, d := range s.dicts {
		c.dicts[dim] = d.Clone()
	}
	return c
}

func (s *Set) mustGet(dim models.Dimension) *Dictionary {
	d, ok := s.dicts[dim]
	if !ok {
		panic(fmt.Sprintf("dictionary: unknown dimension %q", dim))
	}
	return d
}

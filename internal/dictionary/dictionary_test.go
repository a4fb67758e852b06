package dictionary

import (
	"errors"
	"testing"

	"boxoffice/pkg/models"
)

func TestResolveOrCreateAssignsSequentialIDs(t *testing.T) {
	d := New(models.DimensionLead)

	first, created := d.ResolveOrCreate("Tom Hanks")
	if !created || first != 1 {
		t.Fatalf("first value: got id=%d created=%v, want 1 true", first, created)
	}
	second, _ := d.ResolveOrCreate("Meryl Streep")
	if second != 2 {
		t.Fatalf("second value: got id=%d, want 2", second)
	}
	again, created := d.ResolveOrCreate("Tom Hanks")
	if created || again != 1 {
		t.Fatalf("existing value: got id=%d created=%v, want 1 false", again, created)
	}
}

func TestResolveOrCreateContinuesAfterGaps(t *testing.T) {
	d, err := FromEntries(models.DimensionGenre, []models.DictionaryEntry{
		{ID: 7, Value: "Drama"},
		{ID: 2, Value: "Comedy"},
	})
	if err != nil {
		t.Fatalf("FromEntries: %v", err)
	}
	id, _ := d.ResolveOrCreate("Horror")
	if id != 8 {
		t.Fatalf("got id %d, want max+1 = 8", id)
	}
	entries := d.Entries()
	if entries[0].ID != 2 || entries[1].ID != 7 || entries[2].ID != 8 {
		t.Fatalf("entries not in id order: %+v", entries)
	}
}

func TestFromEntriesRejectsInvalidSnapshots(t *testing.T) {
	cases := map[string][]models.DictionaryEntry{
		"duplicate id":    {{ID: 1, Value: "a"}, {ID: 1, Value: "b"}},
		"duplicate value": {{ID: 1, Value: "a"}, {ID: 2, Value: "a"}},
		"zero id":         {{ID: 0, Value: "a"}},
		"empty value":     {{ID: 3, Value: ""}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEntries(models.DimensionDirector, entries); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	d := New(models.DimensionLead)
	d.ResolveOrCreate("Known Actor")

	_, err := d.Resolve("Unknown Actor")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("got %v, want ErrUnknownCategory", err)
	}
	var uc *UnknownCategoryError
	if !errors.As(err, &uc) || uc.Dimension != models.DimensionLead || uc.Value != "Unknown Actor" {
		t.Fatalf("unexpected error detail: %#v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Resolve must not insert, len=%d", d.Len())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := New(models.DimensionDirector)
	d.ResolveOrCreate("Nolan")

	c := d.Clone()
	c.ResolveOrCreate("Villeneuve")

	if d.Len() != 1 {
		t.Fatalf("original mutated through clone: len=%d", d.Len())
	}
	if _, err := d.Resolve("Villeneuve"); err == nil {
		t.Fatal("original resolves a value only added to the clone")
	}
	if id, _ := c.Resolve("Villeneuve"); id != 2 {
		t.Fatalf("clone id = %d, want 2", id)
	}
}

func TestSearchPrefixCaseInsensitive(t *testing.T) {
	d := New(models.DimensionLead)
	for _, v := range []string{"Tom Hanks", "Tilda Swinton", "tom cruise", "Emma Stone"} {
		d.ResolveOrCreate(v)
	}

	got := d.Search("TOM", 0)
	if len(got) != 2 || got[0].Value != "Tom Hanks" || got[1].Value != "tom cruise" {
		t.Fatalf("unexpected search result: %+v", got)
	}
	if limited := d.Search("t", 2); len(limited) != 2 {
		t.Fatalf("limit not applied: %+v", limited)
	}
	if none := d.Search("zz", 0); len(none) != 0 {
		t.Fatalf("expected no results, got %+v", none)
	}
}

func TestSetCloneAndSizes(t *testing.T) {
	s := NewSet()
	s.ResolveOrCreate(models.DimensionGenre, "Drama")

	c := s.Clone()
	c.ResolveOrCreate(models.DimensionGenre, "Comedy")
	c.ResolveOrCreate(models.DimensionLead, "Someone")

	if got := s.Sizes(); got[models.DimensionGenre] != 1 || got[models.DimensionLead] != 0 {
		t.Fatalf("original sizes changed: %v", got)
	}
	if got := c.Sizes(); got[models.DimensionGenre] != 2 || got[models.DimensionLead] != 1 {
		t.Fatalf("clone sizes: %v", got)
	}
}

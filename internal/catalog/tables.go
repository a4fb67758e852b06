package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"boxoffice/internal/dictionary"
	"boxoffice/internal/storage"
	"boxoffice/pkg/models"
)

func decodeDictionary(dim models.Dimension, t storage.Table) (*dictionary.Dictionary, error) {
	if len(t.Columns) == 0 {
		return dictionary.New(dim), nil
	}
	if !t.HasColumns([]string{"id", string(dim)}) {
		return nil, fmt.Errorf("columns %v, want [id %s]", t.Columns, dim)
	}
	entries := make([]models.DictionaryEntry, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != 2 {
			return nil, fmt.Errorf("line %d: %d cells, want 2", i+2, len(row))
		}
		id, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: id: %w", i+2, err)
		}
		entries = append(entries, models.DictionaryEntry{ID: id, Value: row[1]})
	}
	return dictionary.FromEntries(dim, entries)
}

func encodeDictionary(d *dictionary.Dictionary) storage.Table {
	t := storage.NewTable("id", string(d.Dimension()))
	for _, e := range d.Entries() {
		t.Append(strconv.Itoa(e.ID), e.Value)
	}
	return t
}

func decodeCanonical(t storage.Table) ([]models.CanonicalRecord, error) {
	if len(t.Columns) == 0 {
		return nil, nil
	}
	if !t.HasColumns(models.CanonicalColumns) {
		return nil, fmt.Errorf("columns %v, want %v", t.Columns, models.CanonicalColumns)
	}

	out := make([]models.CanonicalRecord, 0, len(t.Rows))
	seen := make(map[string]struct{}, len(t.Rows))
	for i, row := range t.Rows {
		line := i + 2
		if len(row) != len(models.CanonicalColumns) {
			return nil, fmt.Errorf("line %d: %d cells, want %d", line, len(row), len(models.CanonicalColumns))
		}
		p := rowParser{row: row}
		r := models.CanonicalRecord{
			Title:                       row[0],
			LeadID:                      p.atoi(1),
			DirectorID:                  p.atoi(2),
			GenreID:                     p.atoi(3),
			Revenue:                     p.atof(4),
			Budget:                      p.atof(5),
			ProfitRatio:                 p.atof(6),
			DirectorAverageProfitRatio:  p.atof(7),
			LeadAverageProfitRatio:      p.atof(8),
			LeadWorkedInGenreCount:      p.atoi(9),
			DirectorWorkedInGenreCount:  p.atoi(10),
			DirectorWorkedWithLeadCount: p.atoi(11),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}
		// a row without a profit ratio would be dropped by the next merge
		if !positive(r.Revenue) || !positive(r.Budget) {
			return nil, fmt.Errorf("line %d: %q: revenue %s and budget %s must be positive",
				line, r.Title, row[4], row[5])
		}
		if _, dup := seen[r.Title]; dup {
			return nil, fmt.Errorf("line %d: duplicate title %q", line, r.Title)
		}
		seen[r.Title] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func encodeCanonical(records []models.CanonicalRecord) storage.Table {
	t := storage.NewTable(models.CanonicalColumns...)
	for _, r := range records {
		t.Append(
			r.Title,
			strconv.Itoa(r.LeadID),
			strconv.Itoa(r.DirectorID),
			strconv.Itoa(r.GenreID),
			formatFloat(r.Revenue),
			formatFloat(r.Budget),
			formatFloat(r.ProfitRatio),
			formatFloat(r.DirectorAverageProfitRatio),
			formatFloat(r.LeadAverageProfitRatio),
			strconv.Itoa(r.LeadWorkedInGenreCount),
			strconv.Itoa(r.DirectorWorkedInGenreCount),
			strconv.Itoa(r.DirectorWorkedWithLeadCount),
		)
	}
	return t
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// rowParser parses cells and keeps the first error.
type rowParser struct {
	row []string
	err error
}

func (p *rowParser) atoi(i int) int {
	if p.err != nil {
		return 0
	}
	s := strings.TrimSpace(p.row[i])
	v, err := strconv.Atoi(s)
	if err != nil {
		// older exports wrote counts as floats ("3.0")
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			p.err = fmt.Errorf("%s: %q is not an integer", models.CanonicalColumns[i], p.row[i])
			return 0
		}
		v = int(f)
	}
	return v
}

func (p *rowParser) atof(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.row[i]), 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %q is not a number", models.CanonicalColumns[i], p.row[i])
		return 0
	}
	return v
}

func sortedNames(tables map[string]storage.Table) []string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package ingest

import (
	"context"
	"fmt"
	"strings"

	"boxoffice/internal/storage"
	"boxoffice/pkg/models"
)

// Batch is every upload row found under a prefix, in stable order: upload
// names sorted, then row order within each upload.
type Batch struct {
	Uploads []string
	Records []models.RawUploadRecord
}

// UploadSuffix marks the objects under the upload prefix that are read.
const UploadSuffix = ".csv"

// ReadUploads loads all *.csv uploads under prefix; other objects are
// ignored. Any load error aborts.
func ReadUploads(ctx context.Context, s storage.Store, prefix string) (Batch, error) {
	all, err := s.List(ctx, prefix)
	if err != nil {
		return Batch{}, fmt.Errorf("list uploads: %w", err)
	}
	var names []string
	for _, name := range all {
		if strings.HasSuffix(strings.ToLower(name), UploadSuffix) {
			names = append(names, name)
		}
	}
	b := Batch{Uploads: names}
	for _, name := range names {
		t, err := s.Load(ctx, name)
		if err != nil {
			return Batch{}, fmt.Errorf("load upload %s: %w", name, err)
		}
		b.Records = append(b.Records, RecordsFromTable(name, t)...)
	}
	return b, nil
}

// RecordsFromTable turns each row into a field map keyed by the normalized
// header. Cells past the header and repeated header names get synthetic
// keys so they still count against the schema.
func RecordsFromTable(source string, t storage.Table) []models.RawUploadRecord {
	keys := make([]string, len(t.Columns))
	seen := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		k := strings.ToLower(strings.TrimSpace(c))
		seen[k]++
		if seen[k] > 1 {
			k = fmt.Sprintf("%s_%d", k, seen[k])
		}
		keys[i] = k
	}

	out := make([]models.RawUploadRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		fields := make(map[string]string, len(row))
		for j, cell := range row {
			key := fmt.Sprintf("column_%d", j+1)
			if j < len(keys) {
				key = keys[j]
			}
			fields[key] = strings.TrimSpace(cell)
		}
		out = append(out, models.RawUploadRecord{
			Source: source,
			Line:   i + 2, // header is line 1
			Fields: fields,
		})
	}
	return out
}

// Package ingest cleans a raw upload batch into merge candidates.
//
// Steps run in a fixed order: schema check, intra-batch dedup, numeric
// coercion, range filter against the canonical bounds, cross-set dedup.
// A failing row is excluded and reported, never fatal to the batch.
package ingest

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"boxoffice/internal/features"
	"boxoffice/pkg/models"
)

// DedupPolicy picks which of several same-title upload rows survives.
type DedupPolicy string

const (
	KeepFirst DedupPolicy = "first"
	KeepLast  DedupPolicy = "last"
)

func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeepFirst:
		return KeepFirst, nil
	case KeepLast:
		return KeepLast, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q", s)
}

type Options struct {
	Dedup DedupPolicy
	// BoundProfitRatio also bounds revenue/budget to the canonical range.
	BoundProfitRatio bool
}

func DefaultOptions() Options {
	return Options{Dedup: KeepFirst, BoundProfitRatio: true}
}

type Result struct {
	Candidates []models.Candidate
	Rejections []Rejection
}

type Filter struct {
	opts Options
}

func New(opts Options) *Filter {
	if opts.Dedup == "" {
		opts.Dedup = KeepFirst
	}
	return &Filter{opts: opts}
}

// Apply filters batch against the canonical dataset. Neither input is
// modified.
func (f *Filter) Apply(batch []models.RawUploadRecord, canonical []models.CanonicalRecord) Result {
	var res Result
	reject := func(r models.RawUploadRecord, reason Reason, format string, args ...any) {
		res.Rejections = append(res.Rejections, Rejection{
			Source: r.Source,
			Line:   r.Line,
			Title:  r.Title(),
			Reason: reason,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	var valid []models.RawUploadRecord
	for _, r := range batch {
		if detail, ok := checkSchema(r); !ok {
			reject(r, ReasonSchemaViolation, "%s", detail)
			continue
		}
		valid = append(valid, r)
	}

	kept, dups := dedup(valid, f.opts.Dedup)
	for _, d := range dups {
		reject(d.dropped, ReasonDuplicateTitle, "duplicate of %s:%d in batch", d.kept.Source, d.kept.Line)
	}

	bounds := BoundsOf(canonical)
	existing := make(map[string]struct{}, len(canonical))
	for _, c := range canonical {
		existing[c.Title] = struct{}{}
	}

	for _, r := range kept {
		budget, err := parseNumber(r.Fields["budget"])
		if err != nil {
			reject(r, ReasonInvalidNumber, "budget: %v", err)
			continue
		}
		revenue, err := parseNumber(r.Fields["revenue"])
		if err != nil {
			reject(r, ReasonInvalidNumber, "revenue: %v", err)
			continue
		}
		if detail, ok := f.checkRange(bounds, budget, revenue); !ok {
			reject(r, ReasonRangeViolation, "%s", detail)
			continue
		}
		if _, dup := existing[r.Title()]; dup {
			reject(r, ReasonDuplicateTitle, "title already in canonical dataset")
			continue
		}
		res.Candidates = append(res.Candidates, models.Candidate{
			Title:    r.Title(),
			Lead:     r.Fields["lead"],
			Director: r.Fields["director"],
			Genre:    r.Fields["genre"],
			Revenue:  revenue,
			Budget:   budget,
			Source:   r.Source,
			Line:     r.Line,
		})
	}

	sort.SliceStable(res.Rejections, func(i, j int) bool {
		a, b := res.Rejections[i], res.Rejections[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Line < b.Line
	})
	return res
}

// checkSchema requires exactly the upload columns, every one non-empty.
func checkSchema(r models.RawUploadRecord) (string, bool) {
	var missing, empty, extra []string
	for _, c := range models.UploadColumns {
		v, ok := r.Fields[c]
		switch {
		case !ok:
			missing = append(missing, c)
		case v == "":
			empty = append(empty, c)
		}
	}
	for k := range r.Fields {
		if !slices.Contains(models.UploadColumns, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ","))
	}
	if len(empty) > 0 {
		parts = append(parts, "empty "+strings.Join(empty, ","))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(extra, ","))
	}
	return strings.Join(parts, "; "), len(parts) == 0
}

type duplicate struct {
	kept, dropped models.RawUploadRecord
}

// dedup keeps one row per title, preserving the input order of survivors.
func dedup(records []models.RawUploadRecord, policy DedupPolicy) ([]models.RawUploadRecord, []duplicate) {
	winner := make(map[string]int, len(records))
	for i, r := range records {
		if _, seen := winner[r.Title()]; seen && policy == KeepFirst {
			continue
		}
		winner[r.Title()] = i
	}

	var (
		kept []models.RawUploadRecord
		dups []duplicate
	)
	for i, r := range records {
		w := winner[r.Title()]
		if w == i {
			kept = append(kept, r)
			continue
		}
		dups = append(dups, duplicate{kept: records[w], dropped: r})
	}
	return kept, dups
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return v, nil
}

func (f *Filter) checkRange(b Bounds, budget, revenue float64) (string, bool) {
	if budget <= 0 {
		return fmt.Sprintf("budget %g must be positive", budget), false
	}
	if revenue <= 0 {
		return fmt.Sprintf("revenue %g must be positive", revenue), false
	}
	if b.Empty {
		return "", true
	}
	if !b.Budget.Contains(budget) {
		return fmt.Sprintf("budget %g outside %s", budget, b.Budget), false
	}
	if !b.Revenue.Contains(revenue) {
		return fmt.Sprintf("revenue %g outside %s", revenue, b.Revenue), false
	}
	if f.opts.BoundProfitRatio {
		ratio, _ := features.ProfitRatio(revenue, budget)
		if !b.ProfitRatio.Contains(ratio) {
			return fmt.Sprintf("profit ratio %g outside %s", ratio, b.ProfitRatio), false
		}
	}
	return "", true
}

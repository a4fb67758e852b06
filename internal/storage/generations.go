package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"boxoffice/pkg/logging"
)

const (
	// PointerName is the table naming the live generation.
	PointerName = "CURRENT"
	genRoot     = "gens/"
	minRetain   = 2
)

// Generations gives a plain Store all-or-nothing commits. Each commit
// writes a complete copy of the table set under gens/<seq>-<id>/ and then
// replaces the single CURRENT pointer table. A store with no pointer yet is
// read as a flat legacy layout.
type Generations struct {
	base   Store
	retain int
	mu     sync.Mutex
}

func NewGenerations(base Store, retain int) *Generations {
	if retain < minRetain {
		retain = minRetain
	}
	return &Generations{base: base, retain: retain}
}

func genKey(gen, name string) string {
	return genRoot + gen + "/" + name
}

// Current returns the live generation, or "" for the legacy layout.
func (g *Generations) Current(ctx context.Context) (string, error) {
	t, err := g.base.Load(ctx, PointerName)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pointer: %w", err)
	}
	if len(t.Rows) != 1 || len(t.Rows[0]) != 1 || t.Rows[0][0] == "" {
		return "", errors.New("read pointer: malformed CURRENT table")
	}
	return t.Rows[0][0], nil
}

func (g *Generations) Load(ctx context.Context, name string) (Table, error) {
	gen, err := g.Current(ctx)
	if err != nil {
		return Table{}, err
	}
	return g.loadFrom(ctx, gen, name)
}

func (g *Generations) loadFrom(ctx context.Context, gen, name string) (Table, error) {
	if gen == "" {
		return g.base.Load(ctx, name)
	}
	return g.base.Load(ctx, genKey(gen, name))
}

// LoadSet resolves the pointer once, so every table comes from the same
// generation.
func (g *Generations) LoadSet(ctx context.Context, names []string) (map[string]Table, error) {
	gen, err := g.Current(ctx)
	if err != nil {
		return nil, err
	}
	return loadParallel(ctx, names, func(ctx context.Context, name string) (Table, error) {
		return g.loadFrom(ctx, gen, name)
	})
}

func (g *Generations) Save(ctx context.Context, name string, t Table) error {
	return g.Commit(ctx, map[string]Table{name: t})
}

func (g *Generations) List(ctx context.Context, prefix string) ([]string, error) {
	gen, err := g.Current(ctx)
	if err != nil {
		return nil, err
	}
	return g.listIn(ctx, gen, prefix)
}

func (g *Generations) listIn(ctx context.Context, gen, prefix string) ([]string, error) {
	if gen == "" {
		all, err := g.base.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, n := range all {
			if n == PointerName || strings.HasPrefix(n, genRoot) {
				continue
			}
			names = append(names, n)
		}
		return names, nil
	}

	dir := genKey(gen, "")
	keys, err := g.base.List(ctx, dir+prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, dir))
	}
	return names, nil
}

// Delete commits a new generation without name.
func (g *Generations) Delete(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	gen, err := g.Current(ctx)
	if err != nil {
		return err
	}
	names, err := g.listIn(ctx, gen, "")
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	return g.commitLocked(ctx, gen, nil, name)
}

// Commit publishes tables together with every table of the live generation
// that is not being replaced.
func (g *Generations) Commit(ctx context.Context, tables map[string]Table) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	gen, err := g.Current(ctx)
	if err != nil {
		return err
	}
	return g.commitLocked(ctx, gen, tables, "")
}

func (g *Generations) commitLocked(ctx context.Context, prev string, tables map[string]Table, drop string) error {
	next := nextGeneration(prev)
	var written []string
	abort := func(err error) error {
		for _, k := range written {
			if rmErr := g.base.Delete(ctx, k); rmErr != nil && !errors.Is(rmErr, ErrNotFound) {
				logging.Component("storage").Warn().Err(rmErr).Str("key", k).Msg("failed to remove staged table")
			}
		}
		return err
	}

	for _, name := range sortedKeys(tables) {
		key := genKey(next, name)
		if err := g.base.Save(ctx, key, tables[name]); err != nil {
			return abort(fmt.Errorf("stage %s: %w", name, err))
		}
		written = append(written, key)
	}

	carried, err := g.listIn(ctx, prev, "")
	if err != nil {
		return abort(fmt.Errorf("list generation: %w", err))
	}
	for _, name := range carried {
		if _, replaced := tables[name]; replaced || name == drop {
			continue
		}
		t, err := g.loadFrom(ctx, prev, name)
		if err != nil {
			return abort(fmt.Errorf("carry %s: %w", name, err))
		}
		key := genKey(next, name)
		if err := g.base.Save(ctx, key, t); err != nil {
			return abort(fmt.Errorf("carry %s: %w", name, err))
		}
		written = append(written, key)
	}

	pointer := NewTable("generation")
	pointer.Append(next)
	if err := g.base.Save(ctx, PointerName, pointer); err != nil {
		return abort(fmt.Errorf("flip pointer: %w", err))
	}

	g.prune(ctx, next)
	return nil
}

// prune drops generations older than the newest g.retain. Failures only
// leave garbage behind, so they are logged and ignored.
func (g *Generations) prune(ctx context.Context, live string) {
	log := logging.Component("storage")
	keys, err := g.base.List(ctx, genRoot)
	if err != nil {
		log.Warn().Err(err).Msg("prune: list generations")
		return
	}

	byGen := make(map[string][]string)
	for _, k := range keys {
		rest := strings.TrimPrefix(k, genRoot)
		gen, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		byGen[gen] = append(byGen[gen], k)
	}
	gens := make([]string, 0, len(byGen))
	for gen := range byGen {
		gens = append(gens, gen)
	}
	sort.Strings(gens)
	if len(gens) <= g.retain {
		return
	}

	for _, gen := range gens[:len(gens)-g.retain] {
		if gen == live {
			continue
		}
		for _, k := range byGen[gen] {
			if err := g.base.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
				log.Warn().Err(err).Str("key", k).Msg("prune: delete")
			}
		}
	}
}

// nextGeneration names the generation after prev. The sequence prefix keeps
// names sortable; the random suffix keeps two writers from sharing a
// directory.
func nextGeneration(prev string) string {
	var seq int
	if prev != "" {
		head, _, _ := strings.Cut(prev, "-")
		seq, _ = strconv.Atoi(head)
	}
	return fmt.Sprintf("%010d-%s", seq+1, uuid.NewString()[:8])
}

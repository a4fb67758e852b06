package storage

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SetLoader is implemented by stores that can read several tables from one
// consistent state.
type SetLoader interface {
	LoadSet(ctx context.Context, names []string) (map[string]Table, error)
}

// LoadSet loads names from s. Missing tables are left out of the result.
// Stores without SetLoader are read table by table in parallel, which is
// only consistent if nothing writes concurrently.
func LoadSet(ctx context.Context, s Store, names []string) (map[string]Table, error) {
	if sl, ok := s.(SetLoader); ok {
		return sl.LoadSet(ctx, names)
	}
	return loadParallel(ctx, names, s.Load)
}

func loadParallel(ctx context.Context, names []string, load func(context.Context, string) (Table, error)) (map[string]Table, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]Table, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			t, err := load(gctx, name)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

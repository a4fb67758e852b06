// Package storage is the flat name -> table store the engine persists to.
//
// Backends: in-memory, local directory, S3 and SQLite. Multi-table saves go
// through Committer, which is all-or-nothing: SQLite implements it with a
// transaction, every other backend through Generations.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("table not found")

// Store is the storage collaborator contract. Implementations may block
// and may fail; the engine never retries.
type Store interface {
	Load(ctx context.Context, name string) (Table, error)
	Save(ctx context.Context, name string, t Table) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Committer saves several tables so that readers observe either all of
// them or none.
type Committer interface {
	Store
	Commit(ctx context.Context, tables map[string]Table) error
}

// blobs is the byte-level contract the file and S3 backends share.
type blobs interface {
	read(ctx context.Context, key string) ([]byte, error)
	write(ctx context.Context, key string, data []byte) error
	list(ctx context.Context, prefix string) ([]string, error)
	remove(ctx context.Context, key string) error
}

// blobStore adapts a blob backend to Store by CSV-encoding tables.
type blobStore struct {
	b blobs
}

func (s blobStore) Load(ctx context.Context, name string) (Table, error) {
	data, err := s.b.read(ctx, name)
	if err != nil {
		return Table{}, err
	}
	return UnmarshalCSV(data)
}

func (s blobStore) Save(ctx context.Context, name string, t Table) error {
	data, err := MarshalCSV(t)
	if err != nil {
		return err
	}
	return s.b.write(ctx, name, data)
}

func (s blobStore) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.b.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s blobStore) Delete(ctx context.Context, name string) error {
	return s.b.remove(ctx, name)
}

func sortedKeys(tables map[string]Table) []string {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasPrefix(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(name, prefix)
}

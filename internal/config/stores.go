package config

import (
	"context"
	"fmt"
	"io"

	"boxoffice/internal/catalog"
	"boxoffice/internal/storage"
	"boxoffice/pkg/database"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenCanonical opens the store holding the canonical tables. Backends
// without transactions are wrapped in storage.Generations.
func (c StorageConfig) OpenCanonical(ctx context.Context) (storage.Committer, io.Closer, error) {
	var base storage.Store
	switch c.Backend {
	case "sqlite":
		db, err := database.Open(c.SQLite)
		if err != nil {
			return nil, nil, err
		}
		s, err := storage.NewSQLite(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db, nil
	case "file":
		s, err := storage.NewFileStore(c.Dir)
		if err != nil {
			return nil, nil, err
		}
		base = s
	case "s3":
		s, err := storage.NewS3Store(ctx, c.S3)
		if err != nil {
			return nil, nil, err
		}
		base = s
	case "memory":
		base = storage.NewMemory()
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	return storage.NewGenerations(base, c.RetainGenerations), nopCloser{}, nil
}

// OpenUploads opens the store raw upload batches are read from.
func (c UploadsConfig) OpenUploads(ctx context.Context) (storage.Store, error) {
	switch c.Backend {
	case "file":
		return storage.NewFileStore(c.Dir)
	case "s3":
		return storage.NewS3Store(ctx, c.S3)
	case "memory":
		return storage.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown uploads backend %q", c.Backend)
}

// OpenCatalog opens the canonical store and binds the configured table
// names to it.
func (c *Config) OpenCatalog(ctx context.Context) (*catalog.Catalog, io.Closer, error) {
	store, closer, err := c.Storage.OpenCanonical(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open canonical store: %w", err)
	}
	return catalog.New(store, c.Storage.Tables), closer, nil
}

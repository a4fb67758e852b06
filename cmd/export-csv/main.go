package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"boxoffice/internal/catalog"
	"boxoffice/internal/config"
	"boxoffice/internal/storage"
	"boxoffice/pkg/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default: $BOXOFFICE_CONFIG or ./config.yaml)")
		out        = flag.String("dir", "export", "output directory")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := exportDir(ctx, cfg, *out); err != nil {
		logging.Fatal().Err(err).Str("dir", *out).Msg("export failed")
	}
}

// exportDir writes the four canonical tables of one consistent state as
// plain CSV files.
func exportDir(ctx context.Context, cfg *config.Config, dir string) error {
	cat, closer, err := cfg.OpenCatalog(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := cat.Load(ctx)
	if err != nil {
		return err
	}
	dst, err := storage.NewFileStore(dir)
	if err != nil {
		return err
	}

	tables := cat.Encode(st)
	for _, name := range cat.Names().All() {
		if err := dst.Save(ctx, name, tables[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	digest, err := catalog.DigestTables(tables)
	if err != nil {
		return err
	}
	logging.Component("export").Info().
		Int("records", len(st.Records)).
		Str("digest", digest).
		Str("dir", dir).
		Msg("exported canonical dataset")
	return nil
}

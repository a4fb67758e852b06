package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"boxoffice/internal/catalog"
	"boxoffice/internal/config"
	"boxoffice/internal/features"
	"boxoffice/internal/storage"
	"boxoffice/pkg/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default: $BOXOFFICE_CONFIG or ./config.yaml)")
		in         = flag.String("dir", "data", "directory holding the canonical CSV and the three dictionary CSVs")
		force      = flag.Bool("force", false, "replace a non-empty canonical store")
		recompute  = flag.Bool("recompute", true, "re-derive feature columns before writing")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := importDir(ctx, cfg, *in, *force, *recompute); err != nil {
		logging.Fatal().Err(err).Str("dir", *in).Msg("import failed")
	}
}

func importDir(ctx context.Context, cfg *config.Config, dir string, force, recompute bool) error {
	log := logging.Component("import")

	src, err := storage.NewFileStore(dir)
	if err != nil {
		return err
	}
	st, err := catalog.New(src, cfg.Storage.Tables).Load(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	if recompute {
		derived := features.Derive(st.Records)
		for _, d := range derived.Dropped {
			log.Warn().Str("title", d.Title).Str("reason", d.Reason).Msg("dropped row")
		}
		st.Records = derived.Records
	}

	dst, closer, err := cfg.OpenCatalog(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	current, err := dst.Load(ctx)
	if err != nil {
		return err
	}
	if len(current.Records) > 0 && !force {
		return fmt.Errorf("canonical store already holds %d records, pass -force to replace", len(current.Records))
	}

	if err := dst.Save(ctx, st); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	digest, err := dst.Digest(st)
	if err != nil {
		return err
	}

	log.Info().
		Int("records", len(st.Records)).
		Interface("dictionaries", st.Dictionaries.Sizes()).
		Str("digest", digest).
		Msg("imported canonical dataset")
	return nil
}

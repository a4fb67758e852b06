package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"boxoffice/internal/config"
	"boxoffice/internal/ingest"
	"boxoffice/internal/reconcile"
	"boxoffice/pkg/logging"
	"boxoffice/pkg/models"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default: $BOXOFFICE_CONFIG or ./config.yaml)")
		asJSON     = flag.Bool("json", false, "print the full run report as JSON")
		clearUps   = flag.Bool("clear", false, "delete merged upload files after a successful run")
		timeout    = flag.Duration("timeout", 5*time.Minute, "abort the run after this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)
	if *clearUps {
		cfg.Reconcile.ClearUploads = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	os.Exit(run(ctx, cfg, *asJSON))
}

func run(ctx context.Context, cfg *config.Config, asJSON bool) int {
	log := logging.Component("cli")

	cat, closer, err := cfg.OpenCatalog(ctx)
	if err != nil {
		log.Error().Err(err).Msg("open catalog")
		return 1
	}
	defer closer.Close()

	uploads, err := cfg.Uploads.OpenUploads(ctx)
	if err != nil {
		log.Error().Err(err).Msg("open uploads")
		return 1
	}

	p, err := reconcile.New(cat, uploads, cfg.Reconcile)
	if err != nil {
		log.Error().Err(err).Msg("build pipeline")
		return 1
	}

	rep, runErr := p.Run(ctx)
	if rep == nil {
		log.Error().Err(runErr).Msg("run did not start")
		return 1
	}

	if asJSON {
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("encode report")
			return 1
		}
		fmt.Println(string(b))
	} else {
		printReport(rep)
	}

	if runErr != nil {
		return 1
	}
	return 0
}

func printReport(rep *reconcile.Report) {
	fmt.Println(rep.Summary())
	if rep.Outcome == reconcile.OutcomeNoop {
		fmt.Println("canonical dataset unchanged")
	}
	for _, reason := range ingest.Reasons {
		if n := rep.RejectedByReason[reason]; n > 0 {
			fmt.Printf("  rejected %-18s %d\n", reason, n)
		}
	}
	for _, r := range rep.Rejections {
		fmt.Printf("  %s:%d %q %s: %s\n", r.Source, r.Line, r.Title, r.Reason, r.Detail)
	}
	for _, dim := range models.Dimensions {
		if n := rep.NewEntries[dim]; n > 0 {
			fmt.Printf("  new %-8s %d\n", dim, n)
		}
	}
	if rep.Outcome == reconcile.OutcomeMerged {
		fmt.Printf("digest %s\n", rep.DigestAfter)
	}
}

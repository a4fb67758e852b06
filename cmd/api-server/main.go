package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boxoffice/internal/auth"
	"boxoffice/internal/catalog"
	"boxoffice/internal/config"
	"boxoffice/internal/events"
	"boxoffice/internal/reconcile"
	"boxoffice/internal/resolver"
	"boxoffice/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $BOXOFFICE_CONFIG or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)
	log := logging.Component("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, closer, err := cfg.OpenCatalog(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog")
	}
	defer closer.Close()

	uploads, err := cfg.Uploads.OpenUploads(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("open uploads")
	}

	res := resolver.New()
	if err := publishCurrent(ctx, cat, res); err != nil {
		// keep serving; /ready reports 503 until a run publishes
		log.Error().Err(err).Msg("initial catalog load failed")
	}

	hub := events.NewHub(0)

	pipeline, err := reconcile.New(cat, uploads, cfg.Reconcile)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	pipeline.OnPersist(func(st catalog.State, rep *reconcile.Report) {
		res.PublishState(st, rep.DigestAfter)
		hub.Publish(events.Event{
			Type:    events.TypeSnapshotPublished,
			RunID:   rep.RunID,
			Records: len(st.Records),
			Digest:  rep.DigestAfter,
			At:      time.Now().UTC(),
		})
	})
	pipeline.OnFinish(func(rep *reconcile.Report) {
		hub.Publish(events.FromReport(rep))
	})

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTTTL,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("trusted proxies")
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		snap := res.Snapshot()
		if snap == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"records":      snap.Records(),
			"digest":       snap.Digest(),
			"dictionaries": snap.DictionarySizes(),
			"published_at": snap.CreatedAt(),
			"tcp_clients":  stats.TCPClients,
			"ws_clients":   stats.WSClients,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", events.WSHandler(hub))

	// Resolver (public)
	resolver.NewHandler(res).RegisterRoutes(router.Group(""))

	// Reconciliation (bearer token with reconcile scope)
	reconcileHandler := reconcile.NewHandler(pipeline, tokens)
	reconcileHandler.RegisterRoutes(router.Group("/admin"))

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if cfg.Server.EventsAddr != "" {
		tcpSrv := events.NewServer(cfg.Server.EventsAddr, hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcpSrv.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.Server.Addr).Msg("http api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	wg.Wait()
	log.Info().Msg("servers stopped")
}

func publishCurrent(ctx context.Context, cat *catalog.Catalog, res *resolver.Resolver) error {
	st, err := cat.Load(ctx)
	if err != nil {
		return err
	}
	digest, err := cat.Digest(st)
	if err != nil {
		return err
	}
	res.PublishState(st, digest)
	return nil
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/config"
	"carbonledger.org/internal/httpapi"
	"carbonledger.org/internal/obs"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
	"carbonledger.org/internal/store/pg"
	"carbonledger.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		store    rbac.Store
		recorder audit.Recorder
		probe    httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		recorder = pg.NewAuditStore(pgStore.DB())
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		// No DSN: run fully in memory. Useful for local work and demos.
		store = rbac.NewInMemory()
		recorder = audit.NewMemory()
	}

	svc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	resolver, err := rbac.NewResolver(store)
	if err != nil {
		log.Fatalf("rbac resolver: %v", err)
	}
	authn, err := auth.NewAuthenticator(store)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}
	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenAudience)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("seed builtin catalog: %v", err)
	}
	cancel()

	activity := stream.New()
	api := httpapi.New(probe, version, httpapi.Deps{
		RBAC:     svc,
		Resolver: resolver,
		Authn:    authn,
		Tokens:   tokens,
		Sessions: session.NewStore(session.WithTTL(cfg.SessionTTL)),
		Recorder: &stream.Fanout{Recorder: recorder, Stream: activity},
		Stream:   activity,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting carbonledger-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

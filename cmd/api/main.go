package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/hybridtracker/internal/api"
	"example.com/hybridtracker/internal/calendar"
	"example.com/hybridtracker/internal/config"
	"example.com/hybridtracker/internal/events"
	"example.com/hybridtracker/internal/identity"
	"example.com/hybridtracker/internal/kv"
	"example.com/hybridtracker/internal/reconcile"
	"example.com/hybridtracker/internal/remote"
	"example.com/hybridtracker/internal/store"
	httptransport "example.com/hybridtracker/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid time zone %q: %v", cfg.TimeZone, err)
	}

	backend, err := kv.OpenSQLite(cfg.DataPath)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer backend.Close()

	client, err := remote.New(remote.Config{
		Endpoint:   cfg.RemoteURL,
		Credential: cfg.RemoteKey,
		Table:      cfg.RemoteTable,
		Timeout:    cfg.RemoteTimeout,
	})
	if err != nil {
		log.Fatalf("failed to configure remote sync: %v", err)
	}
	if pg, ok := client.(*remote.Postgres); ok {
		defer pg.Close()
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.SyncEventsTopic)
	}
	defer publisher.Close()

	st := store.New(backend)
	devices := identity.NewProvider(backend)
	engine := reconcile.New(st, client, devices, backend, reconcile.WithPublisher(publisher))
	cal := calendar.New(calendar.WithLocation(loc))

	handler := api.NewHandler(st, engine, devices, cal)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RemoteTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.RequestLogger(log.Default()),
		httptransport.CORS(cfg.CORSOrigin),
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("hybrid-tracker listening on %s (data %s, remote sync configured=%t)", cfg.HTTPAddress, backend.Path(), client.IsConfigured())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	snapshot := engine.Initialize(ctx)
	log.Printf("startup reconciliation complete: %d records", len(snapshot))
	go engine.Start(ctx)
	handler.SetReady(true)

	<-shutdownCh
	handler.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	engine.Wait()
}

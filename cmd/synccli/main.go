// Command synccli inspects and drives the local tracker store from a shell.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"example.com/hybridtracker/internal/config"
	"example.com/hybridtracker/internal/events"
	"example.com/hybridtracker/internal/identity"
	"example.com/hybridtracker/internal/kv"
	"example.com/hybridtracker/internal/reconcile"
	"example.com/hybridtracker/internal/remote"
	"example.com/hybridtracker/internal/store"
)

var dataPath string

var rootCmd = &cobra.Command{
	Use:   "synccli",
	Short: "Inspect and sync the local workout store",
	Long: `synccli works directly on the SQLite file used by the tracker API.

Remote sync is configured from the same environment variables as the API
(REMOTE_URL, REMOTE_KEY, ...). Stop the API before importing or clearing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "path to the local store (default $DATA_PATH)")
	rootCmd.AddCommand(statusCmd, syncCmd, exportCmd, importCmd, clearCmd, resetDeviceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the engine wired the same way as the API, minus HTTP.
type app struct {
	backend   *kv.SQLite
	client    remote.Client
	publisher events.Publisher
	store     *store.Store
	devices   *identity.Provider
	engine    *reconcile.Engine
}

func openApp(stderr io.Writer) (*app, error) {
	cfg := config.Load()
	if dataPath != "" {
		cfg.DataPath = dataPath
	}

	backend, err := kv.OpenSQLite(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	client, err := remote.New(remote.Config{
		Endpoint:   cfg.RemoteURL,
		Credential: cfg.RemoteKey,
		Table:      cfg.RemoteTable,
		Timeout:    cfg.RemoteTimeout,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("configure remote sync: %w", err)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.SyncEventsTopic)
	}

	logger := log.New(stderr, "[synccli] ", log.LstdFlags)
	st := store.New(backend, store.WithLogger(logger))
	devices := identity.NewProvider(backend, identity.WithLogger(logger))
	engine := reconcile.New(st, client, devices, backend,
		reconcile.WithLogger(logger),
		reconcile.WithPublisher(publisher),
	)
	return &app{
		backend:   backend,
		client:    client,
		publisher: publisher,
		store:     st,
		devices:   devices,
		engine:    engine,
	}, nil
}

func (a *app) Close() {
	_ = a.publisher.Close()
	if pg, ok := a.client.(*remote.Postgres); ok {
		pg.Close()
	}
	_ = a.backend.Close()
}

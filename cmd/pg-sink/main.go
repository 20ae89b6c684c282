// Command pg-sink runs the SinkEngine: it consumes a stream partition
// of ReplicationEvents and applies them to a destination Postgres.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streamkeep/pgcdc/internal/control"
	"github.com/streamkeep/pgcdc/internal/sink"
	"github.com/streamkeep/pgcdc/internal/streamlog"
	"github.com/streamkeep/pgcdc/internal/transform"
	"github.com/streamkeep/pgcdc/pkg/config"
	"github.com/streamkeep/pgcdc/pkg/metrics"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
)

const processName = "pg-sink"

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   processName,
		Short: "Apply a stream of Postgres change events to a destination database",
		RunE:  runSink,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/pgcdc-sink.yaml)")
	root.AddCommand(metadataCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Print connector metadata and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := map[string]any{
				"name":        processName,
				"version":     "0.1.0",
				"description": "Applies a stream of Postgres change events to a destination database.",
				"direction":   "sink",
				"schema":      "ReplicationEvent",
			}
			return json.NewEncoder(os.Stdout).Encode(doc)
		},
	}
}

func runSink(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSink(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	instanceID := uuid.NewString()
	log.Info("pg-sink starting", zap.String("instance_id", instanceID))

	partition, err := streamlog.NewKafkaPartition(streamlog.Config{
		Brokers: cfg.Common.Brokers,
		Topic:   cfg.Common.Topic,
	})
	if err != nil {
		return fmt.Errorf("connect stream partition: %w", err)
	}
	defer partition.Close()

	cache := schemacache.New()
	registry := transform.NewRegistry()
	registry.RegisterBuiltins()
	hook, err := registry.Build(cfg.Common.TransformChain, transform.Deps{Schema: cache})
	if err != nil {
		return fmt.Errorf("build transform chain: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := control.NewLoop(log)
	met := control.NewMetrics(processName)
	counters := &control.ByteCounters{}

	var wg sync.WaitGroup
	metrics.StartPrometheusServer(ctx, &wg, nil)
	go loop.ServeMetrics(ctx, control.SocketPath(), counters)

	eng := sink.New(cfg, partition, cache, hook, loop, met, counters, log)

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("pg-sink: received termination signal, shutting down")
		loop.RequestShutdown()
		cancel()
		<-engDone
	case err := <-engDone:
		if err != nil {
			log.Error("pg-sink: engine exited with error", zap.Error(err))
			return err
		}
	}

	log.Info("pg-sink: shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

// Command pg-source runs the SourceEngine: it opens a Postgres logical
// replication slot and produces ReplicationEvents onto a stream
// partition. Structured the way the teacher's cmd/pgo lays out its
// cobra root + subcommand, trimmed to this process's own surface.
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
	"github.com/streamkeep/pgcdc/internal/source"
	"github.com/streamkeep/pgcdc/internal/streamlog"
	"github.com/streamkeep/pgcdc/pkg/config"
	"github.com/streamkeep/pgcdc/pkg/metrics"
)

const processName = "pg-source"

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   processName,
		Short: "Replicate Postgres WAL changes onto a stream partition",
		RunE:  runSource,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/pgcdc-source.yaml)")
	root.AddCommand(metadataCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// metadataCmd implements spec.md §6's "metadata first-argument mode":
// print a JSON description of this connector and exit 0 without
// touching Postgres or the stream.
func metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Print connector metadata and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := map[string]any{
				"name":        processName,
				"version":     "0.1.0",
				"description": "Streams Postgres logical replication changes onto a stream partition.",
				"direction":   "source",
				"schema":      "ReplicationEvent",
			}
			return json.NewEncoder(os.Stdout).Encode(doc)
		},
	}
}

func runSource(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSource(cfgFile)
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
	log.Info("pg-source starting", zap.String("instance_id", instanceID))

	partition, err := streamlog.NewKafkaPartition(streamlog.Config{
		Brokers: cfg.Common.Brokers,
		Topic:   cfg.Common.Topic,
	})
	if err != nil {
		return fmt.Errorf("connect stream partition: %w", err)
	}
	defer partition.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := control.NewLoop(log)
	met := control.NewMetrics(processName)
	counters := &control.ByteCounters{}

	var wg sync.WaitGroup
	metrics.StartPrometheusServer(ctx, &wg, nil)
	go loop.ServeMetrics(ctx, control.SocketPath(), counters)

	eng := source.New(cfg, partition, loop, met, counters, log)

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("pg-source: received termination signal, shutting down")
		loop.RequestShutdown()
		cancel()
		<-engDone
	case err := <-engDone:
		if err != nil {
			log.Error("pg-source: engine exited with error", zap.Error(err))
			return err
		}
	}

	log.Info("pg-source: shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

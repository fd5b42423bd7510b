// Command ignited runs the Ignite server: it owns a single engine instance
// and serves it over TCP using the wire protocol in internal/wire.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignitedb/ignite/internal/engine"
	"github.com/ignitedb/ignite/internal/server"
	"github.com/ignitedb/ignite/pkg/logger"
	"github.com/ignitedb/ignite/pkg/options"
	"github.com/spf13/cobra"
)

func main() {
	var (
		addr            string
		dataDir         string
		segmentSize     uint64
		compactInterval time.Duration
		poolSize        int
	)

	root := &cobra.Command{
		Use:   "ignited",
		Short: "Ignite server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), addr, dataDir, segmentSize, compactInterval, poolSize)
		},
	}

	root.Flags().StringVar(&addr, "addr", "127.0.0.1:6380", "address to listen on")
	root.Flags().StringVar(&dataDir, "data-dir", options.DefaultDataDir, "base directory for segment storage")
	root.Flags().Uint64Var(&segmentSize, "segment-size", options.DefaultSegmentSize, "maximum size in bytes of a single segment")
	root.Flags().DurationVar(&compactInterval, "compact-interval", options.DefaultCompactInterval, "how often the background compactor runs")
	root.Flags().IntVar(&poolSize, "pool-size", 0, "worker pool size; 0 defaults to NumCPU")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, dataDir string, segmentSize uint64, compactInterval time.Duration, poolSize int) error {
	log := logger.New("ignited")

	opts := options.NewDefaultOptions()
	for _, opt := range []options.OptionFunc{
		options.WithDataDir(dataDir),
		options.WithSegmentSize(segmentSize),
		options.WithCompactInterval(compactInterval),
	} {
		opt(&opts)
	}

	eng, err := engine.New(ctx, &engine.Config{Options: &opts, Logger: log})
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	srv := server.New(addr, eng, log, poolSize)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(runCtx) }()

	select {
	case err := <-errCh:
		eng.Close()
		return err
	case <-runCtx.Done():
		log.Infow("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Close(shutdownCtx)
		<-errCh
		return eng.Close()
	}
}

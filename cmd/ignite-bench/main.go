// Command ignite-bench drives an identical operation mix against the
// Ignite engine and an embedded boltdb/bolt store, printing a comparison
// table. bolt is used purely as a benchmarking baseline, never as a
// production backend.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/ignitedb/ignite/internal/engine"
	"github.com/ignitedb/ignite/pkg/logger"
	"github.com/ignitedb/ignite/pkg/options"
	"github.com/spf13/cobra"
)

// Backend is the minimal surface both stores under comparison implement.
type Backend interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Rm(key string) error
	Close() error
}

type ignbackend struct {
	eng *engine.Engine
	ctx context.Context
}

func (b *ignbackend) Set(key string, value []byte) error { return b.eng.Set(b.ctx, key, value) }
func (b *ignbackend) Get(key string) ([]byte, error)      { return b.eng.Get(b.ctx, key) }
func (b *ignbackend) Rm(key string) error                 { return b.eng.Rm(b.ctx, key) }
func (b *ignbackend) Close() error                        { return b.eng.Close() }

type boltBackend struct {
	db     *bolt.DB
	bucket []byte
}

func (b *boltBackend) Set(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *boltBackend) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("key not found")
		}
		v := bucket.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("key not found")
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (b *boltBackend) Rm(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *boltBackend) Close() error { return b.db.Close() }

func main() {
	var (
		dataDir string
		ops     int
	)

	root := &cobra.Command{
		Use:   "ignite-bench",
		Short: "Compare Ignite against an embedded bolt baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(dataDir, ops)
		},
	}

	root.Flags().StringVar(&dataDir, "data-dir", "", "base directory for bench data (default: a temp dir)")
	root.Flags().IntVar(&ops, "ops", 10000, "number of set/get/rm operations to run per backend")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBench(dataDir string, ops int) error {
	if dataDir == "" {
		tmp, err := os.MkdirTemp("", "ignite-bench-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dataDir = tmp
	}

	ctx := context.Background()
	log := logger.New("ignite-bench")

	igniteOpts := options.NewDefaultOptions()
	options.WithDataDir(dataDir + "/ignite")(&igniteOpts)

	eng, err := engine.New(ctx, &engine.Config{Options: &igniteOpts, Logger: log})
	if err != nil {
		return fmt.Errorf("failed to start ignite engine: %w", err)
	}
	ignite := &ignbackend{eng: eng, ctx: ctx}

	boltDB, err := bolt.Open(dataDir+"/bolt.db", 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open bolt: %w", err)
	}
	boltBE := &boltBackend{db: boltDB, bucket: []byte("bench")}

	backends := map[string]Backend{"ignite": ignite, "bolt": boltBE}

	fmt.Printf("Running %d set/get/rm operations against each backend\n\n", ops)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("%-10s %-12s %-12s %-12s\n", "Backend", "Set (ms)", "Get (ms)", "Rm (ms)")
	fmt.Println(strings.Repeat("-", 60))

	for name, backend := range backends {
		setDur := timeOp(ops, func(i int) error {
			return backend.Set(benchKey(i), []byte("value-"+strconv.Itoa(i)))
		})
		getDur := timeOp(ops, func(i int) error {
			_, err := backend.Get(benchKey(i))
			return err
		})
		rmDur := timeOp(ops, func(i int) error {
			return backend.Rm(benchKey(i))
		})

		fmt.Printf(
			"%-10s %-12.3f %-12.3f %-12.3f\n",
			name,
			float64(setDur.Microseconds())/1000.0,
			float64(getDur.Microseconds())/1000.0,
			float64(rmDur.Microseconds())/1000.0,
		)

		backend.Close()
	}

	fmt.Println(strings.Repeat("=", 60))
	return nil
}

func benchKey(i int) string {
	return "bench-key-" + strconv.Itoa(i)
}

func timeOp(ops int, fn func(i int) error) time.Duration {
	start := time.Now()
	for i := range ops {
		_ = fn(i)
	}
	return time.Since(start)
}

// Package engine provides the core database engine implementation for the Ignite storage system.
//
// The engine serves as the central coordinator and entry point for all database operations.
// It orchestrates the interaction between three main subsystems:
//   - Index: Manages in-memory data structures for fast key lookups
//   - Storage: Handles persistent data storage, including write-ahead logs and data files
//   - Compaction: Performs background maintenance to optimize storage efficiency and performance
//
// The engine implements a thread-safe interface with proper lifecycle management,
// ensuring resources are properly initialized and cleaned up. It uses atomic operations
// for state management to provide consistent behavior across concurrent operations.
//
// Writers are serialized through a single mutex covering both the segment append and
// the index publish, so a reader can never observe an index entry that points at bytes
// not yet written to the segment file. Readers take no lock at all: Index.Get and Storage.ReadAt are
// both safe for concurrent use while a writer holds the write mutex, and the background
// compactor never takes the write mutex either, coordinating instead through
// Index.ReplaceIfEqual.
package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/internal/codec"
	"github.com/ignitedb/ignite/internal/compaction"
	"github.com/ignitedb/ignite/internal/index"
	"github.com/ignitedb/ignite/internal/storage"
	ignerrors "github.com/ignitedb/ignite/pkg/errors"
	"github.com/ignitedb/ignite/pkg/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
	ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

	// ErrKeyNotFound is returned by Get and Rm when the key has no live entry.
	ErrKeyNotFound = errors.New("operation failed: key not found")

	// ErrValueTooLarge is returned when a value exceeds the maximum size
	// a single segment can ever hold, since it could never be appended.
	ErrValueTooLarge = errors.New("operation failed: value too large for a single segment")
)

// Engine represents the main database engine that coordinates all subsystems.
// It acts as the primary interface for database operations and manages the lifecycle
// of all internal components. The engine is designed to be thread-safe and supports
// concurrent operations while maintaining data consistency.
type Engine struct {
	options    *options.Options       // options contains all configuration parameters for the engine and its subsystems.
	log        *zap.SugaredLogger     // log provides structured logging capabilities throughout the engine.
	closed     atomic.Bool            // closed is an atomic boolean that tracks the engine's lifecycle state.
	index      *index.Index           // index manages the in-memory data structures for fast data access.
	storage    *storage.Storage       // storage handles all persistent data operations.
	compaction *compaction.Compaction // compaction manages background processes that optimize storage efficiency.
	clock      clock.Clock            // clock is the time source for write timestamps and expirations.

	writeMu sync.Mutex         // writeMu serializes every mutating operation: segment append plus index publish.
	cancel  context.CancelFunc // cancel stops the background compaction loop on Close.
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided configuration.
// This constructor follows the dependency injection pattern, making the engine
// testable and allowing for different configurations in different environments.
//
// Returns:
//   - *Engine: A fully initialized engine ready for use
//   - error: Any error encountered during initialization, typically from storage setup
func New(ctx context.Context, config *Config) (*Engine, error) {
	clk := config.Options.Clock
	if clk == nil {
		clk = clock.New()
	}

	// Initialize the storage subsystem first since recovery needs it to
	// discover and replay segments before the index can be populated.
	store, err := storage.New(ctx, &storage.Config{Logger: config.Logger, Options: config.Options})
	if err != nil {
		return nil, err
	}

	idx, err := index.New(&index.Config{DataDir: config.Options.DataDir, Logger: config.Logger})
	if err != nil {
		store.Close()
		return nil, err
	}

	if err := loadIndexFromSegments(store, idx, config.Logger); err != nil {
		store.Close()
		return nil, err
	}

	compactor := compaction.New(&compaction.Config{
		Options: config.Options,
		Logger:  config.Logger,
		Storage: store,
		Index:   idx,
	})

	bgCtx, cancel := context.WithCancel(context.Background())
	go compactor.Run(bgCtx)

	return &Engine{
		options:    config.Options,
		log:        config.Logger,
		index:      idx,
		storage:    store,
		compaction: compactor,
		clock:      clk,
		cancel:     cancel,
	}, nil
}

// loadIndexFromSegments replays every segment in ascending ID order to rebuild the index
// from scratch. Because segments are always appended to in write order and
// never reordered, a simple sequential replay naturally produces
// last-writer-wins semantics: a later Put overwrites an earlier index entry
// for the same key, and a Remove deletes it until a later Put resurrects it.
func loadIndexFromSegments(store *storage.Storage, idx *index.Index, log *zap.SugaredLogger) error {
	ids, err := store.ListSegmentIDs()
	if err != nil {
		return err
	}

	var replayed int
	for _, segID := range ids {
		err := store.Iterate(segID, func(loc storage.SegmentRecordLocation, rec *codec.Record) error {
			key := string(rec.Key)
			if rec.IsRemove() {
				idx.Remove(key)
				return nil
			}

			return idx.Put(key, &index.RecordPointer{
				Timestamp: rec.Timestamp,
				ExpiresAt: rec.ExpiresAt,
				Offset:    loc.Offset,
				EntrySize: uint32(loc.Size),
				ValueSize: uint32(len(rec.Value)),
				Key:       key,
				SegmentID: uint16(segID),
			})
		})
		if err != nil {
			return err
		}
		replayed++
	}

	log.Infow("Recovery complete", "segmentsReplayed", replayed, "liveKeys", idx.Len())
	return nil
}

// Set stores a key-value pair, overwriting any existing value for key.
func (e *Engine) Set(ctx context.Context, key string, value []byte) error {
	return e.write(key, value, 0)
}

// SetX stores a key-value pair that expires after ttl elapses from now.
func (e *Engine) SetX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return e.write(key, value, 0)
	}
	expiresAt := e.clock.Now().Add(ttl).UnixNano()
	return e.write(key, value, expiresAt)
}

func (e *Engine) write(key string, value []byte, expiresAt int64) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	timestamp := e.clock.Now().UnixNano()
	data := codec.EncodePut([]byte(key), value, timestamp, expiresAt)

	if uint64(len(data)) > e.options.SegmentOptions.Size {
		return ErrValueTooLarge
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	loc, err := e.storage.Append(data)
	if err != nil {
		return err
	}

	return e.index.Put(key, &index.RecordPointer{
		Timestamp: timestamp,
		ExpiresAt: expiresAt,
		Offset:    loc.Offset,
		EntrySize: uint32(loc.Size),
		ValueSize: uint32(len(value)),
		Key:       key,
		SegmentID: uint16(loc.SegmentID),
	})
}

// Get retrieves the value associated with key. It returns ErrKeyNotFound if
// the key has never been set, has been removed, or has expired.
func (e *Engine) Get(ctx context.Context, key string) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var segID uint16
	var pinned bool
	ptr, ok := e.index.GetAndPin(key, func(id uint16) {
		e.storage.PinSegment(uint64(id))
		segID = id
		pinned = true
	})
	if !ok {
		return nil, ErrKeyNotFound
	}
	defer func() {
		if pinned {
			e.storage.UnpinSegment(uint64(segID))
		}
	}()

	if e.expired(ptr) {
		return nil, ErrKeyNotFound
	}

	raw, err := e.storage.ReadAt(storage.SegmentRecordLocation{
		SegmentID: uint64(ptr.SegmentID),
		Offset:    ptr.Offset,
		Size:      int64(ptr.EntrySize),
	})
	if err != nil {
		return nil, err
	}

	decoded, err := codec.DecodeNext(bytes.NewReader(raw))
	if err != nil {
		return nil, ignerrors.NewIndexError(err, ignerrors.ErrorCodeIndexCorrupted, "stored record failed checksum verification").
			WithKey(key).
			WithSegmentID(ptr.SegmentID).
			WithOperation("Get")
	}

	return decoded.Record.Value, nil
}

// Exists reports whether key currently has a live, unexpired entry, without
// reading its value from disk.
func (e *Engine) Exists(key string) bool {
	ptr, ok := e.index.Get(key)
	if !ok {
		return false
	}
	return !e.expired(ptr)
}

// Len returns the number of keys tracked by the index. Expired keys still
// count, since neither Get nor compaction removes an index entry.
func (e *Engine) Len() int {
	return e.index.Len()
}

func (e *Engine) expired(ptr *index.RecordPointer) bool {
	return ptr.ExpiresAt != 0 && e.clock.Now().UnixNano() >= ptr.ExpiresAt
}

// Rm removes a key-value pair from the database. It appends a tombstone
// record so the deletion survives a restart, then drops the in-memory entry.
// Space occupied by the original value is reclaimed later during compaction.
func (e *Engine) Rm(ctx context.Context, key string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if _, ok := e.index.Get(key); !ok {
		return ErrKeyNotFound
	}

	timestamp := e.clock.Now().UnixNano()
	data := codec.EncodeRemove([]byte(key), timestamp)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.storage.Append(data); err != nil {
		return err
	}

	_, err := e.index.Remove(key)
	return err
}

// Close gracefully shuts down the engine and releases all associated resources.
// It stops the compactor, waits for a Set or Rm already holding the write
// mutex to finish its append, and syncs the active segment before closing it.
// Reads already in flight are not waited for.
func (e *Engine) Close() error {
	// Use atomic compare-and-swap to transition from open (false) to closed (true).
	// This operation is atomic and thread-safe, ensuring only one goroutine
	// can successfully close the engine. The operation returns true if the
	// swap was successful (engine was open) or false if it failed (already closed).
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.cancel()
	e.compaction.Stop()

	// Let a write already holding the mutex finish before its storage closes.
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Close both subsystems even if the first fails, and report both
	// failures to the caller rather than swallowing one.
	err := multierr.Append(e.index.Close(), e.storage.Close())
	if err != nil {
		e.log.Warnw("Error during engine shutdown", "error", err)
	}
	return err
}

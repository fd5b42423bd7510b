// Package index provides the in-memory hash table implementation for the ignite key-value store.
// This package embodies the core Bitcask architectural principle: maintain all keys in memory
// with minimal metadata while storing actual values on disk for optimal memory utilization.
//
// The design philosophy centers on memory efficiency as the primary constraint. Every byte
// stored in the RecordPointer structure directly impacts the system's ability to handle
// large datasets. The approach here prioritizes compact data structures over convenience
// features, recognizing that memory constraints often determine system scalability limits.
//
// The index enables O(1) key lookups through an in-memory hash table while keeping
// storage overhead minimal. This allows the system to handle datasets significantly
// larger than available RAM while maintaining excellent read performance characteristics.
package index

import (
	stdErrors "errors"

	"github.com/ignitedb/ignite/pkg/errors"
)

var (
	ErrIndexClosed = stdErrors.New("operation failed: cannot access closed index")
)

// New creates and initializes a new Index instance configured according to the
// provided parameters. The returned Index is immediately ready for concurrent
// use and includes optimizations like pre-allocated map capacity.
func New(config *Config) (*Index, error) {
	if config == nil || config.DataDir == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Index configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	return &Index{
		log:           config.Logger,
		dataDir:       config.DataDir,
		recordPointer: make(map[string]*RecordPointer, 2046),
	}, nil
}

// Get returns the record pointer for key, if one is present. The returned
// pointer is a snapshot; callers must not mutate it, as it may be shared
// with concurrent readers.
func (idx *Index) Get(key string) (*RecordPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ptr, ok := idx.recordPointer[key]
	return ptr, ok
}

// GetAndPin returns the record pointer for key, invoking pin with its
// segment ID before releasing the index's read lock. Because ReplaceIfEqual
// and Remove both require the write lock, any pin call made this way is
// guaranteed to happen before a concurrent compaction pass can observe the
// same key as migrated away from the segment being pinned — closing the
// race between reading a stale pointer and that segment's file being
// removed out from under the read that follows.
func (idx *Index) GetAndPin(key string, pin func(segmentID uint16)) (*RecordPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ptr, ok := idx.recordPointer[key]
	if ok {
		pin(ptr.SegmentID)
	}
	return ptr, ok
}

// Put inserts or overwrites the record pointer for key. Callers hold the
// engine's write lock while calling this, so a plain map write under idx's
// own mutex is sufficient — no CAS semantics are needed here, unlike
// ReplaceIfEqual which the compactor uses to avoid racing with writers.
func (idx *Index) Put(key string, ptr *RecordPointer) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.recordPointer[key] = ptr
	return nil
}

// Remove deletes key's entry from the index. It reports whether the key was
// present so callers can distinguish a genuine delete from a no-op.
func (idx *Index) Remove(key string) (bool, error) {
	if idx.closed.Load() {
		return false, ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, existed := idx.recordPointer[key]
	delete(idx.recordPointer, key)
	return existed, nil
}

// ReplaceIfEqual atomically swaps the pointer stored for key from old to
// next, but only if the entry currently stored is still old (by segment ID
// and offset). The compactor uses this to publish a key's new location after
// rewriting it into a merged segment, without clobbering a write that landed
// concurrently on the active segment. It returns false when the swap did not
// apply, meaning the compactor's copy of that key is now stale and should be
// dropped rather than retried.
func (idx *Index) ReplaceIfEqual(key string, old, next *RecordPointer) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current, ok := idx.recordPointer[key]
	if !ok || old == nil {
		return false
	}
	if current.SegmentID != old.SegmentID || current.Offset != old.Offset {
		return false
	}

	idx.recordPointer[key] = next
	return true
}

// Len reports the number of live keys currently tracked by the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.recordPointer)
}

// Snapshot returns a point-in-time copy of every key -> pointer mapping.
// The compactor uses this to decide which segments hold live data without
// holding the index lock for the duration of a merge pass.
func (idx *Index) Snapshot() map[string]*RecordPointer {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]*RecordPointer, len(idx.recordPointer))
	for k, v := range idx.recordPointer {
		out[k] = v
	}
	return out
}

// Close gracefully shuts down the Index, cleaning up resources and ensuring
// that the index cannot be used after closure.
func (idx *Index) Close() error {
	// Use atomic compare-and-swap to safely check and update the closed state.
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrIndexClosed
	}

	idx.log.Infow("Closing index system")

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Clear the record pointer map to release all memory associated with
	// the index entries.
	clear(idx.recordPointer)
	idx.recordPointer = nil

	idx.log.Infow("Index system closed successfully")
	return nil
}

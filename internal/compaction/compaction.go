// Package compaction implements background merging of segment files to
// reclaim space occupied by overwritten values and tombstoned keys.
//
// A compaction pass scans every sealed (non-active) segment, tallies how
// many of its bytes are still reachable from the live index versus how many
// are dead (superseded or removed), and rewrites segments whose dead-byte
// ratio crosses a configured threshold into fresh segments holding only
// live data, starting a new output segment whenever the current one would
// exceed the configured segment size. Index entries are republished with a compare-and-swap so
// a concurrent write to a key mid-merge always wins over the compactor's
// stale copy.
package compaction

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/internal/codec"
	"github.com/ignitedb/ignite/internal/index"
	"github.com/ignitedb/ignite/internal/storage"
	"github.com/ignitedb/ignite/pkg/options"
	"go.uber.org/zap"
)

// Config holds everything the compactor needs to run independently of the
// engine, so it can be started, stopped, and tested in isolation.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
	Storage *storage.Storage
	Index   *index.Index
}

// Compaction runs a periodic background merge loop over an engine's
// segments. It never holds the engine's write lock: reads of the index use
// Index.Snapshot and publishes use Index.ReplaceIfEqual, both of which are
// safe to call while writers continue to append to the active segment.
type Compaction struct {
	opts    *options.Options
	log     *zap.SugaredLogger
	storage *storage.Storage
	index   *index.Index
	clock   clock.Clock

	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Compaction ready to be started with Run.
func New(config *Config) *Compaction {
	clk := config.Options.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Compaction{
		opts:    config.Options,
		log:     config.Logger,
		storage: config.Storage,
		index:   config.Index,
		clock:   clk,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run blocks, triggering a compaction pass every CompactInterval until ctx
// is cancelled or Stop is called. Callers run it in its own goroutine.
func (c *Compaction) Run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := c.clock.Ticker(c.opts.CompactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.RunOnce(); err != nil {
				c.log.Errorw("Compaction pass failed", "error", err)
			}
		}
	}
}

// Stop signals Run to return and waits for it to do so. Safe to call once.
func (c *Compaction) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

// expired reports whether ptr's entry has passed its TTL. An expired entry
// is treated as dead weight during a compaction scan: it is never counted as
// live and never rewritten forward into a merged segment, so it disappears
// the next time its segment is compacted instead of needing an explicit
// delete.
func (c *Compaction) expired(ptr *index.RecordPointer) bool {
	return ptr.ExpiresAt != 0 && c.clock.Now().UnixNano() >= ptr.ExpiresAt
}

// segmentStats tallies the live and dead bytes observed in one segment
// during a scan of the current index snapshot.
type segmentStats struct {
	liveBytes int64
	deadBytes int64
}

// RunOnce performs a single compaction pass synchronously. It is exported
// so callers such as tests can trigger a pass outside of the ticker
// schedule; the ignite façade does not expose it.
func (c *Compaction) RunOnce() error {
	ids, err := c.storage.ListSegmentIDs()
	if err != nil {
		return err
	}

	active := c.storage.ActiveSegmentID()
	candidates := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id != active {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) < 2 {
		// A single sealed segment is never worth merging with nothing.
		return nil
	}

	snapshot := c.index.Snapshot()

	stats := make(map[uint64]*segmentStats, len(candidates))
	for _, id := range candidates {
		stats[id] = &segmentStats{}
	}

	// liveKeysBySegment lists each candidate segment's live keys, so the
	// merge step below can look each key up again and re-verify its record
	// is still the authoritative copy before copying its bytes forward.
	liveKeysBySegment := make(map[uint64][]string, len(candidates))

	for key, ptr := range snapshot {
		if c.expired(ptr) {
			// An expired entry is never live weight and is never migrated
			// forward by merge; leaving it out here is what makes it
			// disappear once its segment gets compacted.
			continue
		}

		segID := uint64(ptr.SegmentID)
		st, tracked := stats[segID]
		if !tracked {
			continue
		}
		st.liveBytes += int64(ptr.EntrySize)
		liveKeysBySegment[segID] = append(liveKeysBySegment[segID], key)
	}

	// Any byte in a candidate segment not accounted for by a live index
	// entry is dead: either overwritten by a later write or tombstoned.
	var toMerge []uint64
	for _, id := range candidates {
		total, err := c.segmentByteSize(id)
		if err != nil {
			c.log.Warnw("Skipping segment with unreadable size during compaction scan", "segmentID", id, "error", err)
			continue
		}

		st := stats[id]
		st.deadBytes = total - st.liveBytes
		if st.deadBytes < 0 {
			st.deadBytes = 0
		}

		ratio := 0.0
		if total > 0 {
			ratio = float64(st.deadBytes) / float64(total)
		}

		if ratio >= c.opts.CompactionDeadByteRatio {
			toMerge = append(toMerge, id)
		}
	}

	if len(toMerge) == 0 {
		return nil
	}

	c.log.Infow("Starting compaction pass", "segments", toMerge)
	return c.merge(toMerge, liveKeysBySegment)
}

// segmentByteSize returns the on-disk size of a sealed segment by summing
// the record sizes produced while iterating it once.
func (c *Compaction) segmentByteSize(segmentID uint64) (int64, error) {
	var total int64
	err := c.storage.Iterate(segmentID, func(loc storage.SegmentRecordLocation, _ *codec.Record) error {
		total += loc.Size
		return nil
	})
	return total, err
}

// merge rewrites the live records of the given segments into one or more
// fresh segments, rolling the output over to a new segment whenever the
// current one would cross the configured size threshold, republishes each
// migrated key's index entry via compare-and-swap, and removes the old
// segment files once every key has been migrated.
func (c *Compaction) merge(segmentIDs []uint64, liveKeys map[uint64][]string) error {
	maxSize := int64(c.opts.SegmentOptions.Size)

	out, err := c.storage.NewMergeSegment()
	if err != nil {
		return err
	}

	// rollIfNeeded finalizes the current output segment and opens a new one
	// once appending nextSize would overflow it, mirroring the same
	// size-threshold rollover the write path applies to the active segment.
	rollIfNeeded := func(nextSize int64) error {
		if out.Size() == 0 || out.Size()+nextSize <= maxSize {
			return nil
		}
		if err := out.Finalize(); err != nil {
			return err
		}
		c.log.Infow("Compaction output segment rolled over", "segmentID", out.ID(), "size", out.Size())

		next, err := c.storage.NewMergeSegment()
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	migrated := 0
	for _, segID := range segmentIDs {
		for _, key := range liveKeys[segID] {
			oldPtr, ok := c.index.Get(key)
			if !ok || uint64(oldPtr.SegmentID) != segID || c.expired(oldPtr) {
				// Already superseded by a newer write, or expired since the
				// scan snapshot was taken; nothing to migrate.
				continue
			}

			raw, err := c.storage.ReadAt(storage.SegmentRecordLocation{
				SegmentID: segID,
				Offset:    oldPtr.Offset,
				Size:      int64(oldPtr.EntrySize),
			})
			if err != nil {
				out.Abort()
				return err
			}

			decoded, err := codec.DecodeNext(bytes.NewReader(raw))
			if err != nil {
				out.Abort()
				return err
			}
			if decoded.Record.IsRemove() {
				// A tombstone should never be "live" in the snapshot, but
				// guard against it anyway rather than resurrecting a key.
				continue
			}

			if err := rollIfNeeded(int64(len(raw))); err != nil {
				out.Abort()
				return err
			}

			newLoc, err := out.Append(raw)
			if err != nil {
				out.Abort()
				return err
			}

			newPtr := &index.RecordPointer{
				Timestamp: oldPtr.Timestamp,
				ExpiresAt: oldPtr.ExpiresAt,
				Offset:    newLoc.Offset,
				EntrySize: uint32(newLoc.Size),
				ValueSize: oldPtr.ValueSize,
				Key:       key,
				SegmentID: uint16(out.ID()),
			}

			if c.index.ReplaceIfEqual(key, oldPtr, newPtr) {
				migrated++
			}
		}
	}

	if err := out.Finalize(); err != nil {
		return err
	}

	c.log.Infow("Compaction merge finalized", "newSegmentID", out.ID(), "migratedKeys", migrated)

	for _, segID := range segmentIDs {
		if err := c.storage.RemoveSegment(segID); err != nil {
			c.log.Warnw("Failed to remove merged segment", "segmentID", segID, "error", err)
		}
	}

	return nil
}

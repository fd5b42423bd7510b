package storage

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/pkg/options"
	"go.uber.org/zap"
)

// Storage represents the core file-based storage component responsible for managing segment files
// and handling data persistence operations. It maintains the currently active segment file and
// provides the foundation for append-only data storage with automatic segment rotation.
//
// The Storage struct encapsulates all the state needed to manage segment files effectively:
// the current active file handle, configuration options that control behavior, a logger for
// observability, and size tracking for determining when segment rotation is needed.
type Storage struct {
	size            int64              // Current size of the active segment file in bytes.
	activeSegmentId uint64             // Unique identifier for the currently active segment file being written to.
	closed          atomic.Bool        // Flag indicating whether the storage has been closed.
	activeSegment   *os.File           // The currently active segment file where new data is written.
	options         *options.Options   // Configuration parameters controlling storage behavior.
	log             *zap.SugaredLogger // Structured logger for operational visibility and debugging.
	clock           clock.Clock        // Time source for segment filenames; overridable for tests.

	readMu   sync.Mutex          // Guards the read-only segment handle cache.
	readonly map[uint64]*os.File // Cached read-only handles for sealed (non-active) segments.

	nextSegmentID atomic.Uint64 // Source of fresh segment IDs shared by rotation and compaction merges.

	// pinMu guards pins and pendingRemoval, which together let RemoveSegment
	// defer deleting a segment's file until every reader that looked up an
	// index pointer into it before the compactor republished that key has
	// finished reading. Without this, a Get in flight against a segment the
	// compactor just finished migrating could have its file pulled out from
	// under it mid-read.
	pinMu          sync.Mutex
	pins           map[uint64]int64 // In-flight reader count per segment.
	pendingRemoval map[uint64]bool  // Segments RemoveSegment was asked to delete while still pinned.
}

// Config encapsulates all the configuration parameters required to initialize a Storage instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// SegmentRecordLocation identifies where on disk a single record lives.
type SegmentRecordLocation struct {
	SegmentID uint64
	Offset    int64
	Size      int64
}

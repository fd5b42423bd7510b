// Package storage provides a comprehensive file-based storage mechanism for managing segments of data
// in high-throughput, append-only scenarios.
//
// This package was designed to solve the fundamental challenge of efficiently storing streaming data
// that arrives continuously and needs to be persisted reliably. Think of it as a specialized foundation
// for systems like write-ahead logs, event sourcing platforms, or time-series databases where data
// flows in continuously and must be stored in an organized, retrievable manner.
//
// Core Architecture:
//
// The storage system operates on the concept of "segments" - individual files that contain chunks
// of data. When a segment reaches its configured size limit, the system automatically creates a new
// segment and continues writing to it. This segmentation strategy provides several key benefits:
// it keeps individual files at manageable sizes, enables parallel processing of historical data,
// facilitates efficient cleanup of old data, and provides natural boundaries for backup operations.
//
// The storage engine maintains exactly one active segment file at any given time. This active segment
// is where all new data gets appended. Once this segment reaches its size threshold, the system
// seamlessly transitions to a new segment, ensuring continuous write availability with minimal latency.
//
// Initialization and Recovery:
//
// When the storage system starts up, it performs an intelligent recovery process. It scans the
// configured directory to discover existing segments, identifies the most recent one, and determines
// whether to continue writing to it or create a new segment. This bootstrap process ensures that
// the system can recover gracefully from restarts and continue exactly where it left off.
//
// The recovery logic handles several important scenarios: empty directories where no segments exist
// yet, partially filled segments that still have capacity for more data, segments that have reached
// their size limit and require a new segment to be created, and corrupted or incomplete segments
// that need special handling.
package storage

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/internal/codec"
	"github.com/ignitedb/ignite/pkg/errors"
	"github.com/ignitedb/ignite/pkg/filesys"
	"github.com/ignitedb/ignite/pkg/options"
	"github.com/ignitedb/ignite/pkg/seginfo"
	"go.uber.org/multierr"
)

var (
	ErrSegmentClosed  = stdErrors.New("operation failed: cannot access closed segment")
	ErrSegmentMissing = stdErrors.New("operation failed: segment file not found")
)

// New creates and initializes a new Storage instance, performing all necessary setup operations
// to prepare the storage system for data writes. This function handles the complex bootstrap
// process that ensures the storage system can continue seamlessly from any previous state.
func New(ctx context.Context, config *Config) (*Storage, error) {
	// Input validation ensures we have valid configuration before proceeding.
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, fmt.Errorf("invalid configuration")
	}

	// Log the start of initialization for operational visibility.
	config.Logger.Infow(
		"Initializing storage system",
		"dataDir", config.Options.DataDir,
		"maxSegmentSize", config.Options.SegmentOptions.Size,
		"segmentDir", config.Options.SegmentOptions.Directory,
		"segmentPrefix", config.Options.SegmentOptions.Prefix,
	)

	// Construct the full directory path where segment files will be stored.
	segmentDirPath := filepath.Join(config.Options.DataDir, config.Options.SegmentOptions.Directory)

	// Create the segment directory with appropriate permissions if it doesn't exist
	// This ensures that the storage system can operate even on a fresh installation
	if err := filesys.CreateDir(segmentDirPath, 0755, true); err != nil {
		return nil, errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to create segment directory",
		).WithPath(segmentDirPath).WithDetail("permission", "0755").WithDetail("forceCreate", true)
	}

	config.Logger.Infow("Segment directory created successfully", "path", segmentDirPath)

	clk := config.Options.Clock
	if clk == nil {
		clk = clock.New()
	}

	// Initialize the Storage instance with configuration.
	storage := &Storage{
		log:            config.Logger,
		options:        config.Options,
		clock:          clk,
		readonly:       make(map[uint64]*os.File),
		pins:           make(map[uint64]int64),
		pendingRemoval: make(map[uint64]bool),
	}

	// Discover existing segments to understand the current state of the storage system
	// This is a critical step that determines whether we continue with an existing segment
	// or need to create a new one
	config.Logger.Infow(
		"Discovering existing segments",
		"dataDir", config.Options.DataDir,
		"segmentDir", config.Options.SegmentOptions.Directory,
		"prefix", config.Options.SegmentOptions.Prefix,
	)

	latestSegmentID, latestSegmentInfo, err := seginfo.GetLastSegmentInfo(
		config.Options.DataDir,
		config.Options.SegmentOptions.Directory,
		config.Options.SegmentOptions.Prefix,
	)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to get latest segment info")
	}

	// Determine the appropriate segment to use based on discovery results.
	var targetSegmentID uint64
	var shouldCreateNewSegment bool

	if latestSegmentInfo == nil {
		// Bootstrap case: no existing segments found, start with ID 1
		storage.size = 0
		targetSegmentID = 1
		shouldCreateNewSegment = true
		config.Logger.Infow("No existing segments found, starting fresh", "newSegmentID", targetSegmentID)
	} else {
		// Existing segments found, check if we need to rotate to a new segment.
		currentSize := latestSegmentInfo.Size()
		maxSize := int64(config.Options.SegmentOptions.Size)

		if currentSize >= maxSize {
			// Current segment is full, create a new one.
			storage.size = 0
			shouldCreateNewSegment = true
			targetSegmentID = latestSegmentID + 1

			config.Logger.Infow(
				"Current segment is full, creating new segment",
				"currentSegmentID", latestSegmentID,
				"currentSize", currentSize,
				"maxSize", maxSize,
				"newSegmentID", targetSegmentID,
			)
		} else {
			// Current segment has space, continue using it. Repair any torn
			// tail left by an unclean shutdown first, so a partial record
			// doesn't sit between the recovered size and the next Append.
			shouldCreateNewSegment = false
			targetSegmentID = latestSegmentID

			repairPath := filepath.Join(segmentDirPath, storage.segmentFilename(targetSegmentID))
			repairedSize, err := repairSegmentTail(repairPath)
			if err != nil {
				return nil, err
			}
			if repairedSize != currentSize {
				config.Logger.Warnw(
					"Truncated torn tail from active segment during recovery",
					"segmentID", targetSegmentID,
					"onDiskSize", currentSize,
					"repairedSize", repairedSize,
				)
			}
			storage.size = repairedSize

			config.Logger.Infow(
				"Continuing with existing segment",
				"segmentID", targetSegmentID,
				"currentSize", storage.size,
				"maxSize", maxSize,
				"remainingCapacity", maxSize-storage.size,
			)
		}
	}

	// Open the target segment file for writing.
	segmentFile, err := storage.openSegmentFile(targetSegmentID, shouldCreateNewSegment)
	if err != nil {
		config.Logger.Errorw(
			"Failed to open segment file",
			"error", err,
			"segmentID", targetSegmentID,
			"isNewSegment", shouldCreateNewSegment,
		)
		return nil, fmt.Errorf("failed to open segment file for ID %d: %w", targetSegmentID, err)
	}

	// Store the file handle and complete initialization.
	storage.activeSegment = segmentFile
	storage.activeSegmentId = targetSegmentID

	maxID := targetSegmentID
	if ids, err := storage.ListSegmentIDs(); err == nil {
		for _, id := range ids {
			if id > maxID {
				maxID = id
			}
		}
	}
	storage.nextSegmentID.Store(maxID)

	config.Logger.Infow(
		"Storage system initialized successfully",
		"activeSegmentID", targetSegmentID,
		"segmentSize", storage.size,
		"isNewSegment", shouldCreateNewSegment,
	)

	return storage, nil
}

// openSegmentFile handles the complex process of opening a segment file for writing.
// This method encapsulates all the file operations needed to prepare a segment file,
// including creation, permission setting, and positioning the file pointer correctly.
//
// The function handles both new segment creation and opening existing segments for
// continued writing, ensuring that the file is always in the correct state for
// append operations.
func (s *Storage) openSegmentFile(segmentID uint64, isNewSegment bool) (*os.File, error) {
	filename := s.segmentFilename(segmentID)
	filePath := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory, filename)

	s.log.Infow(
		"Opening segment file",
		"segmentID", segmentID,
		"filename", filename,
		"path", filePath,
		"isNewSegment", isNewSegment,
	)

	// Open the segment file with flags appropriate for append-only operations.
	// O_CREATE: Create the file if it doesn't exist
	// O_RDWR: Open for both reading and writing (reading may be needed for verification)
	// O_APPEND: Ensure all writes go to the end of the file
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.NewStorageError(
			err, errors.ErrorCodeIO, "Failed to open segment file",
		).
			WithFileName(filename).
			WithPath(filePath).
			WithDetail("permission", "0644").
			WithDetail("flags", []string{"O_CREATE", "O_RDWR", "O_APPEND"})
	}

	// Position the file pointer at the end of the file.
	// This is essential even with O_APPEND to ensure we know the current position.
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		// Attempt to close the file to prevent resource leaks.
		if closeErr := file.Close(); closeErr != nil {
			return nil, errors.NewStorageError(closeErr, errors.ErrorCodeIO, "Failed to close file after seek error").
				WithFileName(filename).
				WithPath(filePath).
				WithDetail("seekOffset", 0).
				WithDetail("whence", io.SeekEnd)
		}

		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to seek to end of file").
			WithFileName(filename).
			WithPath(filePath).
			WithDetail("seekOffset", 0).
			WithDetail("whence", io.SeekEnd)
	}

	s.log.Infow(
		"Segment file opened successfully",
		"path", filePath,
		"currentOffset", offset,
		"isNewSegment", isNewSegment,
	)

	return file, nil
}

// repairSegmentTail scans a segment file record-by-record and truncates it
// back to the offset of the last fully-decodable record if it finds a torn
// or corrupt tail, which happens when the process stops mid-write. Without
// this, the stale partial bytes would sit between the recovered size and the
// next Append, and a later reopen would lose every record appended after
// them, since replay always stops at the same torn boundary.
func repairSegmentTail(path string) (int64, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to open segment for tail repair").
			WithPath(path)
	}
	defer file.Close()

	var offset int64
	for {
		decoded, err := codec.DecodeNext(file)
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			if truncErr := file.Truncate(offset); truncErr != nil {
				return 0, errors.NewStorageError(truncErr, errors.ErrorCodeIO, "Failed to truncate torn segment tail").
					WithPath(path).
					WithOffset(int(offset))
			}
			return offset, nil
		}
		offset += decoded.Size
	}
}

// segmentFilename resolves an existing segment's filename on disk, since the
// timestamp component of the name is generated once at creation time and
// cannot be recomputed. We search rather than remember the name explicitly
// so that recovery (which only knows IDs, not names) can find any segment.
func (s *Storage) segmentFilename(segmentID uint64) string {
	dirPath := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory)
	pattern := filepath.Join(dirPath, fmt.Sprintf("%s_%05d_*.seg", s.options.SegmentOptions.Prefix, segmentID))

	matches, err := filesys.ReadDir(pattern)
	if err == nil && len(matches) > 0 {
		_, name := filepath.Split(matches[0])
		return name
	}

	// No existing file for this ID: mint a fresh name.
	return seginfo.GenerateName(s.clock, segmentID, s.options.SegmentOptions.Prefix)
}

// Append writes data to the active segment, rotating to a new segment first
// if the write would exceed the configured maximum segment size. It returns
// the location the caller should remember in the index to retrieve this
// record later.
func (s *Storage) Append(data []byte) (SegmentRecordLocation, error) {
	if s.closed.Load() {
		return SegmentRecordLocation{}, ErrSegmentClosed
	}

	maxSize := int64(s.options.SegmentOptions.Size)
	if s.size+int64(len(data)) > maxSize && s.size > 0 {
		if err := s.rotate(); err != nil {
			return SegmentRecordLocation{}, err
		}
	}

	offset := s.size
	n, err := s.activeSegment.Write(data)
	if err != nil {
		return SegmentRecordLocation{}, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to append record").
			WithSegmentID(int(s.activeSegmentId)).
			WithOffset(int(offset))
	}
	s.size += int64(n)

	return SegmentRecordLocation{
		SegmentID: s.activeSegmentId,
		Offset:    offset,
		Size:      int64(n),
	}, nil
}

// Sync flushes the active segment's in-kernel buffers to stable storage.
func (s *Storage) Sync() error {
	if s.closed.Load() {
		return ErrSegmentClosed
	}
	return s.activeSegment.Sync()
}

// rotate closes out the current active segment and opens a fresh one with
// the next sequential ID. The caller must already hold whatever external
// lock serializes writers (the engine's write mutex).
func (s *Storage) rotate() error {
	if err := s.activeSegment.Sync(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to sync segment before rotation").
			WithSegmentID(int(s.activeSegmentId))
	}
	if err := s.activeSegment.Close(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to close segment before rotation").
			WithSegmentID(int(s.activeSegmentId))
	}

	nextID := s.nextSegmentID.Add(1)
	file, err := s.openSegmentFile(nextID, true)
	if err != nil {
		return err
	}

	s.log.Infow("Rotated to new segment", "previousSegmentID", s.activeSegmentId, "newSegmentID", nextID)

	s.activeSegment = file
	s.activeSegmentId = nextID
	s.size = 0
	return nil
}

// ReadAt reads the raw encoded record bytes at the given location, from
// either the active segment or a sealed one. Sealed segment handles are
// opened lazily and cached for subsequent reads.
func (s *Storage) ReadAt(loc SegmentRecordLocation) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSegmentClosed
	}

	buf := make([]byte, loc.Size)

	if loc.SegmentID == s.activeSegmentId {
		if _, err := s.activeSegment.ReadAt(buf, loc.Offset); err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to read record from active segment").
				WithSegmentID(int(loc.SegmentID)).
				WithOffset(int(loc.Offset))
		}
		return buf, nil
	}

	file, err := s.readHandle(loc.SegmentID)
	if err != nil {
		return nil, err
	}
	if _, err := file.ReadAt(buf, loc.Offset); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to read record from sealed segment").
			WithSegmentID(int(loc.SegmentID)).
			WithOffset(int(loc.Offset))
	}
	return buf, nil
}

// readHandle returns a cached read-only file handle for a sealed segment,
// opening and caching it on first use.
func (s *Storage) readHandle(segmentID uint64) (*os.File, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if f, ok := s.readonly[segmentID]; ok {
		return f, nil
	}

	filename := s.segmentFilename(segmentID)
	path := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory, filename)

	file, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to open sealed segment for reading").
			WithSegmentID(int(segmentID)).
			WithPath(path)
	}

	s.readonly[segmentID] = file
	return file, nil
}

// ListSegmentIDs returns every segment ID present in the segment directory,
// sorted ascending. Used during recovery to replay the log in write order
// and by the compactor to decide which segments are eligible for merging.
func (s *Storage) ListSegmentIDs() ([]uint64, error) {
	dirPath := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory)
	pattern := filepath.Join(dirPath, s.options.SegmentOptions.Prefix+"*.seg")

	matches, err := filesys.ReadDir(pattern)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to list segment files").WithPath(dirPath)
	}

	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		id, err := seginfo.ParseSegmentID(m, s.options.SegmentOptions.Prefix)
		if err != nil {
			s.log.Warnw("Skipping unparsable segment filename", "file", m, "error", err)
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}

// Iterate opens segmentID for sequential scanning and invokes fn for every
// record it contains, in on-disk order, passing each record's location
// alongside its decoded contents. Iteration stops at the first corrupt or
// truncated record; for every segment except the active one that condition
// is itself treated as an error, since sealed segments should never contain
// a torn tail.
func (s *Storage) Iterate(segmentID uint64, fn func(loc SegmentRecordLocation, rec *codec.Record) error) error {
	var file *os.File
	var err error

	if segmentID == s.activeSegmentId {
		path := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory, s.segmentFilename(segmentID))
		file, err = os.OpenFile(path, os.O_RDONLY, 0644)
	} else {
		file, err = s.readHandle(segmentID)
	}
	if err != nil {
		return err
	}
	if segmentID == s.activeSegmentId {
		defer file.Close()
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to seek to start of segment").
			WithSegmentID(int(segmentID))
	}

	var offset int64
	for {
		decoded, err := codec.DecodeNext(file)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if segmentID == s.activeSegmentId {
				// A torn tail on the active segment is expected after an
				// unclean shutdown; stop replay here rather than failing.
				s.log.Warnw("Stopping segment replay at torn tail", "segmentID", segmentID, "offset", offset)
				return nil
			}
			return errors.NewStorageError(err, errors.ErrorCodeSegmentCorrupted, "Corrupt record in sealed segment").
				WithSegmentID(int(segmentID)).
				WithOffset(int(offset))
		}

		loc := SegmentRecordLocation{SegmentID: segmentID, Offset: offset, Size: decoded.Size}
		if err := fn(loc, decoded.Record); err != nil {
			return err
		}
		offset += decoded.Size
	}
}

// RemoveSegment deletes a sealed segment file from disk and evicts its
// cached read handle. The compactor calls this once it has confirmed a
// segment's live data has been fully migrated into a merged segment.
//
// Deletion is deferred while the segment is pinned (PinSegment): a reader
// may have looked up an index pointer into this segment before the
// compactor's ReplaceIfEqual moved the key elsewhere, and is still reading
// it via ReadAt. UnpinSegment performs the deletion once the last such
// reader releases its pin.
func (s *Storage) RemoveSegment(segmentID uint64) error {
	if segmentID == s.activeSegmentId {
		return fmt.Errorf("cannot remove the active segment %d", segmentID)
	}

	s.pinMu.Lock()
	if s.pins[segmentID] > 0 {
		s.pendingRemoval[segmentID] = true
		s.pinMu.Unlock()
		s.log.Infow("Deferring segment removal until in-flight readers drain", "segmentID", segmentID)
		return nil
	}
	s.pinMu.Unlock()

	return s.removeSegmentFile(segmentID)
}

// PinSegment records one in-flight reader against segmentID, preventing
// RemoveSegment from deleting its file until a matching UnpinSegment call.
// Callers must pin a segment ID while still holding whatever lock produced
// it from the index, so the pin is in place before a concurrent compaction
// pass can observe the key as migrated and the segment as removable.
func (s *Storage) PinSegment(segmentID uint64) {
	s.pinMu.Lock()
	s.pins[segmentID]++
	s.pinMu.Unlock()
}

// UnpinSegment releases a pin acquired by PinSegment. If this was the last
// outstanding pin on a segment whose removal was deferred, it performs the
// deferred deletion.
func (s *Storage) UnpinSegment(segmentID uint64) {
	s.pinMu.Lock()
	s.pins[segmentID]--
	if s.pins[segmentID] > 0 {
		s.pinMu.Unlock()
		return
	}
	delete(s.pins, segmentID)
	pending := s.pendingRemoval[segmentID]
	delete(s.pendingRemoval, segmentID)
	s.pinMu.Unlock()

	if pending {
		if err := s.removeSegmentFile(segmentID); err != nil {
			s.log.Warnw("Deferred segment removal failed", "segmentID", segmentID, "error", err)
		}
	}
}

// removeSegmentFile performs the actual, unconditional file deletion behind
// RemoveSegment and UnpinSegment's deferred path.
func (s *Storage) removeSegmentFile(segmentID uint64) error {
	s.readMu.Lock()
	if f, ok := s.readonly[segmentID]; ok {
		f.Close()
		delete(s.readonly, segmentID)
	}
	s.readMu.Unlock()

	filename := s.segmentFilename(segmentID)
	path := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory, filename)

	if err := os.Remove(path); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to remove merged segment").
			WithSegmentID(int(segmentID)).
			WithPath(path)
	}
	return nil
}

// AllocateSegmentID hands out the next segment ID from the shared sequence
// used by both write-path rotation and compaction merge output, so the two
// never collide on a filename.
func (s *Storage) AllocateSegmentID() uint64 {
	return s.nextSegmentID.Add(1)
}

// MergeSegmentWriter is a freshly created segment file dedicated to
// compaction output. It is intentionally separate from the active write
// segment so the compactor never contends with live writers for the same
// file offset.
type MergeSegmentWriter struct {
	id   uint64
	path string
	file *os.File
	size int64
}

// ID returns the segment ID this writer is populating.
func (w *MergeSegmentWriter) ID() uint64 { return w.id }

// Size returns the number of bytes written to this merge segment so far.
func (w *MergeSegmentWriter) Size() int64 { return w.size }

// Append writes one pre-encoded record to the merge segment and returns
// where it landed.
func (w *MergeSegmentWriter) Append(data []byte) (SegmentRecordLocation, error) {
	offset := w.size
	n, err := w.file.Write(data)
	if err != nil {
		return SegmentRecordLocation{}, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to append to merge segment").
			WithSegmentID(int(w.id)).
			WithOffset(int(offset))
	}
	w.size += int64(n)
	return SegmentRecordLocation{SegmentID: w.id, Offset: offset, Size: int64(n)}, nil
}

// Finalize syncs and closes the merge segment, making it durable on disk.
func (w *MergeSegmentWriter) Finalize() error {
	if err := w.file.Sync(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to sync merge segment").WithSegmentID(int(w.id))
	}
	return w.file.Close()
}

// Abort closes and removes a merge segment that will not be published,
// e.g. because the compactor was interrupted partway through a merge.
func (w *MergeSegmentWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.path)
}

// NewMergeSegment allocates a fresh segment ID and opens its backing file
// for compaction output.
func (s *Storage) NewMergeSegment() (*MergeSegmentWriter, error) {
	id := s.AllocateSegmentID()
	filename := seginfo.GenerateName(s.clock, id, s.options.SegmentOptions.Prefix)
	path := filepath.Join(s.options.DataDir, s.options.SegmentOptions.Directory, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "Failed to create merge segment").
			WithSegmentID(int(id)).
			WithPath(path)
	}

	return &MergeSegmentWriter{id: id, path: path, file: file}, nil
}

// ActiveSegmentID returns the ID of the segment currently receiving writes.
func (s *Storage) ActiveSegmentID() uint64 {
	return s.activeSegmentId
}

// ActiveSegmentSize returns the current size in bytes of the active segment.
func (s *Storage) ActiveSegmentSize() int64 {
	return s.size
}

// Close flushes and closes the active segment along with every cached
// read-only segment handle.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSegmentClosed
	}

	s.log.Infow("Closing storage system", "activeSegmentID", s.activeSegmentId)

	// Every handle gets a chance to close even if an earlier one failed;
	// multierr accumulates them into a single combined error.
	var combined error
	combined = multierr.Append(combined, s.activeSegment.Sync())
	combined = multierr.Append(combined, s.activeSegment.Close())

	s.readMu.Lock()
	for id, f := range s.readonly {
		combined = multierr.Append(combined, f.Close())
		delete(s.readonly, id)
	}
	s.readMu.Unlock()

	if combined != nil {
		return errors.NewStorageError(combined, errors.ErrorCodeIO, "Failed to close storage system cleanly")
	}

	s.log.Infow("Storage system closed successfully")
	return nil
}

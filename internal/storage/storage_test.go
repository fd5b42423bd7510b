package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/internal/codec"
	"github.com/ignitedb/ignite/pkg/options"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T, segSize uint64) (*Storage, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	opts := options.NewDefaultOptions()
	options.WithDataDir(t.TempDir())(&opts)
	options.WithClock(mock)(&opts)
	if segSize > 0 {
		options.WithSegmentSize(segSize)(&opts)
	}

	s, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mock
}

func TestAppendAndReadAt(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	rec := codec.EncodePut([]byte("k"), []byte("v"), 1, 0)
	loc, err := s.Append(rec)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if loc.SegmentID != s.ActiveSegmentID() {
		t.Fatalf("expected the record to land in the active segment")
	}

	got, err := s.ReadAt(loc)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(rec) {
		t.Fatalf("read bytes did not match what was written")
	}
}

func TestAppendRotatesOnOverflow(t *testing.T) {
	s, _ := newTestStorage(t, options.MinSegmentSize+1)

	first := codec.EncodePut([]byte("a"), []byte("x"), 1, 0)
	if _, err := s.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	firstSegment := s.ActiveSegmentID()

	// A record that would overflow the tiny segment size forces a rotation.
	big := make([]byte, options.MinSegmentSize)
	second := codec.EncodePut([]byte("b"), big, 2, 0)
	loc, err := s.Append(second)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if loc.SegmentID == firstSegment {
		t.Fatalf("expected rotation to a new segment, stayed on %d", firstSegment)
	}
	if s.ActiveSegmentID() != firstSegment+1 {
		t.Fatalf("expected the new segment ID to be sequential, got %d", s.ActiveSegmentID())
	}
}

func TestIterateReplaysRecordsInOrder(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	want := []string{"a", "b", "c"}
	for i, k := range want {
		rec := codec.EncodePut([]byte(k), []byte("v"), int64(i), 0)
		if _, err := s.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var got []string
	err := s.Iterate(s.ActiveSegmentID(), func(loc SegmentRecordLocation, rec *codec.Record) error {
		got = append(got, string(rec.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected key %q at position %d, got %q", want[i], i, got[i])
		}
	}
}

func TestListSegmentIDsAndRemoveSegment(t *testing.T) {
	s, _ := newTestStorage(t, options.MinSegmentSize+1)

	if _, err := s.Append(codec.EncodePut([]byte("a"), []byte("x"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	firstSegment := s.ActiveSegmentID()

	big := make([]byte, options.MinSegmentSize)
	if _, err := s.Append(codec.EncodePut([]byte("b"), big, 2, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ids, err := s.ListSegmentIDs()
	if err != nil {
		t.Fatalf("ListSegmentIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 segments, got %d (%v)", len(ids), ids)
	}

	if err := s.RemoveSegment(firstSegment); err != nil {
		t.Fatalf("RemoveSegment: %v", err)
	}

	ids, err = s.ListSegmentIDs()
	if err != nil {
		t.Fatalf("ListSegmentIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 segment after removal, got %d", len(ids))
	}
}

func TestRemoveSegmentRefusesActiveSegment(t *testing.T) {
	s, _ := newTestStorage(t, 0)
	if err := s.RemoveSegment(s.ActiveSegmentID()); err == nil {
		t.Fatal("expected an error removing the active segment")
	}
}

func TestNewMergeSegmentUsesDistinctID(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	if _, err := s.Append(codec.EncodePut([]byte("a"), []byte("v"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mw, err := s.NewMergeSegment()
	if err != nil {
		t.Fatalf("NewMergeSegment: %v", err)
	}
	if mw.ID() == s.ActiveSegmentID() {
		t.Fatalf("expected merge segment to have a distinct ID from the active segment")
	}

	if _, err := mw.Append(codec.EncodePut([]byte("a"), []byte("v"), 1, 0)); err != nil {
		t.Fatalf("merge segment Append: %v", err)
	}
	if err := mw.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if err := s.RemoveSegment(mw.ID()); err != nil {
		t.Fatalf("RemoveSegment on finalized merge segment: %v", err)
	}
}

func TestMergeSegmentAbortRemovesFile(t *testing.T) {
	s, _ := newTestStorage(t, 0)

	mw, err := s.NewMergeSegment()
	if err != nil {
		t.Fatalf("NewMergeSegment: %v", err)
	}
	if err := mw.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
}

func TestRecoveryContinuesExistingSegment(t *testing.T) {
	mock := clock.NewMock()
	dir := t.TempDir()

	opts := options.NewDefaultOptions()
	options.WithDataDir(dir)(&opts)
	options.WithClock(mock)(&opts)

	s1, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s1.Append(codec.EncodePut([]byte("a"), []byte("v"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	segID := s1.ActiveSegmentID()
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer s2.Close()

	if s2.ActiveSegmentID() != segID {
		t.Fatalf("expected recovery to continue segment %d, got %d", segID, s2.ActiveSegmentID())
	}
	if s2.ActiveSegmentSize() == 0 {
		t.Fatal("expected recovered segment to report its existing size")
	}
}

func TestRemoveSegmentDefersUntilUnpinned(t *testing.T) {
	s, _ := newTestStorage(t, options.MinSegmentSize+1)

	if _, err := s.Append(codec.EncodePut([]byte("a"), []byte("x"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	firstSegment := s.ActiveSegmentID()

	big := make([]byte, options.MinSegmentSize)
	if _, err := s.Append(codec.EncodePut([]byte("b"), big, 2, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Model a Get that looked up a pointer into firstSegment just before a
	// compaction pass decides to remove it.
	s.PinSegment(firstSegment)

	if err := s.RemoveSegment(firstSegment); err != nil {
		t.Fatalf("RemoveSegment: %v", err)
	}

	ids, err := s.ListSegmentIDs()
	if err != nil {
		t.Fatalf("ListSegmentIDs: %v", err)
	}
	if !containsSegment(ids, firstSegment) {
		t.Fatal("expected the pinned segment to survive RemoveSegment while pinned")
	}

	s.UnpinSegment(firstSegment)

	ids, err = s.ListSegmentIDs()
	if err != nil {
		t.Fatalf("ListSegmentIDs: %v", err)
	}
	if containsSegment(ids, firstSegment) {
		t.Fatal("expected the segment to be removed once the last pin was released")
	}
}

func TestUnpinSegmentWithoutDeferredRemovalIsNoop(t *testing.T) {
	s, _ := newTestStorage(t, options.MinSegmentSize+1)

	if _, err := s.Append(codec.EncodePut([]byte("a"), []byte("x"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	firstSegment := s.ActiveSegmentID()

	s.PinSegment(firstSegment)
	s.UnpinSegment(firstSegment)

	ids, err := s.ListSegmentIDs()
	if err != nil {
		t.Fatalf("ListSegmentIDs: %v", err)
	}
	if !containsSegment(ids, firstSegment) {
		t.Fatal("expected a pin/unpin cycle with no pending removal to leave the segment alone")
	}
}

func containsSegment(ids []uint64, target uint64) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func TestRecoveryTruncatesTornTail(t *testing.T) {
	mock := clock.NewMock()
	dir := t.TempDir()

	opts := options.NewDefaultOptions()
	options.WithDataDir(dir)(&opts)
	options.WithClock(mock)(&opts)

	s1, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s1.Append(codec.EncodePut([]byte("a"), []byte("v"), 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	goodSize := s1.ActiveSegmentSize()
	segID := s1.ActiveSegmentID()
	segPath := filepath.Join(dir, opts.SegmentOptions.Directory, s1.segmentFilename(segID))
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a process that died mid-write: append trailing bytes that
	// look like the start of a record but were never completed.
	f, err := os.OpenFile(segPath, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open segment to corrupt it: %v", err)
	}
	if _, err := f.Write([]byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close corrupted segment: %v", err)
	}

	s2, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}

	if s2.ActiveSegmentID() != segID {
		t.Fatalf("expected recovery to continue segment %d, got %d", segID, s2.ActiveSegmentID())
	}
	if s2.ActiveSegmentSize() != goodSize {
		t.Fatalf("expected the torn tail to be truncated back to %d bytes, got %d", goodSize, s2.ActiveSegmentSize())
	}

	fi, err := os.Stat(segPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != goodSize {
		t.Fatalf("expected the on-disk file to shrink to %d bytes, got %d", goodSize, fi.Size())
	}

	// Append past the repaired offset and make sure a further reopen still
	// sees it: if the previous Append had landed inside the stale tail
	// instead of at goodSize, this record would be lost on this reopen.
	if _, err := s2.Append(codec.EncodePut([]byte("b"), []byte("w"), 2, 0)); err != nil {
		t.Fatalf("Append after repair: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s3, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New (second reopen): %v", err)
	}
	defer s3.Close()

	var keys []string
	err = s3.Iterate(s3.ActiveSegmentID(), func(loc SegmentRecordLocation, rec *codec.Record) error {
		keys = append(keys, string(rec.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected both records to survive across reopens, got %v", keys)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	s, _ := newTestStorage(t, 0)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.Append([]byte("x")); err != ErrSegmentClosed {
		t.Fatalf("expected ErrSegmentClosed, got %v", err)
	}
	if err := s.Close(); err != ErrSegmentClosed {
		t.Fatalf("expected double Close to report ErrSegmentClosed, got %v", err)
	}
}

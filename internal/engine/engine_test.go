package engine

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ignitedb/ignite/pkg/options"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, configure func(*options.Options)) (*Engine, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	opts := options.NewDefaultOptions()
	options.WithDataDir(t.TempDir())(&opts)
	options.WithClock(mock)(&opts)
	// A long compact interval keeps the background compactor from
	// interfering with tests that manage segment state by hand.
	options.WithCompactInterval(opts.CompactInterval * 2)(&opts)
	if configure != nil {
		configure(&opts)
	}

	e, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, mock
}

func TestSetGetRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := e.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected value %q, got %q", "v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if _, err := e.Get(context.Background(), "missing"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetOverwritesPreviousValue(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Set(ctx, "k", []byte("v1"))
	e.Set(ctx, "k", []byte("v2"))

	got, err := e.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected the latest value %q, got %q", "v2", got)
	}
}

func TestRmRemovesKey(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Set(ctx, "k", []byte("v"))
	if err := e.Rm(ctx, "k"); err != nil {
		t.Fatalf("Rm: %v", err)
	}

	if _, err := e.Get(ctx, "k"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound after Rm, got %v", err)
	}
}

func TestRmMissingKey(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if err := e.Rm(context.Background(), "missing"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestExistsAndLen(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if e.Exists("k") {
		t.Fatal("expected Exists to be false before the key is set")
	}
	if e.Len() != 0 {
		t.Fatalf("expected Len 0, got %d", e.Len())
	}

	e.Set(ctx, "k", []byte("v"))
	if !e.Exists("k") {
		t.Fatal("expected Exists to be true after Set")
	}
	if e.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", e.Len())
	}

	e.Rm(ctx, "k")
	if e.Exists("k") {
		t.Fatal("expected Exists to be false after Rm")
	}
}

func TestSetXExpiresAfterTTL(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.SetX(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("SetX: %v", err)
	}

	got, err := e.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected value %q before expiry, got %q", "v", got)
	}

	mock.Add(2 * time.Minute)

	if _, err := e.Get(ctx, "k"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound after expiry, got %v", err)
	}
	if e.Exists("k") {
		t.Fatal("expected Exists to be false after expiry")
	}
}

func TestSetXZeroTTLNeverExpires(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.SetX(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("SetX: %v", err)
	}
	mock.Add(24 * time.Hour)

	if _, err := e.Get(ctx, "k"); err != nil {
		t.Fatalf("expected a zero-TTL entry to never expire, got %v", err)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := e.Set(ctx, "k", []byte("v")); err != ErrEngineClosed {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if _, err := e.Get(ctx, "k"); err != ErrEngineClosed {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if err := e.Close(); err != ErrEngineClosed {
		t.Fatalf("expected double Close to report ErrEngineClosed, got %v", err)
	}
}

func TestRecoveryReplaysSegmentsAfterRestart(t *testing.T) {
	dir := t.TempDir()
	mock := clock.NewMock()

	opts := options.NewDefaultOptions()
	options.WithDataDir(dir)(&opts)
	options.WithClock(mock)(&opts)

	ctx := context.Background()
	log := zap.NewNop().Sugar()

	e1, err := New(ctx, &Config{Options: &opts, Logger: log})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e1.Set(ctx, "a", []byte("1"))
	e1.Set(ctx, "b", []byte("2"))
	e1.Rm(ctx, "a")
	if err := e1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := New(ctx, &Config{Options: &opts, Logger: log})
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer e2.Close()

	if _, err := e2.Get(ctx, "a"); err != ErrKeyNotFound {
		t.Fatalf("expected removed key to stay removed across restart, got %v", err)
	}
	got, err := e2.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if string(got) != "2" {
		t.Fatalf("expected recovered value %q, got %q", "2", got)
	}
}

func TestValueTooLargeForSegment(t *testing.T) {
	e, _ := newTestEngine(t, func(o *options.Options) {
		options.WithSegmentSize(options.MinSegmentSize)(o)
	})

	huge := make([]byte, options.MinSegmentSize)
	if err := e.Set(context.Background(), "k", huge); err != ErrValueTooLarge {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestGetSurvivesConcurrentCompaction(t *testing.T) {
	e, _ := newTestEngine(t, func(o *options.Options) {
		options.WithSegmentSize(options.MinSegmentSize + 1)(o)
		options.WithCompactionDeadByteRatio(0.1)(o)
	})
	ctx := context.Background()

	// "a" stays live in the segment that is about to be merged; "junk" is
	// overwritten afterward purely to push the segment's dead-byte ratio
	// over the compaction threshold.
	if err := e.Set(ctx, "a", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set(ctx, "junk", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Small enough to fit in one segment, large enough to overflow the first.
	big := make([]byte, options.MinSegmentSize-64)
	if err := e.Set(ctx, "b", big); err != nil { // forces rotation, sealing the segment above
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set(ctx, "junk", []byte("y")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			got, err := e.Get(ctx, "a")
			if err != nil {
				t.Errorf("Get during compaction: %v", err)
				return
			}
			if string(got) != "v1" {
				t.Errorf("expected %q to stay %q across compaction, got %q", "a", "v1", got)
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		if err := e.compaction.RunOnce(); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	<-done

	got, err := e.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get after compaction: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected %q to survive compaction, got %q", "v1", got)
	}
}

func TestConcurrentReadsDuringWrite(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	e.Set(ctx, "k", []byte("v0"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			e.Get(ctx, "k")
		}
	}()

	for i := 0; i < 100; i++ {
		e.Set(ctx, "k", []byte("v"))
	}
	<-done
}

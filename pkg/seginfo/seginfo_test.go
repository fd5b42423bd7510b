package seginfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestGenerateNameAndParseSegmentID(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(0, 1700000000000000000))

	name := GenerateName(mock, 7, "segment")
	want := "segment_00007_1700000000000000000.seg"
	if name != want {
		t.Fatalf("expected %q, got %q", want, name)
	}

	id, err := ParseSegmentID(name, "segment")
	if err != nil {
		t.Fatalf("ParseSegmentID: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
}

func TestGenerateNameEmptyPrefix(t *testing.T) {
	mock := clock.NewMock()
	name := GenerateName(mock, 1, "")
	if filepath.Ext(name) != ".seg" {
		t.Fatalf("expected a .seg file even for an invalid prefix, got %q", name)
	}
}

func TestGenerateNameNilClockFallsBackToRealClock(t *testing.T) {
	name := GenerateName(nil, 1, "segment")
	if _, err := ParseSegmentID(name, "segment"); err != nil {
		t.Fatalf("expected a parsable name even with a nil clock, got error: %v", err)
	}
}

func TestParseSegmentIDRejectsWrongPrefix(t *testing.T) {
	if _, err := ParseSegmentID("other_00001_123.seg", "segment"); err == nil {
		t.Fatal("expected an error for a mismatched prefix")
	}
}

func TestParseSegmentIDRejectsMalformedName(t *testing.T) {
	if _, err := ParseSegmentID("segment_notanumber_123.seg", "segment"); err == nil {
		t.Fatal("expected an error for a non-numeric segment ID")
	}
	if _, err := ParseSegmentID("segment.seg", "segment"); err == nil {
		t.Fatal("expected an error for a name missing the ID/timestamp parts")
	}
}

func TestGetLastSegmentInfoEmptyDir(t *testing.T) {
	dir := t.TempDir()

	id, info, err := GetLastSegmentInfo(dir, "", "segment")
	if err == nil {
		t.Fatal("expected an error for an empty segmentDir argument")
	}
	_ = id
	_ = info
}

func TestGetLastSegmentInfoBootstrap(t *testing.T) {
	dir := t.TempDir()
	segDir := "segments"
	if err := os.MkdirAll(filepath.Join(dir, segDir), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	id, info, err := GetLastSegmentInfo(dir, segDir, "segment")
	if err != nil {
		t.Fatalf("GetLastSegmentInfo: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil file info for an empty directory, got %+v", info)
	}
	if id != 1 {
		t.Fatalf("expected bootstrap ID 1, got %d", id)
	}
}

func TestGetLastSegmentInfoPicksHighestID(t *testing.T) {
	dir := t.TempDir()
	segDir := "segments"
	fullDir := filepath.Join(dir, segDir)
	if err := os.MkdirAll(fullDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	names := []string{
		"segment_00001_1000.seg",
		"segment_00003_3000.seg",
		"segment_00002_2000.seg",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(fullDir, n), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	id, info, err := GetLastSegmentInfo(dir, segDir, "segment")
	if err != nil {
		t.Fatalf("GetLastSegmentInfo: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected the highest segment ID 3, got %d", id)
	}
	if info == nil {
		t.Fatal("expected file info for the highest segment")
	}
}

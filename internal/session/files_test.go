package session

import (
	"errors"
	"testing"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

func testEntry(fid, path string) Entry {
	return Entry{
		FileEntry:   protocol.FileEntry{FID: fid, Filename: "f.bin", SizeBytes: 10},
		PathInSpool: path,
	}
}

func TestIndexReserveBlocksReuse(t *testing.T) {
	x := NewIndex()
	if err := x.Reserve("abc"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := x.Reserve("abc"); !errors.Is(err, ErrFIDTaken) {
		t.Errorf("second reserve: got %v, want ErrFIDTaken", err)
	}

	x.Release("abc")
	if err := x.Reserve("abc"); err != nil {
		t.Errorf("reserve after release: %v", err)
	}
}

func TestIndexRegisterConsumesReservation(t *testing.T) {
	x := NewIndex()
	if err := x.Reserve("abc"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := x.Register(testEntry("abc", "/spool/abc_f.bin")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := x.Get("abc"); !ok {
		t.Error("registered entry not found")
	}
	if !x.HasPath("/spool/abc_f.bin") {
		t.Error("path not indexed")
	}
	if err := x.Register(testEntry("abc", "/other")); !errors.Is(err, ErrFIDTaken) {
		t.Errorf("duplicate register: got %v, want ErrFIDTaken", err)
	}
}

func TestIndexRemove(t *testing.T) {
	x := NewIndex()
	if err := x.Register(testEntry("abc", "/spool/f")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !x.Remove("abc") {
		t.Fatal("remove failed")
	}
	if x.Remove("abc") {
		t.Error("second remove should report false")
	}
	if x.HasPath("/spool/f") {
		t.Error("path survives removal")
	}
}

func TestIndexSnapshotExcludesPending(t *testing.T) {
	x := NewIndex()
	if err := x.Reserve("pending"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := x.Register(testEntry("done", "/spool/done")); err != nil {
		t.Fatalf("register: %v", err)
	}

	snap := x.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot size: got %d, want 1", len(snap))
	}
	if _, ok := snap["done"]; !ok {
		t.Error("completed entry missing from snapshot")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"report.pdf", "report.pdf", true},
		{"  spaced.txt  ", "spaced.txt", true},
		{"", "", false},
		{"../etc/passwd", "", false},
		{"a/b.txt", "", false},
		{`a\b.txt`, "", false},
		{".hidden", "", false},
		{"..", "", false},
		{"name..txt", "", false},
	}
	for _, tc := range cases {
		got, err := SanitizeFilename(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("SanitizeFilename(%q): got %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("SanitizeFilename(%q): expected error", tc.in)
		}
	}
}

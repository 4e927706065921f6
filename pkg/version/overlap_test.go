package version

import (
	"errors"
	"testing"

	"lsmview/pkg/manifest"
	"lsmview/pkg/types"
)

const (
	fileA types.FileID = iota + 1
	fileB
	fileC
	fileD
	fileE
)

// overlapFixture: L1 holds A[10-20], B[21-30]; L2 holds C[05-15], D[16-25],
// E[26-40].
func overlapFixture(t *testing.T) *Version {
	t.Helper()
	data := &manifest.Data{
		Files: manifest.Table{
			fileA: file(100, "10", "20", 1, 1),
			fileB: file(200, "21", "30", 2, 2),
			fileC: file(300, "05", "15", 3, 3),
			fileD: file(400, "16", "25", 4, 4),
			fileE: file(500, "26", "40", 5, 5),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "ingested", Added: edits{2: {fileE, fileC, fileD}}},
			{Reason: "ingested", Added: edits{1: {fileB, fileA}}},
		},
	}
	v := mustNew(t, data)
	v.SetCursor(1)
	return v
}

func TestFindOverlaps_NextLevel(t *testing.T) {
	v := overlapFixture(t)

	o, err := v.FindOverlaps(1, fileA)
	if err != nil {
		t.Fatalf("FindOverlaps failed: %v", err)
	}
	if o.Index != 0 || o.File.ID != fileA {
		t.Fatalf("unexpected selection: index=%d file=%s", o.Index, o.File.ID)
	}
	if len(o.Runs) != 1 {
		t.Fatalf("expected a single run, got %+v", o.Runs)
	}

	run, ok := o.NextLevel()
	if !ok {
		t.Fatal("expected a run in L2")
	}
	want := Run{Level: 2, Start: 0, End: 2, Count: 2, Size: 700}
	if run != want {
		t.Fatalf("got run %+v, want %+v", run, want)
	}

	files := v.Files(2)
	if files[run.Start].ID != fileC || files[run.End-1].ID != fileD {
		t.Fatalf("run covers %s..%s, want C..D", files[run.Start].ID, files[run.End-1].ID)
	}
}

func TestFindOverlaps_UpperLevel(t *testing.T) {
	v := overlapFixture(t)

	o, err := v.FindOverlaps(2, fileD)
	if err != nil {
		t.Fatalf("FindOverlaps failed: %v", err)
	}
	if o.Index != 1 {
		t.Fatalf("expected D at index 1, got %d", o.Index)
	}

	run, ok := o.Runs[1]
	if !ok {
		t.Fatal("expected a run in L1")
	}
	// Count and Size are only reported for the level below.
	want := Run{Level: 1, Start: 0, End: 2}
	if run != want {
		t.Fatalf("got run %+v, want %+v", run, want)
	}
	if _, ok := o.NextLevel(); ok {
		t.Fatal("expected no run in L3")
	}
}

func TestFindOverlaps_Boundaries(t *testing.T) {
	data := &manifest.Data{
		Files: manifest.Table{
			1: file(10, "10", "20", 1, 1),
			2: file(10, "30", "40", 2, 2),
			3: file(10, "22", "25", 3, 3),
			4: file(10, "50", "60", 4, 4),
			5: file(10, "20", "29", 5, 5),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "ingested", Added: edits{1: {1, 2}, 2: {3}}},
			{Reason: "ingested", Added: edits{3: {5}, 4: {4}}},
		},
	}
	v := mustNew(t, data)
	v.SetCursor(1)

	t.Run("gap between files", func(t *testing.T) {
		o, err := v.FindOverlaps(2, 3)
		if err != nil {
			t.Fatalf("FindOverlaps failed: %v", err)
		}
		run, ok := o.Runs[1]
		if !ok {
			t.Fatal("expected a boundary run in L1")
		}
		if run.Start != 1 || run.Width() != 0 {
			t.Fatalf("expected zero-width run at 1, got %+v", run)
		}
	})

	t.Run("largest key excluded", func(t *testing.T) {
		// File 5 starts exactly at file 1's largest key.
		o, err := v.FindOverlaps(1, 1)
		if err != nil {
			t.Fatalf("FindOverlaps failed: %v", err)
		}
		run, ok := o.Runs[3]
		if !ok {
			t.Fatal("expected a boundary run in L3")
		}
		if run.Width() != 0 {
			t.Fatalf("expected zero-width run, got %+v", run)
		}
		next, ok := o.NextLevel()
		if !ok || next.Count != 0 || next.Size != 0 {
			t.Fatalf("expected empty next-level run, got %+v (ok=%v)", next, ok)
		}
	})

	t.Run("nothing reaches the range", func(t *testing.T) {
		o, err := v.FindOverlaps(4, 4)
		if err != nil {
			t.Fatalf("FindOverlaps failed: %v", err)
		}
		if len(o.Runs) != 0 {
			t.Fatalf("expected no runs, got %+v", o.Runs)
		}
	})
}

func TestFindOverlaps_SkipsL0(t *testing.T) {
	data := &manifest.Data{
		Files: manifest.Table{
			1: file(10, "40", "50", 1, 1),
			2: file(10, "00", "05", 2, 2),
			3: file(10, "15", "18", 3, 3),
			4: file(10, "10", "20", 4, 4),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "flushed", Added: edits{0: {3, 1, 2}}},
			{Reason: "ingested", Added: edits{1: {4}}},
		},
	}
	v := mustNew(t, data)
	v.SetCursor(1)

	got := v.Levels()[0]
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected L0 ordered by sequence number, got %v", got)
	}

	o, err := v.FindOverlaps(1, 4)
	if err != nil {
		t.Fatalf("FindOverlaps failed: %v", err)
	}
	if _, ok := o.Runs[0]; ok {
		t.Fatalf("L0 must never be reported as an overlap level, got %+v", o.Runs)
	}

	o, err = v.FindOverlaps(0, 3)
	if err != nil {
		t.Fatalf("FindOverlaps failed: %v", err)
	}
	if o.Index != 2 {
		t.Fatalf("expected file 3 at L0 index 2, got %d", o.Index)
	}
	next, ok := o.NextLevel()
	if !ok || next.Count != 1 || next.Size != 10 {
		t.Fatalf("unexpected L1 run %+v (ok=%v)", next, ok)
	}
}

func TestFindOverlaps_Errors(t *testing.T) {
	v := overlapFixture(t)

	if _, err := v.FindOverlaps(7, fileA); !errors.Is(err, manifest.ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
	if _, err := v.FindOverlaps(1, 99); !errors.Is(err, manifest.ErrUnknownFile) {
		t.Fatalf("expected ErrUnknownFile, got %v", err)
	}
	if _, err := v.FindOverlaps(2, fileA); !errors.Is(err, ErrFileNotInLevel) {
		t.Fatalf("expected ErrFileNotInLevel, got %v", err)
	}
}

func TestDescribeFile(t *testing.T) {
	v := overlapFixture(t)

	got, err := v.DescribeFile(1, fileA)
	if err != nil {
		t.Fatalf("DescribeFile failed: %v", err)
	}
	if want := "L1 000001 (100 B) overlaps 2 @ L2 (700 B)"; got != want {
		t.Fatalf("DescribeFile = %q, want %q", got, want)
	}

	got, err = v.DescribeFile(2, fileE)
	if err != nil {
		t.Fatalf("DescribeFile failed: %v", err)
	}
	if want := "L2 000005 (500 B)"; got != want {
		t.Fatalf("DescribeFile = %q, want %q", got, want)
	}
}

func TestOverlaps_Describe(t *testing.T) {
	v := overlapFixture(t)

	o, err := v.FindOverlaps(1, fileA)
	if err != nil {
		t.Fatalf("FindOverlaps failed: %v", err)
	}

	// The description is built from the result alone, so moving the cursor
	// afterwards does not change it.
	v.SetCursor(0)
	if got, want := o.Describe(), "L1 000001 (100 B) overlaps 2 @ L2 (700 B)"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}

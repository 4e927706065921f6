package version

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"lsmview/pkg/manifest"
	"lsmview/pkg/types"
)

type edits = map[types.Level][]types.FileID

func file(size uint64, smallest, largest string, seqLo, seqHi types.SeqNum) *manifest.FileMetadata {
	return &manifest.FileMetadata{
		Size:           size,
		Smallest:       types.Key(smallest),
		Largest:        types.Key(largest),
		SmallestSeqNum: seqLo,
		LargestSeqNum:  seqHi,
	}
}

func mustNew(t *testing.T, data *manifest.Data) *Version {
	t.Helper()
	v, err := New(data)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return v
}

func setOf(ids []types.FileID) map[types.FileID]bool {
	s := make(map[types.FileID]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// replay applies edits [0, upto] to an empty state with plain maps.
func replay(data *manifest.Data, upto int) [types.NumLevels]map[types.FileID]bool {
	var levels [types.NumLevels]map[types.FileID]bool
	for i := range levels {
		levels[i] = make(map[types.FileID]bool)
	}
	for i := 0; i <= upto; i++ {
		edit := data.Edits[i]
		for level, ids := range edit.Deleted {
			for _, id := range ids {
				delete(levels[level], id)
			}
		}
		for level, ids := range edit.Added {
			for _, id := range ids {
				levels[level][id] = true
			}
		}
	}
	return levels
}

func levelSets(v *Version) [types.NumLevels]map[types.FileID]bool {
	var out [types.NumLevels]map[types.FileID]bool
	for i, ids := range v.Levels() {
		out[i] = setOf(ids)
	}
	return out
}

// lsmHistory builds a flush/compaction history over disjoint key ranges so
// that levels >= 1 stay non-overlapping.
func lsmHistory(t *testing.T) *manifest.Data {
	t.Helper()

	data := &manifest.Data{Files: manifest.Table{}}
	var next types.FileID = 1
	newFile := func(lo, hi int, seq types.SeqNum) types.FileID {
		id := next
		next++
		data.Files[id] = file(uint64(hi-lo+1)*1024, fmt.Sprintf("k%04d", lo), fmt.Sprintf("k%04d", hi), seq, seq+9)
		return id
	}

	var (
		l0  []types.FileID
		l1  []types.FileID
		seq types.SeqNum = 1
	)
	for round := 0; round < 4; round++ {
		// Two flushes of overlapping ranges into L0.
		for f := 0; f < 2; f++ {
			id := newFile(round*100, round*100+99, seq)
			seq += 10
			l0 = append(l0, id)
			data.Edits = append(data.Edits, manifest.VersionEdit{
				Reason: "flushed",
				Added:  edits{0: {id}},
			})
		}

		// Compact L0 into two disjoint L1 files.
		a := newFile(round*100, round*100+49, seq)
		b := newFile(round*100+50, round*100+99, seq)
		seq += 10
		data.Edits = append(data.Edits, manifest.VersionEdit{
			Reason:  "compacted",
			Deleted: edits{0: l0},
			Added:   edits{1: {a, b}},
		})
		l0 = nil
		l1 = append(l1, a, b)
	}

	// Move the first half of L1 down to L2.
	moved := append([]types.FileID(nil), l1[:4]...)
	data.Edits = append(data.Edits, manifest.VersionEdit{
		Reason:  "move",
		Deleted: edits{1: moved},
		Added:   edits{2: moved},
	})

	return data
}

func TestSetCursor_EditApplication(t *testing.T) {
	data := &manifest.Data{
		Files: manifest.Table{
			1: file(10, "a", "c", 1, 1),
			2: file(20, "a", "c", 1, 1),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "flushed", Added: edits{0: {1}}},
			{Reason: "compacted", Deleted: edits{0: {1}}, Added: edits{1: {2}}},
		},
	}
	v := mustNew(t, data)

	if v.Cursor() != -1 {
		t.Fatalf("expected initial cursor -1, got %d", v.Cursor())
	}

	steps := []struct {
		target int
		want   [types.NumLevels][]types.FileID
	}{
		{0, [types.NumLevels][]types.FileID{0: {1}}},
		{1, [types.NumLevels][]types.FileID{1: {2}}},
		{0, [types.NumLevels][]types.FileID{0: {1}}},
	}

	for _, step := range steps {
		v.SetCursor(step.target)
		if v.Cursor() != step.target {
			t.Fatalf("expected cursor %d, got %d", step.target, v.Cursor())
		}
		got := v.Levels()
		for level := range got {
			if len(got[level]) != len(step.want[level]) {
				t.Fatalf("cursor %d: L%d = %v, want %v", step.target, level, got[level], step.want[level])
			}
			for i := range got[level] {
				if got[level][i] != step.want[level][i] {
					t.Fatalf("cursor %d: L%d = %v, want %v", step.target, level, got[level], step.want[level])
				}
			}
		}
	}
}

func TestSetCursor_Clamps(t *testing.T) {
	data := lsmHistory(t)
	v := mustNew(t, data)

	v.SetCursor(-5)
	if v.Cursor() != 0 {
		t.Fatalf("expected cursor clamped to 0, got %d", v.Cursor())
	}

	v.SetCursor(len(data.Edits) + 100)
	if v.Cursor() != len(data.Edits)-1 {
		t.Fatalf("expected cursor clamped to %d, got %d", len(data.Edits)-1, v.Cursor())
	}
}

func TestSetCursor_EmptyLog(t *testing.T) {
	v := mustNew(t, &manifest.Data{})
	v.SetCursor(3)
	if v.Cursor() != -1 {
		t.Fatalf("expected cursor to stay at -1, got %d", v.Cursor())
	}
	for level, ids := range v.Levels() {
		if len(ids) != 0 {
			t.Fatalf("expected empty L%d, got %v", level, ids)
		}
	}
}

func TestSetCursor_RoundTrip(t *testing.T) {
	data := lsmHistory(t)
	n := len(data.Edits)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		a, b := rng.Intn(n), rng.Intn(n)

		direct := mustNew(t, data)
		direct.SetCursor(a)

		v := mustNew(t, data)
		v.SetCursor(a)
		v.SetCursor(b)
		v.SetCursor(a)

		if !reflect.DeepEqual(levelSets(v), levelSets(direct)) {
			t.Fatalf("round trip %d -> %d -> %d diverged:\n got  %v\n want %v", a, b, a, v.Levels(), direct.Levels())
		}
		if !reflect.DeepEqual(v.Levels(), direct.Levels()) {
			t.Fatalf("round trip %d -> %d -> %d changed level order", a, b, a)
		}
	}
}

func TestSetCursor_MonotoneReplay(t *testing.T) {
	data := lsmHistory(t)
	last := len(data.Edits) - 1

	stepped := mustNew(t, data)
	for i := 0; i <= last; i++ {
		stepped.SetCursor(i)
	}

	jumped := mustNew(t, data)
	jumped.SetCursor(last)

	want := replay(data, last)
	if !reflect.DeepEqual(levelSets(stepped), want) {
		t.Fatalf("stepped replay = %v, want %v", stepped.Levels(), want)
	}
	if !reflect.DeepEqual(levelSets(jumped), want) {
		t.Fatalf("jumped replay = %v, want %v", jumped.Levels(), want)
	}
}

func TestSetCursor_MatchesReplayEverywhere(t *testing.T) {
	data := lsmHistory(t)
	v := mustNew(t, data)

	// Walk backward from the end so every state is reached by unapplying.
	for i := len(data.Edits) - 1; i >= 0; i-- {
		v.SetCursor(i)
		if want := replay(data, i); !reflect.DeepEqual(levelSets(v), want) {
			t.Fatalf("cursor %d: got %v, want %v", i, v.Levels(), want)
		}
	}
}

func TestLevelOrdering(t *testing.T) {
	data := lsmHistory(t)
	v := mustNew(t, data)

	for i := range data.Edits {
		v.SetCursor(i)

		l0 := v.Files(0)
		ordered := sort.SliceIsSorted(l0, func(a, b int) bool {
			fa, fb := l0[a], l0[b]
			if fa.LargestSeqNum != fb.LargestSeqNum {
				return fa.LargestSeqNum < fb.LargestSeqNum
			}
			if fa.SmallestSeqNum != fb.SmallestSeqNum {
				return fa.SmallestSeqNum < fb.SmallestSeqNum
			}
			return fa.ID < fb.ID
		})
		if !ordered {
			t.Fatalf("cursor %d: L0 not ordered by sequence numbers", i)
		}

		for level := types.Level(1); level < types.NumLevels; level++ {
			files := v.Files(level)
			for j := 1; j < len(files); j++ {
				prev, cur := files[j-1], files[j]
				if prev.Smallest.Compare(cur.Smallest) > 0 {
					t.Fatalf("cursor %d: %s not sorted by smallest key", i, level)
				}
				if prev.Largest.Compare(cur.Smallest) >= 0 {
					t.Fatalf("cursor %d: %s files %s and %s overlap", i, level, prev.ID, cur.ID)
				}
			}
		}
	}
}

func TestLevelSize(t *testing.T) {
	data := lsmHistory(t)
	v := mustNew(t, data)

	for i := range data.Edits {
		v.SetCursor(i)
		for level, ids := range v.Levels() {
			want, err := data.Files.TotalSize(ids)
			if err != nil {
				t.Fatalf("TotalSize failed: %v", err)
			}
			if got := v.LevelSize(types.Level(level)); got != want {
				t.Fatalf("cursor %d: LevelSize(L%d) = %d, want %d", i, level, got, want)
			}
		}
	}

	if got := v.LevelSize(types.NumLevels); got != 0 {
		t.Fatalf("expected 0 for an invalid level, got %d", got)
	}
}

func TestSummaries(t *testing.T) {
	data := lsmHistory(t)
	v := mustNew(t, data)
	v.SetCursor(len(data.Edits) - 1)

	summaries := v.Summaries()
	if len(summaries) != types.NumLevels {
		t.Fatalf("expected %d summaries, got %d", types.NumLevels, len(summaries))
	}
	if summaries[1].Count != 4 || summaries[2].Count != 4 {
		t.Fatalf("unexpected counts: %+v", summaries)
	}
	if summaries[2].Size != v.LevelSize(2) {
		t.Fatalf("summary size %d != LevelSize %d", summaries[2].Size, v.LevelSize(2))
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	data := &manifest.Data{
		Files: manifest.Table{
			1: file(10, "a", "b", 1, 1),
			2: file(10, "c", "d", 2, 2),
			3: file(10, "e", "f", 3, 3),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "flushed", Added: edits{1: {1, 2}}},
			{Reason: "bogus", Deleted: edits{1: {3}, 4: {1}}},
		},
	}
	v := mustNew(t, data)

	v.SetCursor(1)
	got := v.Levels()
	if !reflect.DeepEqual(got[1], []types.FileID{1, 2}) {
		t.Fatalf("expected L1 = [1 2], got %v", got[1])
	}
	if len(got[4]) != 0 {
		t.Fatalf("expected empty L4, got %v", got[4])
	}
}

func TestNewRejectsUnknownFile(t *testing.T) {
	data := &manifest.Data{
		Edits: []manifest.VersionEdit{{Added: edits{0: {42}}}},
	}
	if _, err := New(data); !errors.Is(err, manifest.ErrUnknownFile) {
		t.Fatalf("expected ErrUnknownFile, got %v", err)
	}
}

func TestDescribeEdit(t *testing.T) {
	data := &manifest.Data{
		Files: manifest.Table{
			1: file(2<<20, "a", "b", 1, 1),
			2: file(2<<20, "c", "d", 2, 2),
			3: file(1<<20, "a", "b", 3, 3),
			4: file(5<<20, "a", "d", 4, 4),
		},
		Edits: []manifest.VersionEdit{
			{Reason: "flushed", Added: edits{0: {1}}},
			{Reason: "compacted", Deleted: edits{0: {1, 2}, 1: {3}}, Added: edits{1: {4}}},
			{Reason: "deleted", Deleted: edits{1: {4}}},
			{Reason: "noop", Added: edits{2: {}}},
		},
	}
	v := mustNew(t, data)

	tests := []struct {
		index int
		want  string
	}{
		{0, "flushed => 1 @ L0 (2.0 MB)"},
		{1, "compacted 2 @ L0 (4.0 MB) + 1 @ L1 (1.0 MB) => 1 @ L1 (5.0 MB)"},
		{2, "deleted 1 @ L1 (5.0 MB)"},
		{3, "noop => 0 @ L2 (0)"},
	}
	for _, tt := range tests {
		got, err := v.DescribeEdit(tt.index)
		if err != nil {
			t.Fatalf("DescribeEdit(%d) failed: %v", tt.index, err)
		}
		if got != tt.want {
			t.Errorf("DescribeEdit(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}

	if _, err := v.DescribeEdit(4); !errors.Is(err, ErrEditOutOfRange) {
		t.Fatalf("expected ErrEditOutOfRange, got %v", err)
	}
}

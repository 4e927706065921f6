// Package version reconstructs the files resident in each LSM level at any
// point of a version edit log and answers key-range overlap queries against
// that reconstruction.
//
// A Version is not safe for concurrent use. Callers that share one between
// goroutines must serialize SetCursor against every other method.
package version

import (
	"fmt"
	"sort"

	"lsmview/pkg/manifest"
	"lsmview/pkg/types"

	"github.com/zhangyunhao116/skipmap"
)

type levelSet = skipmap.FuncMap[types.FileID, *manifest.FileMetadata]

// Version is the state of the LSM after applying edits [0, cursor] of a
// manifest dump to an empty tree.
type Version struct {
	data *manifest.Data

	// levels hold the resident files of each level in level order. L0 is
	// ordered by (LargestSeqNum, SmallestSeqNum, FileID), the other levels by
	// (Smallest, FileID).
	levels [types.NumLevels]*levelSet
	less   [types.NumLevels]func(a, b types.FileID) bool

	// files is the ordered contents of levels, rebuilt after every move.
	files [types.NumLevels][]*manifest.FileMetadata

	cursor int
}

// New returns a Version positioned before the first edit (cursor -1, all
// levels empty). The dump is validated first, so every file referenced by an
// edit is guaranteed to have metadata.
func New(data *manifest.Data) (*Version, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest dump: %w", err)
	}

	v := &Version{
		data:   data,
		cursor: -1,
	}
	for i := range v.levels {
		if i == 0 {
			v.less[i] = v.seqNumLess
		} else {
			v.less[i] = v.smallestKeyLess
		}
		v.levels[i] = skipmap.NewFunc[types.FileID, *manifest.FileMetadata](v.less[i])
	}

	return v, nil
}

func (v *Version) seqNumLess(a, b types.FileID) bool {
	fa, fb := v.data.Files[a], v.data.Files[b]
	if fa.LargestSeqNum != fb.LargestSeqNum {
		return fa.LargestSeqNum < fb.LargestSeqNum
	}
	if fa.SmallestSeqNum != fb.SmallestSeqNum {
		return fa.SmallestSeqNum < fb.SmallestSeqNum
	}
	return a < b
}

func (v *Version) smallestKeyLess(a, b types.FileID) bool {
	fa, fb := v.data.Files[a], v.data.Files[b]
	if c := fa.Smallest.Compare(fb.Smallest); c != 0 {
		return c < 0
	}
	return a < b
}

// Cursor returns the index of the last applied edit, or -1 before the first
// SetCursor.
func (v *Version) Cursor() int {
	return v.cursor
}

// NumEdits returns the length of the edit log.
func (v *Version) NumEdits() int {
	return len(v.data.Edits)
}

// Data returns the manifest dump the version replays.
func (v *Version) Data() *manifest.Data {
	return v.data
}

// Edit returns edit i of the log.
func (v *Version) Edit(i int) (*manifest.VersionEdit, error) {
	if i < 0 || i >= len(v.data.Edits) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrEditOutOfRange, i, len(v.data.Edits))
	}
	return &v.data.Edits[i], nil
}

// SetCursor moves the version to the state after edit target, applying edits
// forward or unapplying them backward one at a time. target is clamped into
// [0, NumEdits()-1]; an empty log leaves the version untouched.
func (v *Version) SetCursor(target int) {
	n := len(v.data.Edits)
	if n == 0 {
		return
	}
	if target < 0 {
		target = 0
	} else if target >= n {
		target = n - 1
	}
	if target == v.cursor {
		return
	}

	for ; v.cursor < target; v.cursor++ {
		v.apply(&v.data.Edits[v.cursor+1])
	}
	for ; v.cursor > target; v.cursor-- {
		v.unapply(&v.data.Edits[v.cursor])
	}

	v.refresh()
}

// apply removes the deleted files before adding the added ones.
func (v *Version) apply(edit *manifest.VersionEdit) {
	for _, level := range edit.DeletedLevels() {
		v.remove(level, edit.Deleted[level])
	}
	for _, level := range edit.AddedLevels() {
		v.add(level, edit.Added[level])
	}
}

// unapply is the inverse of apply.
func (v *Version) unapply(edit *manifest.VersionEdit) {
	for _, level := range edit.AddedLevels() {
		v.remove(level, edit.Added[level])
	}
	for _, level := range edit.DeletedLevels() {
		v.add(level, edit.Deleted[level])
	}
}

func (v *Version) add(level types.Level, ids []types.FileID) {
	l := v.levels[level]
	for _, id := range ids {
		l.Store(id, v.data.Files[id])
	}
}

// remove drops ids from level. Files that are not resident are ignored.
func (v *Version) remove(level types.Level, ids []types.FileID) {
	l := v.levels[level]
	for _, id := range ids {
		l.Delete(id)
	}
}

func (v *Version) refresh() {
	for i, l := range v.levels {
		files := v.files[i][:0]
		l.Range(func(_ types.FileID, m *manifest.FileMetadata) bool {
			files = append(files, m)
			return true
		})
		v.files[i] = files
	}
}

// Levels returns the resident file identifiers of every level in level order.
// The returned slices are copies.
func (v *Version) Levels() [types.NumLevels][]types.FileID {
	var out [types.NumLevels][]types.FileID
	for i, files := range v.files {
		ids := make([]types.FileID, len(files))
		for j, m := range files {
			ids[j] = m.ID
		}
		out[i] = ids
	}
	return out
}

// Files returns the metadata of the files resident in level, in level order.
func (v *Version) Files(level types.Level) []*manifest.FileMetadata {
	if !level.Valid() {
		return nil
	}
	return append([]*manifest.FileMetadata(nil), v.files[level]...)
}

// LevelSize returns the sum of the sizes of the files resident in level.
func (v *Version) LevelSize(level types.Level) uint64 {
	if !level.Valid() {
		return 0
	}
	var size uint64
	for _, m := range v.files[level] {
		size += m.Size
	}
	return size
}

// LevelSummary is the file count and total size of a level.
type LevelSummary struct {
	Level types.Level `json:"level"`
	Count int         `json:"count"`
	Size  uint64      `json:"size"`
}

// Summaries returns a LevelSummary for every level.
func (v *Version) Summaries() []LevelSummary {
	out := make([]LevelSummary, types.NumLevels)
	for i := range out {
		level := types.Level(i)
		out[i] = LevelSummary{
			Level: level,
			Count: len(v.files[i]),
			Size:  v.LevelSize(level),
		}
	}
	return out
}

// indexOf returns the position of id within level, or -1.
func (v *Version) indexOf(level types.Level, id types.FileID) int {
	files := v.files[level]
	less := v.less[level]
	i := sort.Search(len(files), func(i int) bool { return !less(files[i].ID, id) })
	if i < len(files) && files[i].ID == id {
		return i
	}
	return -1
}

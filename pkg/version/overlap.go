package version

import (
	"fmt"
	"sort"

	"lsmview/pkg/manifest"
	"lsmview/pkg/types"
)

// Run is a contiguous range [Start, End) of files in a level whose key ranges
// intersect a selected file. A run with Start == End marks the position the
// selected file would sit at in that level without overlapping anything.
type Run struct {
	Level types.Level `json:"level"`
	Start int         `json:"start"`
	End   int         `json:"end"`

	// Count and Size are only set for the level directly below the selected
	// file: the number and total size of files a compaction of it would read.
	Count int    `json:"count,omitempty"`
	Size  uint64 `json:"size,omitempty"`
}

// Width returns the number of files in the run.
func (r Run) Width() int {
	return r.End - r.Start
}

// Overlaps is the result of FindOverlaps. Index is the position of File
// within Level.
type Overlaps struct {
	Level types.Level            `json:"level"`
	File  *manifest.FileMetadata `json:"file"`
	Index int                    `json:"index"`
	Runs  map[types.Level]Run    `json:"runs"`
}

// NextLevel returns the run in the level directly below the selected file.
func (o Overlaps) NextLevel() (Run, bool) {
	run, ok := o.Runs[o.Level+1]
	return run, ok
}

// FindOverlaps computes, for every other non-empty level below L0, the run of
// files overlapping the key range of file id resident in level. A level without any
// file whose largest key reaches the selected smallest key has no entry.
func (v *Version) FindOverlaps(level types.Level, id types.FileID) (Overlaps, error) {
	if !level.Valid() {
		return Overlaps{}, fmt.Errorf("%w: %d", manifest.ErrInvalidLevel, int(level))
	}
	meta, err := v.data.Files.Lookup(id)
	if err != nil {
		return Overlaps{}, err
	}
	idx := v.indexOf(level, id)
	if idx < 0 {
		return Overlaps{}, fmt.Errorf("%w: %s in %s", ErrFileNotInLevel, id, level)
	}

	o := Overlaps{
		Level: level,
		File:  meta,
		Index: idx,
		Runs:  make(map[types.Level]Run),
	}
	// L0 is ordered by sequence number, so a contiguous run in it has no
	// meaning. Only levels 1 and up are reported.
	for i := 1; i < types.NumLevels; i++ {
		other, files := types.Level(i), v.files[i]
		if other == level || len(files) == 0 {
			continue
		}

		run, ok := overlapRun(other, files, meta)
		if !ok {
			continue
		}
		if other == level+1 {
			run.Count = run.Width()
			for _, m := range files[run.Start:run.End] {
				run.Size += m.Size
			}
		}
		o.Runs[other] = run
	}

	return o, nil
}

// overlapRun finds the first file whose largest key is at or after
// sel.Smallest and extends the run while files start before sel.Largest.
// files must be sorted and disjoint, so their largest keys are ascending and
// the start can be binary searched.
func overlapRun(level types.Level, files []*manifest.FileMetadata, sel *manifest.FileMetadata) (Run, bool) {
	start := sort.Search(len(files), func(i int) bool {
		return files[i].Largest.Compare(sel.Smallest) >= 0
	})
	if start == len(files) {
		return Run{}, false
	}

	end := start
	for end < len(files) && files[end].Smallest.Compare(sel.Largest) < 0 {
		end++
	}

	return Run{Level: level, Start: start, End: end}, true
}

// Package manifest holds the decoded output of a storage engine manifest
// dump: the table of file metadata and the ordered list of version edits.
package manifest

import (
	"fmt"
	"sort"

	"lsmview/pkg/types"
)

// FileMetadata describes a single table. It never changes once loaded and
// stays addressable after the file has been removed from every level.
type FileMetadata struct {
	ID             types.FileID `json:"-" yaml:"-"`
	Size           uint64       `json:"Size" yaml:"Size"`
	Smallest       types.Key    `json:"Smallest" yaml:"Smallest"`
	Largest        types.Key    `json:"Largest" yaml:"Largest"`
	SmallestSeqNum types.SeqNum `json:"SmallestSeqNum" yaml:"SmallestSeqNum"`
	LargestSeqNum  types.SeqNum `json:"LargestSeqNum" yaml:"LargestSeqNum"`
}

// Overlaps reports whether f intersects the half-open span [smallest, largest)
// in the way the overlap query treats it: f.Largest >= smallest and
// f.Smallest < largest.
func (f *FileMetadata) Overlaps(smallest, largest types.Key) bool {
	return f.Largest.Compare(smallest) >= 0 && f.Smallest.Compare(largest) < 0
}

// Table maps file identifiers to their metadata.
type Table map[types.FileID]*FileMetadata

// Lookup returns the metadata for id.
func (t Table) Lookup(id types.FileID) (*FileMetadata, error) {
	m, ok := t[id]
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}
	return m, nil
}

// TotalSize sums the sizes of ids. Every id must be present in the table.
func (t Table) TotalSize(ids []types.FileID) (uint64, error) {
	var total uint64
	for _, id := range ids {
		m, err := t.Lookup(id)
		if err != nil {
			return 0, err
		}
		total += m.Size
	}
	return total, nil
}

// VersionEdit is one structural change of the LSM: the files removed from
// and added to each level.
type VersionEdit struct {
	Reason  string                        `json:"Reason" yaml:"Reason"`
	Deleted map[types.Level][]types.FileID `json:"Deleted,omitempty" yaml:"Deleted,omitempty"`
	Added   map[types.Level][]types.FileID `json:"Added,omitempty" yaml:"Added,omitempty"`
}

// DeletedLevels returns the levels with a Deleted entry in ascending order.
func (e *VersionEdit) DeletedLevels() []types.Level {
	return sortedLevels(e.Deleted)
}

// AddedLevels returns the levels with an Added entry in ascending order.
func (e *VersionEdit) AddedLevels() []types.Level {
	return sortedLevels(e.Added)
}

func sortedLevels(m map[types.Level][]types.FileID) []types.Level {
	levels := make([]types.Level, 0, len(m))
	for level := range m {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

// Data is a full manifest dump.
type Data struct {
	Files Table         `json:"Files" yaml:"Files"`
	Edits []VersionEdit `json:"Edits" yaml:"Edits"`
}

// Validate checks the dump against its input contract: every level named by
// an edit is in range, every referenced file is present in Files, and every
// file has an ordered key range. It also fills in FileMetadata.ID.
func (d *Data) Validate() error {
	if d.Files == nil {
		d.Files = make(Table)
	}

	for id, m := range d.Files {
		if m == nil {
			return fmt.Errorf("file %s: %w", id, ErrUnknownFile)
		}
		if m.Smallest.Compare(m.Largest) > 0 {
			return fmt.Errorf("file %s: %w", id, ErrInvalidKeyRange)
		}
		m.ID = id
	}

	for i := range d.Edits {
		edit := &d.Edits[i]
		for _, set := range []map[types.Level][]types.FileID{edit.Deleted, edit.Added} {
			for level, ids := range set {
				if !level.Valid() {
					return fmt.Errorf("edit %d: %w: %d", i, ErrInvalidLevel, int(level))
				}
				for _, id := range ids {
					if _, err := d.Files.Lookup(id); err != nil {
						return fmt.Errorf("edit %d: %w", i, err)
					}
				}
			}
		}
	}

	return nil
}

// ViolationKind describes how an edit disagrees with the state it is applied to.
type ViolationKind uint8

const (
	// AddedResident is an added file that is already resident in the level.
	AddedResident ViolationKind = iota + 1
	// DeletedMissing is a deleted file that is not resident in the level.
	DeletedMissing
)

func (k ViolationKind) String() string {
	switch k {
	case AddedResident:
		return "added file already resident"
	case DeletedMissing:
		return "deleted file not resident"
	default:
		return "unknown"
	}
}

// Violation is a single residency inconsistency found by CheckConsistency.
type Violation struct {
	Edit  int
	Level types.Level
	File  types.FileID
	Kind  ViolationKind
}

func (v Violation) Error() string {
	return fmt.Sprintf("edit %d: %s %s in %s", v.Edit, v.Kind, v.File, v.Level)
}

// CheckConsistency replays the edits from the empty state and reports every
// add of an already resident file and every delete of a file that is not
// resident. The edit log is not modified. Data must be valid.
func (d *Data) CheckConsistency() []Violation {
	var (
		violations []Violation
		levels     [types.NumLevels]map[types.FileID]struct{}
	)
	for i := range levels {
		levels[i] = make(map[types.FileID]struct{})
	}

	for i := range d.Edits {
		edit := &d.Edits[i]
		for _, level := range edit.DeletedLevels() {
			for _, id := range edit.Deleted[level] {
				if _, ok := levels[level][id]; !ok {
					violations = append(violations, Violation{Edit: i, Level: level, File: id, Kind: DeletedMissing})
				}
				delete(levels[level], id)
			}
		}
		for _, level := range edit.AddedLevels() {
			for _, id := range edit.Added[level] {
				if _, ok := levels[level][id]; ok {
					violations = append(violations, Violation{Edit: i, Level: level, File: id, Kind: AddedResident})
				}
				levels[level][id] = struct{}{}
			}
		}
	}

	return violations
}

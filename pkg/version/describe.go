package version

import (
	"fmt"
	"strings"

	"lsmview/pkg/humanize"
	"lsmview/pkg/types"
)

// DescribeEdit returns a one-line summary of edit i, for example
//
//	compacted 2 @ L0 (4.0 MB) + 1 @ L1 (2.0 MB) => 3 @ L1 (6.0 MB)
func (v *Version) DescribeEdit(i int) (string, error) {
	edit, err := v.Edit(i)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(edit.Reason)

	sep := " "
	for _, level := range edit.DeletedLevels() {
		b.WriteString(sep)
		b.WriteString(v.summarize(level, edit.Deleted[level]))
		sep = " + "
	}

	sep = " => "
	for _, level := range edit.AddedLevels() {
		b.WriteString(sep)
		b.WriteString(v.summarize(level, edit.Added[level]))
		sep = " + "
	}

	return b.String(), nil
}

func (v *Version) summarize(level types.Level, ids []types.FileID) string {
	var size uint64
	for _, id := range ids {
		size += v.data.Files[id].Size
	}
	return fmt.Sprintf("%d @ %s (%s)", len(ids), level, humanize.IEC(size))
}

// DescribeFile returns a one-line summary of a resident file and, when it
// overlaps files in the next level, the size of that overlap:
//
//	L1 000012 (2.0 MB) overlaps 3 @ L2 (6.1 MB)
func (v *Version) DescribeFile(level types.Level, id types.FileID) (string, error) {
	o, err := v.FindOverlaps(level, id)
	if err != nil {
		return "", err
	}

	return o.Describe(), nil
}

// Describe formats o the way DescribeFile does, without looking at the
// version again.
func (o Overlaps) Describe() string {
	s := fmt.Sprintf("%s %s (%s)", o.Level, o.File.ID, humanize.IEC(o.File.Size))
	if run, ok := o.NextLevel(); ok && run.Count > 0 {
		s += fmt.Sprintf(" overlaps %d @ %s (%s)", run.Count, run.Level, humanize.IEC(run.Size))
	}
	return s
}

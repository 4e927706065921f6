package types

import (
	"fmt"
	"strings"
)

// NumLevels is the number of levels in the LSM tree.
const NumLevels = 7

// FileID is an opaque handle of a table file in the metadata table.
type FileID uint64

func (id FileID) String() string {
	return fmt.Sprintf("%06d", uint64(id))
}

// Level is an LSM level index, valid in [0, NumLevels).
type Level int

func (l Level) Valid() bool {
	return l >= 0 && l < NumLevels
}

func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Key is a user key. Keys are totally ordered by byte-wise comparison.
type Key string

func (k Key) Compare(other Key) int {
	return strings.Compare(string(k), string(other))
}

// SeqNum is a sequence number assigned by the storage engine.
type SeqNum uint64

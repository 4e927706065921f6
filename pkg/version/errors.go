package version

import "errors"

var (
	ErrEditOutOfRange = errors.New("lsmview: edit index out of range")
	ErrFileNotInLevel = errors.New("lsmview: file is not resident in level")
)

package manifest

import "errors"

var (
	ErrUnknownFile      = errors.New("lsmview: unknown file")
	ErrInvalidLevel     = errors.New("lsmview: invalid level")
	ErrInvalidKeyRange  = errors.New("lsmview: smallest key is greater than largest key")
	ErrUnknownFormat    = errors.New("lsmview: unknown manifest dump format")
	ErrInconsistentEdit = errors.New("lsmview: edit is inconsistent with prior state")
)

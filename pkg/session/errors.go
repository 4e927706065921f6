package session

import "errors"

var (
	ErrNotFound        = errors.New("lsmview: session not found")
	ErrPlaybackRunning = errors.New("lsmview: playback already running")
	ErrInvalidPlayback = errors.New("lsmview: invalid playback settings")
)

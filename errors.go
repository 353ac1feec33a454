package sequencer

import "errors"

var (
	// ErrDuplicateTrack is returned when track with the same name exists.
	ErrDuplicateTrack = errors.New("duplicate track")
	// ErrTrackNotFound is returned when track doesn't exist.
	ErrTrackNotFound = errors.New("track not found")
	// ErrRecallNotFound is returned when track has no runs of the recall.
	ErrRecallNotFound = errors.New("recall not found")
	// ErrNoControls is returned when recall has no control ports.
	ErrNoControls = errors.New("recall has no controls")
	// ErrProtectedThread is returned when an engine thread is removed.
	ErrProtectedThread = errors.New("protected thread")
	// ErrThreadNotFound is returned when thread doesn't exist.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrDuplicateThread is returned when thread with the same name exists.
	ErrDuplicateThread = errors.New("duplicate thread")
)

package domain

import "errors"

var (
	// ErrSequenceGap is a continuity check failure: one or more diffs were
	// missed and the replica can no longer prove contiguity.
	ErrSequenceGap = errors.New("order book update is out of sequence")
	// ErrUpdateOutdated marks a diff already covered by the snapshot; such
	// events are skipped, never applied.
	ErrUpdateOutdated = errors.New("order book update is outdated")
	// ErrBufferOverflow is returned when the diff buffer exceeds its ceiling
	// before the book manages to sync.
	ErrBufferOverflow = errors.New("diff event buffer overflow")
	// ErrStreamClosed is the transport-level failure of a diff stream.
	ErrStreamClosed = errors.New("diff stream closed")

	ErrBookNotReady = errors.New("order book is not live yet")
	ErrBookNotFound = errors.New("order book not found")
)

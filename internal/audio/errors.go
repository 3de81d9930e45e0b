package audio

import "errors"

var (
	// ErrEndOfSource is returned once a decoder has surfaced its last frame.
	ErrEndOfSource = errors.New("end of source")

	// ErrNotReady is returned by operations on a stream that has no working
	// buffers (nil or partially constructed).
	ErrNotReady = errors.New("input stream not ready")
)

package hue

import "errors"

// Error kinds shared by the serializer, the request factory and the HTTPS
// session. Callers classify failures with errors.Is; wrapped errors carry the
// detail.
var (
	// ErrInvalidArgument marks nil or malformed caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBufferTooSmall is returned when an append would overflow the fixed
	// JSON buffer.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrEncoding marks a formatting fault while writing into a buffer.
	ErrEncoding = errors.New("encoding failure")

	// ErrInvalidSize marks a printed length outside its statically known
	// bounds. Defensive, should be unreachable with well-formed input.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidResponse is returned when the bridge answers with a status
	// other than 200 OK. Terminal, never retried.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAborted is returned when a request cycle is stopped before any
	// network attempt because an abort or exit signal is raised.
	ErrAborted = errors.New("aborted")

	// ErrNotConnected is returned when a request cycle starts while the
	// network-ready signal is unset.
	ErrNotConnected = errors.New("not connected")

	// ErrRequestFailed is returned after the retry budget is exhausted
	// without a successful attempt.
	ErrRequestFailed = errors.New("request failed")
)

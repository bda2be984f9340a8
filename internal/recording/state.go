package recording

import (
	"errors"
	"time"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed" // writer and stream set up, not yet rolling
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateFailed     State = "failed"
)

var (
	// ErrBusy is returned by StartRecording when a session is already
	// in progress.
	ErrBusy = errors.New("a recording session is already in progress")

	// ErrNotRecording is returned by StopRecording outside the
	// Recording state.
	ErrNotRecording = errors.New("no recording session in progress")

	// ErrInvalidConfig wraps configuration validation failures at session
	// setup. They are user-correctable, so the engine stays Idle.
	ErrInvalidConfig = errors.New("invalid recording configuration")
)

// Result describes a successfully finalized session. It is created only
// after the writer finished; it is never partially populated.
type Result struct {
	Path        string
	Duration    time.Duration
	SizeBytes   int64
	CompletedAt time.Time
}

// Stats aggregates per-session frame accounting. Dropped frames are
// tracked, not hidden.
type Stats struct {
	FramesComposed uint64
	FramesAppended uint64
	FramesDropped  uint64
	AudioBuffers   uint64
}

// Status is the throttled observable snapshot exposed to the UI layer.
type Status struct {
	SessionID string
	State     State
	Elapsed   time.Duration
	LastError string
	Stats     Stats
}

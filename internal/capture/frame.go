package capture

import (
	"image"
	"time"
)

// Frame is one captured video frame. Pix must not be modified after the
// frame has been handed off; frames are shared by reference down the
// compositing path.
type Frame struct {
	Pix *image.RGBA

	// PTS is the presentation timestamp relative to the shared session
	// start. The first frame a source emits is anchored to zero.
	PTS time.Duration

	// Seq increases monotonically per source. Used for drop accounting.
	Seq uint64
}

// AudioBuffer is one captured chunk of interleaved s16le samples.
type AudioBuffer struct {
	Data []byte
	PTS  time.Duration
}

// Clock anchors all sources of one session to a single start instant so the
// muxed output stays in sync despite independent production rates.
type Clock struct {
	start time.Time
}

// NewClock starts a session clock at now.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// NewClockAt starts a session clock at the given instant.
func NewClockAt(t time.Time) *Clock {
	return &Clock{start: t}
}

// Since returns the elapsed session time.
func (c *Clock) Since() time.Duration {
	return time.Since(c.start)
}

// Start returns the session start instant.
func (c *Clock) Start() time.Time {
	return c.start
}

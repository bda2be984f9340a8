package encode

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingSink holds every Write until released, to keep the input slot
// occupied for backpressure tests.
type blockingSink struct {
	mu      sync.Mutex
	writes  int
	release chan struct{}
	err     error
	closed  bool
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Write(frame []byte) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.err
}

func (s *blockingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func testFrame(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestVideoTrackWriterAppends(t *testing.T) {
	sink := newBlockingSink()
	close(sink.release)
	v := newVideoTrackWriter(sink, 64, 48)

	assert.True(t, v.TryAppend(testFrame(64, 48), 0))
	require.NoError(t, v.Finish())

	assert.Equal(t, uint64(1), v.Appended())
	assert.True(t, sink.closed)
}

func TestVideoTrackWriterRejectsMismatchedSize(t *testing.T) {
	sink := newBlockingSink()
	close(sink.release)
	v := newVideoTrackWriter(sink, 64, 48)

	assert.False(t, v.TryAppend(testFrame(32, 48), 0))
	assert.False(t, v.TryAppend(nil, 0))
	require.NoError(t, v.Finish())
	assert.Equal(t, uint64(0), v.Appended())
}

func TestVideoTrackWriterBackpressureDropsNewest(t *testing.T) {
	sink := newBlockingSink()
	v := newVideoTrackWriter(sink, 8, 8)

	// First frame occupies the encoder, second fills the slot; the third
	// must be refused without blocking.
	require.Eventually(t, func() bool {
		return v.TryAppend(testFrame(8, 8), 0)
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return v.TryAppend(testFrame(8, 8), time.Second/30)
	}, time.Second, time.Millisecond)

	done := make(chan bool, 1)
	go func() { done <- v.TryAppend(testFrame(8, 8), 2*time.Second/30) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("TryAppend blocked under backpressure")
	}

	close(sink.release)
	require.NoError(t, v.Finish())
	assert.Equal(t, uint64(2), v.Appended())
}

func TestVideoTrackWriterFinishDrains(t *testing.T) {
	sink := newBlockingSink()
	v := newVideoTrackWriter(sink, 8, 8)

	require.Eventually(t, func() bool {
		return v.TryAppend(testFrame(8, 8), 0)
	}, time.Second, time.Millisecond)

	finished := make(chan error, 1)
	go func() { finished <- v.Finish() }()

	// Finish waits for the in-flight frame.
	select {
	case <-finished:
		t.Fatal("Finish returned before the encoder flushed")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	require.NoError(t, <-finished)
	assert.Equal(t, uint64(1), v.Appended())
}

func TestVideoTrackWriterFinishIsIdempotent(t *testing.T) {
	sink := newBlockingSink()
	close(sink.release)
	v := newVideoTrackWriter(sink, 8, 8)

	require.NoError(t, v.Finish())
	require.NoError(t, v.Finish())
	assert.False(t, v.TryAppend(testFrame(8, 8), 0), "appends after Finish are refused")
}

func TestVideoTrackWriterSurfacesEncodeError(t *testing.T) {
	sink := newBlockingSink()
	sink.err = errors.New("encoder broke")
	close(sink.release)
	v := newVideoTrackWriter(sink, 8, 8)

	v.TryAppend(testFrame(8, 8), 0)
	err := v.Finish()
	assert.ErrorContains(t, err, "encoder broke")
	assert.Equal(t, uint64(0), v.Appended())
}

// Package encode writes the session's video and audio tracks and muxes
// them into the final container.
package encode

import (
	"fmt"
	"image"
	"sync"
	"time"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/rs/zerolog"

	"windowcast.app/recorder/internal/log"
)

// frameSink abstracts the underlying encoder handle for tests.
type frameSink interface {
	Write(frame []byte) error
	Close()
}

type vidioSink struct {
	w *vidio.VideoWriter
}

func (s *vidioSink) Write(frame []byte) error { return s.w.Write(frame) }
func (s *vidioSink) Close()                   { s.w.Close() }

// VideoTrackWriter appends composed RGBA canvases to the encoder. Encoding
// runs on its own goroutine behind a single-slot input; when the encoder
// has not finished the previous frame, TryAppend refuses the new one so
// the capture path never blocks (drop-newest backpressure).
type VideoTrackWriter struct {
	sink   frameSink
	width  int
	height int

	input chan queuedFrame
	wg    sync.WaitGroup

	mu       sync.Mutex
	appended uint64
	err      error
	finished bool

	logger zerolog.Logger
}

type queuedFrame struct {
	pix []byte
	pts time.Duration
}

// NewVideoTrackWriter creates the encoder for a width×height track at the
// given frame rate. Codec names follow ffmpeg ("h264", "hevc",
// "h264_videotoolbox", ...).
func NewVideoTrackWriter(path string, width, height, fps int, codec string) (*VideoTrackWriter, error) {
	opts := &vidio.Options{
		FPS:   float64(fps),
		Codec: codec,
	}
	w, err := vidio.NewVideoWriter(path, width, height, opts)
	if err != nil {
		return nil, fmt.Errorf("create video writer: %w", err)
	}
	return newVideoTrackWriter(&vidioSink{w: w}, width, height), nil
}

func newVideoTrackWriter(sink frameSink, width, height int) *VideoTrackWriter {
	v := &VideoTrackWriter{
		sink:   sink,
		width:  width,
		height: height,
		input:  make(chan queuedFrame, 1),
		logger: log.WithComponent("video-writer"),
	}
	v.wg.Add(1)
	go v.loop()
	return v
}

// TryAppend hands a composed frame to the encoder. It returns false, and
// the frame is discarded, when the encoder is still busy with the previous
// frame or the frame does not match the track dimensions.
func (v *VideoTrackWriter) TryAppend(frame *image.RGBA, pts time.Duration) bool {
	if frame == nil {
		return false
	}
	if frame.Bounds().Dx() != v.width || frame.Bounds().Dy() != v.height {
		v.logger.Debug().
			Int("got_w", frame.Bounds().Dx()).Int("got_h", frame.Bounds().Dy()).
			Int("want_w", v.width).Int("want_h", v.height).
			Msg("frame size mismatch, dropping")
		return false
	}
	v.mu.Lock()
	if v.finished || v.err != nil {
		v.mu.Unlock()
		return false
	}
	v.mu.Unlock()

	select {
	case v.input <- queuedFrame{pix: frame.Pix, pts: pts}:
		return true
	default:
		return false
	}
}

// Appended is the count of frames accepted by the encoder.
func (v *VideoTrackWriter) Appended() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.appended
}

// Finish drains the input, flushes the encoder and closes the track file.
// It blocks until the last accepted frame is written.
func (v *VideoTrackWriter) Finish() error {
	v.mu.Lock()
	if v.finished {
		v.mu.Unlock()
		return nil
	}
	v.finished = true
	v.mu.Unlock()

	close(v.input)
	v.wg.Wait()
	v.sink.Close()

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *VideoTrackWriter) loop() {
	defer v.wg.Done()
	for f := range v.input {
		if err := v.sink.Write(f.pix); err != nil {
			v.mu.Lock()
			if v.err == nil {
				v.err = fmt.Errorf("encode frame: %w", err)
			}
			v.mu.Unlock()
			v.logger.Error().Err(err).Msg("frame write failed")
			continue
		}
		v.mu.Lock()
		v.appended++
		v.mu.Unlock()
	}
}

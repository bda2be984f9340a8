// Package recording owns the session state machine: it wires the capture
// sources into the composer, drives the track writers and produces the
// result descriptor.
package recording

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"windowcast.app/recorder/internal/capture"
	"windowcast.app/recorder/internal/config"
	"windowcast.app/recorder/internal/encode"
	"windowcast.app/recorder/internal/log"
	"windowcast.app/recorder/internal/render"
)

// statusInterval throttles observable-state updates to a rate suitable for
// a duration counter.
const statusInterval = 100 * time.Millisecond

// finalizeSettle is the brief wait for the filesystem to settle before the
// output file is measured.
const finalizeSettle = 50 * time.Millisecond

// Source and writer seams. The engine owns their lifetimes for one
// session; production constructors are installed by NewEngine and tests
// swap in fakes.
type frameStream interface {
	Frames() <-chan capture.Frame
	Err() error
	Stop()
}

type webcamSource interface {
	Start(device int) error
	Latest() (capture.Frame, bool)
	Stop()
}

type audioSource interface {
	Buffers() <-chan capture.AudioBuffer
	Err() error
	Stop() error
}

type videoWriter interface {
	TryAppend(frame *image.RGBA, pts time.Duration) bool
	Finish() error
}

type audioWriter interface {
	Write(pcm []byte) error
	Close() error
}

// Engine runs at most one recording session at a time. The composer and
// its render caches are engine-owned and reused across sessions.
type Engine struct {
	lister   capture.Lister
	perms    capture.Permissions
	sup      *capture.Supervisor
	composer *render.Composer

	newStream      func(win capture.WindowDescriptor, fps int, clock *capture.Clock) frameStream
	newWebcam      func(clock *capture.Clock) webcamSource
	newAudio       func(cfg capture.AudioConfig, clock *capture.Clock) (audioSource, error)
	newVideoWriter func(path string, w, h, fps int, codec string) (videoWriter, error)
	newAudioWriter func(path string, rate, channels int) (audioWriter, error)
	mux            func(ctx context.Context, videoPath, audioPath, outPath string, kbps int) error

	mu        sync.Mutex
	state     State
	sessionID string
	cfg       config.Recording
	clock     *capture.Clock
	stream    frameStream
	webcam    webcamSource
	audio     audioSource
	vw        videoWriter
	aw        audioWriter
	videoTmp  string
	audioTmp  string
	lastErr   string

	composed   atomic.Uint64
	appended   atomic.Uint64
	dropped    atomic.Uint64
	audioBufs  atomic.Uint64
	loops      sync.WaitGroup
	statusStop chan struct{}

	onStatus func(Status)

	logger zerolog.Logger
}

// NewEngine creates an idle engine using the system capture stack.
func NewEngine(lister capture.Lister, perms capture.Permissions, sup *capture.Supervisor, composer *render.Composer) *Engine {
	if composer == nil {
		composer = render.NewComposer()
	}
	e := &Engine{
		lister:   lister,
		perms:    perms,
		sup:      sup,
		composer: composer,
		state:    StateIdle,
		logger:   log.WithComponent("engine"),
	}
	e.newStream = func(win capture.WindowDescriptor, fps int, clock *capture.Clock) frameStream {
		return capture.StartWindowStream(win, fps, clock, lister)
	}
	e.newWebcam = func(clock *capture.Clock) webcamSource {
		return capture.NewWebcamSource(sup, clock)
	}
	e.newAudio = func(cfg capture.AudioConfig, clock *capture.Clock) (audioSource, error) {
		return capture.StartAudioSource(cfg, clock)
	}
	e.newVideoWriter = func(path string, w, h, fps int, codec string) (videoWriter, error) {
		return encode.NewVideoTrackWriter(path, w, h, fps, codec)
	}
	e.newAudioWriter = func(path string, rate, channels int) (audioWriter, error) {
		return encode.NewWAVWriter(path, rate, channels)
	}
	e.mux = encode.Mux
	return e
}

// SetStatusListener installs a callback invoked at the throttled status
// interval while a session is live. Must be set before StartRecording.
func (e *Engine) SetStatusListener(fn func(Status)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the current observable snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	s := Status{
		SessionID: e.sessionID,
		State:     e.state,
		LastError: e.lastErr,
		Stats: Stats{
			FramesComposed: e.composed.Load(),
			FramesAppended: e.appended.Load(),
			FramesDropped:  e.dropped.Load(),
			AudioBuffers:   e.audioBufs.Load(),
		},
	}
	if e.clock != nil && (e.state == StateRecording || e.state == StateFinalizing) {
		s.Elapsed = e.clock.Since()
	}
	return s
}

// Reset returns a Failed engine to Idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFailed {
		e.state = StateIdle
	}
}

// StartRecording arms and starts one session. Setup is sequential; any
// failure rolls everything back and leaves no partial file artifacts
// behind. A stale window ID or invalid configuration returns the engine
// to Idle for an immediate retry; permission refusal and writer or source
// creation failures land in Failed, cleared by Reset.
func (e *Engine) StartRecording(ctx context.Context, cfg config.Recording) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateArmed
	e.sessionID = uuid.NewString()
	e.lastErr = ""
	e.composed.Store(0)
	e.appended.Store(0)
	e.dropped.Store(0)
	e.audioBufs.Store(0)
	e.mu.Unlock()

	err := e.setup(ctx, cfg)
	if err != nil {
		e.mu.Lock()
		e.lastErr = err.Error()
		if errors.Is(err, ErrInvalidConfig) || errors.Is(err, capture.ErrWindowNotFound) {
			e.state = StateIdle
		} else {
			e.state = StateFailed
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Engine) setup(ctx context.Context, cfg config.Recording) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if e.perms != nil {
		if err := e.perms.Ensure(capture.PermissionScreen); err != nil {
			return err
		}
		if cfg.Webcam.Enabled {
			if err := e.perms.Ensure(capture.PermissionCamera); err != nil {
				return err
			}
		}
		if cfg.Audio.Enabled {
			if err := e.perms.Ensure(capture.PermissionMicrophone); err != nil {
				return err
			}
		}
	}

	win, err := capture.FindWindow(e.lister, cfg.WindowID)
	if err != nil {
		return err
	}

	// Freeze output dimensions. "Native" resolves to the canvas size the
	// composer will produce, rounded up to even pixels for the encoder.
	margin := int(float64(e.composer.Margin) * cfg.DeviceScale)
	if cfg.Output.Width == 0 {
		cfg.Output.Width = evenUp(win.Bounds.Dx() + 2*margin)
		cfg.Output.Height = evenUp(win.Bounds.Dy() + 2*margin)
	}

	clock := capture.NewClock()
	videoTmp := cfg.Output.Path + ".video.tmp.mp4"
	audioTmp := ""

	vw, err := e.newVideoWriter(videoTmp, cfg.Output.Width, cfg.Output.Height, cfg.Output.FPS, cfg.Output.Codec)
	if err != nil {
		_ = os.Remove(videoTmp)
		return err
	}

	var webcam webcamSource
	if cfg.Webcam.Enabled {
		webcam = e.newWebcam(clock)
		if err := webcam.Start(cfg.Webcam.Device); err != nil {
			_ = vw.Finish()
			_ = os.Remove(videoTmp)
			return fmt.Errorf("webcam: %w", err)
		}
	}

	var (
		audio audioSource
		aw    audioWriter
	)
	if cfg.Audio.Enabled {
		audioTmp = cfg.Output.Path + ".audio.tmp.wav"
		aw, err = e.newAudioWriter(audioTmp, config.SampleRate, config.Channels)
		if err == nil {
			// The audio source shares the session clock so both tracks
			// agree on t=0.
			audio, err = e.newAudio(capture.AudioConfig{
				Device:     cfg.Audio.Device,
				Gain:       cfg.Audio.Gain,
				SampleRate: config.SampleRate,
				Channels:   config.Channels,
			}, clock)
		}
		if err != nil {
			if aw != nil {
				_ = aw.Close()
			}
			if webcam != nil {
				webcam.Stop()
			}
			_ = vw.Finish()
			_ = os.Remove(videoTmp)
			_ = os.Remove(audioTmp)
			return fmt.Errorf("audio: %w", err)
		}
	}

	stream := e.newStream(win, cfg.Output.FPS, clock)

	e.mu.Lock()
	e.cfg = cfg
	e.clock = clock
	e.stream = stream
	e.webcam = webcam
	e.audio = audio
	e.vw = vw
	e.aw = aw
	e.videoTmp = videoTmp
	e.audioTmp = audioTmp
	e.state = StateRecording
	e.statusStop = make(chan struct{})
	e.mu.Unlock()

	e.loops.Add(1)
	go e.videoLoop(stream, webcam, cfg, vw)
	if audio != nil {
		e.loops.Add(1)
		go e.audioLoop(audio, aw)
	}
	go e.statusLoop()

	e.logger.Info().
		Str("session", e.sessionID).
		Uint64("window", win.ID).
		Int("fps", cfg.Output.FPS).
		Int("width", cfg.Output.Width).
		Int("height", cfg.Output.Height).
		Bool("webcam", cfg.Webcam.Enabled).
		Bool("audio", cfg.Audio.Enabled).
		Msg("recording started")
	return nil
}

// videoLoop is the single-threaded compositing and writing path. Capture
// callbacks hand frames off through the stream's queue; the webcam is
// sampled for its freshest frame and never waited on.
func (e *Engine) videoLoop(stream frameStream, webcam webcamSource, cfg config.Recording, vw videoWriter) {
	defer e.loops.Done()

	for frame := range stream.Frames() {
		var camFrame *image.RGBA
		if webcam != nil {
			if f, ok := webcam.Latest(); ok {
				camFrame = f.Pix
			}
		}

		canvas := e.composer.Compose(frame.Pix, cfg, camFrame)
		e.composed.Add(1)
		if canvas == nil {
			e.dropped.Add(1)
			continue
		}

		if vw.TryAppend(canvas, frame.PTS) {
			e.appended.Add(1)
		} else {
			// Encoder not ready: drop this tick's output, favoring
			// latency over completeness.
			e.dropped.Add(1)
		}
	}

	if err := stream.Err(); err != nil {
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
		e.logger.Warn().Err(err).Msg("window stream ended")
	}
}

func (e *Engine) audioLoop(audio audioSource, aw audioWriter) {
	defer e.loops.Done()

	for buf := range audio.Buffers() {
		if err := aw.Write(buf.Data); err != nil {
			e.logger.Warn().Err(err).Msg("audio write failed")
			continue
		}
		e.audioBufs.Add(1)
	}

	if err := audio.Err(); err != nil {
		// Losing the microphone degrades the session, it does not end it.
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
		e.logger.Warn().Err(err).Msg("audio source ended")
	}
}

func (e *Engine) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.statusStop:
			return
		case <-ticker.C:
			e.mu.Lock()
			fn := e.onStatus
			st := e.statusLocked()
			e.mu.Unlock()
			if fn != nil {
				fn(st)
			}
		}
	}
}

// StopRecording finalizes the session and returns the result descriptor.
// Every stop step proceeds best-effort: a failing source stop is logged
// and does not prevent writer finalization. The writer's finalize always
// completes before the result is constructed, so the file-size read never
// races in-flight writes.
func (e *Engine) StopRecording(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state != StateRecording {
		e.mu.Unlock()
		return nil, ErrNotRecording
	}
	e.state = StateFinalizing
	close(e.statusStop)
	stream := e.stream
	webcam := e.webcam
	audio := e.audio
	vw := e.vw
	aw := e.aw
	cfg := e.cfg
	clock := e.clock
	videoTmp := e.videoTmp
	audioTmp := e.audioTmp
	e.mu.Unlock()

	// Stop sources; each stop path is idempotent and tolerates sources
	// that already stopped themselves (device disconnect).
	var g errgroup.Group
	if webcam != nil {
		g.Go(func() error { webcam.Stop(); return nil })
	}
	if audio != nil {
		g.Go(func() error { return audio.Stop() })
	}
	g.Go(func() error { stream.Stop(); return nil })
	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Msg("source stop reported an error")
	}

	// Source channels are closed now; wait for the write loops to drain.
	e.loops.Wait()

	if err := vw.Finish(); err != nil {
		e.logger.Error().Err(err).Msg("video finalize failed")
	}
	if aw != nil {
		if err := aw.Close(); err != nil {
			e.logger.Error().Err(err).Msg("audio finalize failed")
		}
	}

	muxAudio := ""
	if aw != nil {
		muxAudio = audioTmp
	}
	if err := e.mux(ctx, videoTmp, muxAudio, cfg.Output.Path, cfg.Audio.Quality.BitrateKbps()); err != nil {
		e.logger.Error().Err(err).Msg("mux failed, keeping raw video track")
		if renameErr := os.Rename(videoTmp, cfg.Output.Path); renameErr != nil {
			e.logger.Error().Err(renameErr).Msg("fallback rename failed")
		}
	}
	_ = os.Remove(videoTmp)
	if audioTmp != "" {
		_ = os.Remove(audioTmp)
	}

	time.Sleep(finalizeSettle)

	var size int64
	if info, err := os.Stat(cfg.Output.Path); err == nil {
		size = info.Size()
	} else {
		e.logger.Warn().Err(err).Str("path", cfg.Output.Path).Msg("output stat failed")
	}

	result := &Result{
		Path:        cfg.Output.Path,
		Duration:    clock.Since(),
		SizeBytes:   size,
		CompletedAt: time.Now(),
	}

	e.mu.Lock()
	e.state = StateIdle
	e.stream = nil
	e.webcam = nil
	e.audio = nil
	e.vw = nil
	e.aw = nil
	e.mu.Unlock()

	e.logger.Info().
		Str("session", e.sessionID).
		Dur("duration", result.Duration).
		Int64("bytes", result.SizeBytes).
		Uint64("appended", e.appended.Load()).
		Uint64("dropped", e.dropped.Load()).
		Msg("recording finished")
	return result, nil
}

// ListWindows exposes the filtered enumeration snapshot to callers.
func (e *Engine) ListWindows(mode capture.ListMode) ([]capture.WindowDescriptor, error) {
	return capture.ListWindows(e.lister, e.perms, mode, os.Getpid())
}

func evenUp(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}

// OutputBaseName derives a default output filename in dir.
func OutputBaseName(dir, base string) string {
	return filepath.Join(dir, base+".mp4")
}

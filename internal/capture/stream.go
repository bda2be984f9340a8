package capture

import (
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog"

	"windowcast.app/recorder/internal/log"
)

const (
	// windowFrameQueue bounds the handoff between the capture tick and the
	// compositing path. When full, the oldest frame is dropped so the
	// capture tick never blocks.
	windowFrameQueue = 4

	// existenceCheckInterval is how often the stream re-enumerates to
	// verify the target window is still alive.
	existenceCheckInterval = time.Second
)

// grabber captures the pixels of a rectangle. Production uses the
// screenshot package; tests substitute synthetic frames.
type grabber func(bounds image.Rectangle) (*image.RGBA, error)

// WindowStream produces Frames for one window at a fixed rate until Stop is
// called or the window disappears.
type WindowStream struct {
	win    WindowDescriptor
	fps    int
	clock  *Clock
	lister Lister
	grab   grabber

	frames chan Frame
	done   chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	err     error
	dropped uint64

	logger zerolog.Logger
}

// StartWindowStream begins ticker-driven capture of the window at the
// target frame rate. Frame timestamps are anchored to the session clock;
// the first emitted frame carries PTS zero.
func StartWindowStream(win WindowDescriptor, fps int, clock *Clock, lister Lister) *WindowStream {
	return startWindowStream(win, fps, clock, lister, screenshot.CaptureRect)
}

func startWindowStream(win WindowDescriptor, fps int, clock *Clock, lister Lister, grab grabber) *WindowStream {
	if fps <= 0 {
		fps = 30
	}
	s := &WindowStream{
		win:    win,
		fps:    fps,
		clock:  clock,
		lister: lister,
		grab:   grab,
		frames: make(chan Frame, windowFrameQueue),
		done:   make(chan struct{}),
		logger: log.WithComponent("window-stream"),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Frames is the ordered frame channel. It is closed when the stream ends;
// check Err afterwards.
func (s *WindowStream) Frames() <-chan Frame {
	return s.frames
}

// Err reports why the stream ended. ErrWindowNotFound means the window
// disappeared mid-stream; nil means a clean Stop.
func (s *WindowStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped is the count of frames discarded because the consumer lagged.
func (s *WindowStream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Stop ends the stream. Safe to call more than once and after the stream
// already ended on its own.
func (s *WindowStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *WindowStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *WindowStream) loop() {
	defer s.wg.Done()
	defer close(s.frames)

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	var seq uint64
	anchored := false
	lastCheck := time.Now()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if time.Since(lastCheck) >= existenceCheckInterval && s.lister != nil {
				lastCheck = time.Now()
				current, err := FindWindow(s.lister, s.win.ID)
				if err != nil {
					s.fail(ErrWindowNotFound)
					return
				}
				// Follow live moves and resizes.
				s.win.Bounds = current.Bounds
			}

			img, err := s.grab(s.win.Bounds)
			if err != nil {
				s.logger.Debug().Err(err).Uint64("window", s.win.ID).Msg("capture failed, skipping tick")
				continue
			}

			var pts time.Duration
			if anchored {
				pts = s.clock.Since()
			}
			anchored = true

			frame := Frame{Pix: img, PTS: pts, Seq: seq}
			seq++

			select {
			case s.frames <- frame:
			default:
				// Queue full: drop oldest to keep the capture tick
				// non-blocking and latency low.
				select {
				case <-s.frames:
				default:
				}
				s.mu.Lock()
				s.dropped++
				s.mu.Unlock()
				select {
				case s.frames <- frame:
				default:
				}
			}
		}
	}
}

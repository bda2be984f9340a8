package capture

import (
	"fmt"
	"image"
	"sync"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/rs/zerolog"

	"windowcast.app/recorder/internal/log"
)

// camera abstracts the device handle so tests can run without hardware.
type camera interface {
	Read() bool
	FrameBuffer() []byte
	Width() int
	Height() int
	Close()
}

func openVidioCamera(device int) (camera, error) {
	cam, err := vidio.NewCamera(device)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// WebcamSource streams camera frames on its own goroutine at the device's
// native rate, independent of the video pipeline's clock. Consumers read
// the freshest available frame from a mailbox and never block on capture.
type WebcamSource struct {
	clock *Clock

	mu        sync.Mutex
	cam       camera
	capturing bool
	gen       int // bumped on every swap/stop so stale loops exit

	mailbox Mailbox[Frame]
	wg      sync.WaitGroup

	open func(device int) (camera, error)

	sup   *Supervisor
	supID uint64

	logger zerolog.Logger
}

// NewWebcamSource creates an idle source registered with the supervisor.
func NewWebcamSource(sup *Supervisor, clock *Clock) *WebcamSource {
	w := &WebcamSource{
		clock:  clock,
		open:   openVidioCamera,
		sup:    sup,
		logger: log.WithComponent("webcam"),
	}
	if sup != nil {
		w.supID = sup.register(w)
	}
	return w
}

// Start opens the device and begins capturing. Device is the platform
// camera index; 0 is the default camera.
func (w *WebcamSource) Start(device int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.capturing {
		return nil
	}
	cam, err := w.open(device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", device, err)
	}
	w.cam = cam
	w.capturing = true
	w.gen++
	w.spawnLocked(cam, w.gen)
	return nil
}

// SwitchDevice hot-swaps to another camera without leaving the capturing
// state. The old device is released only once the new one opened.
func (w *WebcamSource) SwitchDevice(device int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.capturing {
		return fmt.Errorf("webcam source is not capturing")
	}
	cam, err := w.open(device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", device, err)
	}
	old := w.cam
	w.cam = cam
	w.gen++
	w.spawnLocked(cam, w.gen)
	if old != nil {
		old.Close()
	}
	return nil
}

// Latest returns the most recent captured frame, if any.
func (w *WebcamSource) Latest() (Frame, bool) {
	return w.mailbox.Latest()
}

// IsCapturing reports whether the source currently owns a device.
func (w *WebcamSource) IsCapturing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capturing
}

// Stop releases the camera. Idempotent; also invoked by the supervisor's
// StopAll at process shutdown so the hardware indicator is released
// promptly.
func (w *WebcamSource) Stop() {
	w.mu.Lock()
	if !w.capturing {
		w.mu.Unlock()
		return
	}
	w.capturing = false
	w.gen++
	cam := w.cam
	w.cam = nil
	w.mu.Unlock()

	if cam != nil {
		cam.Close()
	}
	w.wg.Wait()
	w.mailbox.Clear()
	if w.sup != nil {
		w.sup.unregister(w.supID)
	}
}

func (w *WebcamSource) spawnLocked(cam camera, gen int) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		var seq uint64
		for cam.Read() {
			w.mu.Lock()
			stale := w.gen != gen
			w.mu.Unlock()
			if stale {
				return
			}

			buf := cam.FrameBuffer()
			img := image.NewRGBA(image.Rect(0, 0, cam.Width(), cam.Height()))
			copy(img.Pix, buf)
			w.mailbox.Put(Frame{Pix: img, PTS: w.clock.Since(), Seq: seq})
			seq++
		}
	}()
}

// Supervisor tracks every live webcam source in the process so that a
// single StopAll call at shutdown releases all camera hardware. Entries
// are non-owning and pruned when a source stops itself.
type Supervisor struct {
	mu      sync.Mutex
	nextID  uint64
	sources map[uint64]*WebcamSource
}

// NewSupervisor creates an empty registry.
func NewSupervisor() *Supervisor {
	return &Supervisor{sources: make(map[uint64]*WebcamSource)}
}

func (s *Supervisor) register(w *WebcamSource) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sources[s.nextID] = w
	return s.nextID
}

func (s *Supervisor) unregister(id uint64) {
	s.mu.Lock()
	delete(s.sources, id)
	s.mu.Unlock()
}

// Active returns the number of registered sources.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// StopAll stops every live source. Safe against sources that already
// stopped themselves.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	live := make([]*WebcamSource, 0, len(s.sources))
	for _, w := range s.sources {
		live = append(live, w)
	}
	s.mu.Unlock()

	for _, w := range live {
		w.Stop()
	}
}

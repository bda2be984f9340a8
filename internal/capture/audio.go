package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"windowcast.app/recorder/internal/log"
)

const (
	// audioChunkFrames is the number of sample frames read per buffer
	// (~85ms at 48kHz).
	audioChunkFrames = 4096

	audioBufferQueue = 256
)

// AudioConfig carries what the source needs from the session configuration.
type AudioConfig struct {
	Device     string // avfoundation audio device index, "" = default
	Gain       float64
	SampleRate int
	Channels   int
}

// AudioSource taps the microphone through an ffmpeg avfoundation subprocess
// emitting raw s16le. Buffers are gain-scaled and timestamped against the
// shared session clock: the first buffer is force-anchored to PTS zero,
// every later buffer carries elapsed time since session start.
//
// Device selection failures never abort capture. An unopenable device falls
// back to the default input at start; a device that opens but produces no
// samples (ffmpeg starts fine for an invalid avfoundation index and only
// then exits) is respawned as the default input from the read loop.
type AudioSource struct {
	cfg    AudioConfig
	clock  *Clock
	device string

	// open spawns the tap and returns its PCM stream. Production uses
	// ffmpeg; tests substitute scripted readers.
	open func(device string) (io.ReadCloser, error)

	buffers chan AudioBuffer

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	err    error

	logger zerolog.Logger
}

// StartAudioSource opens the microphone.
func StartAudioSource(cfg AudioConfig, clock *Clock) (*AudioSource, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("audio capture is not supported on %s", runtime.GOOS)
	}
	return startAudioSource(cfg, clock, nil)
}

func startAudioSource(cfg AudioConfig, clock *Clock, open func(string) (io.ReadCloser, error)) (*AudioSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if clock == nil {
		clock = NewClock()
	}

	s := &AudioSource{
		cfg:     cfg,
		clock:   clock,
		buffers: make(chan AudioBuffer, audioBufferQueue),
		done:    make(chan struct{}),
		logger:  log.WithComponent("audio"),
	}
	if open == nil {
		open = s.spawnFFmpeg
	}
	s.open = open

	device := cfg.Device
	if device == "" {
		device = "0"
	}
	stdout, err := s.open(device)
	if err != nil {
		if device == "0" {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("device", device).Msg("audio device unavailable, falling back to default input")
		device = "0"
		stdout, err = s.open(device)
		if err != nil {
			return nil, err
		}
	}
	s.device = device
	s.setReader(stdout)

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *AudioSource) spawnFFmpeg(device string) (io.ReadCloser, error) {
	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-f", "avfoundation",
		"-i", ":"+device,
		"-ac", fmt.Sprintf("%d", s.cfg.Channels),
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start audio tap: %w", err)
	}
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	return stdout, nil
}

func (s *AudioSource) setReader(r io.ReadCloser) {
	s.mu.Lock()
	s.stdout = r
	s.mu.Unlock()
}

func (s *AudioSource) reader() io.ReadCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout
}

// Buffers is the ordered buffer channel, closed when the source ends.
func (s *AudioSource) Buffers() <-chan AudioBuffer {
	return s.buffers
}

// Err reports why capture ended, nil for a clean Stop.
func (s *AudioSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop releases the microphone. Idempotent.
func (s *AudioSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		cmd := s.cmd
		stdout := s.stdout
		s.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		} else if stdout != nil {
			_ = stdout.Close()
		}
	})
	s.wg.Wait()
	return nil
}

func (s *AudioSource) loop() {
	defer s.wg.Done()
	defer close(s.buffers)
	defer s.waitCmd()

	chunk := audioChunkFrames * s.cfg.Channels * 2
	anchored := false
	var delivered uint64
	retried := s.device == "0" // no fallback left to try

	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf := make([]byte, chunk)
		n, err := io.ReadFull(s.reader(), buf)
		if n > 0 {
			applyGain(buf[:n], s.cfg.Gain)
			var pts time.Duration
			if anchored {
				pts = s.clock.Since()
			}
			anchored = true
			delivered++

			select {
			case s.buffers <- AudioBuffer{Data: buf[:n], PTS: pts}:
			case <-s.done:
				return
			}
		}
		if err != nil {
			// The tap ending before the first sample means the configured
			// device index was rejected at the avfoundation layer, not a
			// capture failure: respawn as the default input.
			if delivered == 0 && !retried {
				retried = true
				select {
				case <-s.done:
					return
				default:
				}
				s.waitCmd()
				s.logger.Warn().Err(err).Str("device", s.device).Msg("audio device produced no samples, falling back to default input")
				stdout, spawnErr := s.open("0")
				if spawnErr == nil {
					select {
					case <-s.done:
						// Stop raced the respawn; release the fresh tap
						// here since Stop saw the old one.
						_ = stdout.Close()
						s.killCmd()
						return
					default:
					}
					s.device = "0"
					s.setReader(stdout)
					continue
				}
				err = spawnErr
			}
			select {
			case <-s.done:
			default:
				s.mu.Lock()
				s.err = fmt.Errorf("audio tap ended: %w", err)
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *AudioSource) killCmd() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (s *AudioSource) waitCmd() {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()
	if cmd != nil {
		_ = cmd.Wait()
	}
}

// applyGain scales interleaved s16le samples in place. Gain 1.0 is a no-op;
// values are clamped to the int16 range.
func applyGain(buf []byte, gain float64) {
	if gain == 1.0 || len(buf) < 2 {
		return
	}
	if gain < 0 {
		gain = 0
	}
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(buf[i:]))
		scaled := float64(sample) * gain
		if scaled > 32767 {
			scaled = 32767
		}
		if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(scaled)))
	}
}

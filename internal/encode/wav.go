package encode

import (
	"encoding/binary"
	"fmt"
	"os"
)

// WAVWriter writes an s16le PCM track as a canonical RIFF/WAVE file. The
// header sizes are patched in on Close, so the file is only valid after a
// clean Close.
type WAVWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
}

// NewWAVWriter creates the track file and writes a placeholder header.
func NewWAVWriter(path string, sampleRate, channels int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	w := &WAVWriter{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends interleaved s16le sample bytes.
func (w *WAVWriter) Write(pcm []byte) error {
	n, err := w.f.Write(pcm)
	w.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Close patches the chunk sizes and closes the file.
func (w *WAVWriter) Close() error {
	if w.f == nil {
		return nil
	}
	defer func() { w.f = nil }()

	if _, err := w.f.Seek(0, 0); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize audio track: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close audio track: %w", err)
	}
	return nil
}

func (w *WAVWriter) writeHeader() error {
	blockAlign := w.channels * 2
	byteRate := w.sampleRate * blockAlign

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+w.dataBytes)
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], 16) // bits per sample
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], w.dataBytes)

	if _, err := w.f.Write(header); err != nil {
		return fmt.Errorf("write audio header: %w", err)
	}
	return nil
}

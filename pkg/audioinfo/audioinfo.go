// Package audioinfo decodes downloaded artifacts to check they are playable
// audio and to report their real length.
package audioinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

var ErrUnknownFormat = errors.New("unknown audio format")

// Info describes a decoded audio file.
type Info struct {
	Format     Format
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ProbeFile reads and decodes the file at path.
func ProbeFile(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Probe(data, filepath.Ext(path))
}

// Probe decodes data. ext is used only when the header is inconclusive.
func Probe(data []byte, ext string) (*Info, error) {
	switch Detect(data, ext) {
	case FormatWAV:
		return probeWAV(data)
	case FormatMP3:
		return probeMP3(data)
	}
	return nil, ErrUnknownFormat
}

// Detect sniffs the container from magic bytes, falling back to ext.
func Detect(data []byte, ext string) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	switch strings.ToLower(ext) {
	case ".mp3":
		return FormatMP3
	case ".wav":
		return FormatWAV
	}
	return ""
}

func probeWAV(data []byte) (*Info, error) {
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to get wav format: %w", err)
	}
	duration, err := reader.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to get wav duration: %w", err)
	}
	return &Info{
		Format:     FormatWAV,
		SampleRate: int(format.SampleRate),
		Channels:   int(format.NumChannels),
		Duration:   duration,
	}, nil
}

func probeMP3(data []byte) (*Info, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	// The decoder always emits 16-bit stereo, 4 bytes per frame.
	frames := decoder.Length() / 4
	var duration time.Duration
	if rate := decoder.SampleRate(); rate > 0 && frames > 0 {
		duration = time.Duration(frames) * time.Second / time.Duration(rate)
	}
	return &Info{
		Format:     FormatMP3,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		Duration:   duration,
	}, nil
}

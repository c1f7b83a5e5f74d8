// Package player plays downloaded artifacts on the local audio device.
package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/wachiwi/suno-sounds/pkg/audioinfo"
	"github.com/youpy/go-wav"
)

const (
	outputSampleRate = 44100
	outputChannels   = 2
)

// Player owns the process-wide oto context.
type Player struct {
	otoCtx *oto.Context
}

// New initializes the audio device at 44.1kHz stereo.
func New() (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   outputSampleRate,
		ChannelCount: outputChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return &Player{otoCtx: otoCtx}, nil
}

// PlayFile decodes path and blocks until playback ends or ctx is done.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sound file: %w", err)
	}

	pcmData, sampleRate, channelCount, err := Decode(fileData, filepath.Ext(path))
	if err != nil {
		return err
	}
	if sampleRate != outputSampleRate || channelCount != outputChannels {
		pcmData = Convert(pcmData, sampleRate, channelCount, outputSampleRate, outputChannels)
	}

	slog.Info("playing", "file", path)
	player := p.otoCtx.NewPlayer(bytes.NewReader(pcmData))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	slog.Info("finished playing", "file", path)
	return nil
}

// Decode turns an mp3 or wav file into 16-bit little-endian PCM.
func Decode(fileData []byte, ext string) (pcm []byte, sampleRate, channels int, err error) {
	switch audioinfo.Detect(fileData, ext) {
	case audioinfo.FormatWAV:
		wavReader := wav.NewReader(bytes.NewReader(fileData))
		format, err := wavReader.Format()
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to get wav format: %w", err)
		}
		if format.BitsPerSample != 16 {
			return nil, 0, 0, fmt.Errorf("unsupported wav bit depth %d", format.BitsPerSample)
		}
		wavReader = wav.NewReader(bytes.NewReader(fileData))
		pcm, err = io.ReadAll(wavReader)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode wav data: %w", err)
		}
		return pcm, int(format.SampleRate), int(format.NumChannels), nil

	case audioinfo.FormatMP3:
		decoder, err := mp3.NewDecoder(bytes.NewReader(fileData))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to create mp3 decoder: %w", err)
		}
		pcm, err = io.ReadAll(decoder)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode mp3 data: %w", err)
		}
		return pcm, decoder.SampleRate(), 2, nil
	}
	return nil, 0, 0, audioinfo.ErrUnknownFormat
}

// Convert upmixes mono to stereo and resamples with linear interpolation.
func Convert(pcmData []byte, fromRate, fromChannels, toRate, toChannels int) []byte {
	sampleCount := len(pcmData) / 2
	if sampleCount == 0 {
		return nil
	}
	samples := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*2 : i*2+2]))
	}

	stereoSamples := samples
	if fromChannels == 1 && toChannels == 2 {
		stereoSamples = make([]int16, sampleCount*2)
		for i := 0; i < sampleCount; i++ {
			stereoSamples[i*2] = samples[i]
			stereoSamples[i*2+1] = samples[i]
		}
	}

	resampledSamples := stereoSamples
	if fromRate != toRate && fromRate > 0 {
		ratio := float64(toRate) / float64(fromRate)
		frames := len(stereoSamples) / toChannels
		newFrames := int(float64(frames) * ratio)
		resampledSamples = make([]int16, newFrames*toChannels)

		// Interpolate per channel so left and right never bleed into each other.
		for i := 0; i < newFrames; i++ {
			srcPos := float64(i) / ratio
			srcIdx := int(srcPos)
			frac := srcPos - float64(srcIdx)
			for ch := 0; ch < toChannels; ch++ {
				if srcIdx >= frames-1 {
					resampledSamples[i*toChannels+ch] = stereoSamples[(frames-1)*toChannels+ch]
					continue
				}
				sample1 := float64(stereoSamples[srcIdx*toChannels+ch])
				sample2 := float64(stereoSamples[(srcIdx+1)*toChannels+ch])
				resampledSamples[i*toChannels+ch] = int16(sample1 + (sample2-sample1)*frac)
			}
		}
	}

	result := make([]byte, len(resampledSamples)*2)
	for i, sample := range resampledSamples {
		binary.LittleEndian.PutUint16(result[i*2:i*2+2], uint16(sample))
	}
	return result
}

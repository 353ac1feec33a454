package audio

import (
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
)

// Limits of supported formats.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinBufferSize = 16
	MaxBufferSize = 16384
)

var (
	// ErrInvalidSampleRate is returned when sample rate is out of range.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrInvalidBufferSize is returned when buffer size is out of range.
	ErrInvalidBufferSize = errors.New("invalid buffer size")
)

// Format defines the stream format of a soundcard.
type Format struct {
	SampleRate int
	BufferSize int
}

// Validate returns configuration error if format is not supported.
func (f Format) Validate() error {
	if f.SampleRate < MinSampleRate || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, f.SampleRate)
	}
	if f.BufferSize < MinBufferSize || f.BufferSize > MaxBufferSize {
		return fmt.Errorf("%w: %d", ErrInvalidBufferSize, f.BufferSize)
	}
	return nil
}

// Frequency returns the number of buffers per second.
func (f Format) Frequency() float64 {
	if f.BufferSize == 0 {
		return 0
	}
	return float64(f.SampleRate) / float64(f.BufferSize)
}

// Audio returns go-audio format for provided number of channels.
func (f Format) Audio(numChannels int) *goaudio.Format {
	return &goaudio.Format{
		NumChannels: numChannels,
		SampleRate:  f.SampleRate,
	}
}

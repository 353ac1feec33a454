// Package wav loads waves of tracks from wav files and saves captured
// output.
package wav

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/sequencer/signal"
)

const (
	// chunk is the number of frames decoded at once.
	chunk = 4096
	pcm   = 1
)

var (
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 bit depth is supported")
)

// Load decodes the wav file. It returns non-interleaved samples and the
// sample rate of the file.
func Load(path string) (signal.Float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	if decoder.BitDepth != signal.BitDepth16 {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, decoder.BitDepth)
	}
	numChannels := decoder.Format().NumChannels
	ib := &audio.IntBuffer{
		Format:         decoder.Format(),
		Data:           make([]int, chunk*numChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	result := signal.Allocate(numChannels, 0)
	for {
		read, err := decoder.PCMBuffer(ib)
		if err != nil {
			return nil, 0, err
		}
		if read == 0 {
			break
		}
		result = result.Append(floats(ib.Data[:read], numChannels))
	}
	return result, int(decoder.SampleRate), nil
}

// floats converts interleaved 16 bit samples.
func floats(data []int, numChannels int) signal.Float64 {
	result := signal.Allocate(numChannels, len(data)/numChannels)
	for i, v := range data[:len(data)/numChannels*numChannels] {
		result[i%numChannels][i/numChannels] = float64(v) / 0x8000
	}
	return result
}

// Save encodes captured samples into 16 bit wav file.
func Save(path string, b *audio.FloatBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	e := wav.NewEncoder(f, b.Format.SampleRate, signal.BitDepth16, b.Format.NumChannels, pcm)
	if err := e.Write(signal.IntBuffer(b)); err != nil {
		f.Close()
		return err
	}
	if err := e.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

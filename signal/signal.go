// Package signal provides buffer helpers for streaming: clearing, mixing,
// gain, fractional frame offsets and conversion to go-audio buffers.
package signal

import (
	"math"
	"time"

	"github.com/cwbudde/algo-vecmath"
	"github.com/go-audio/audio"
)

// Float64 is a non-interleaved float64 signal.
type Float64 [][]float64

// BitDepth16 is used when captured signal is converted to ints.
const BitDepth16 = 16

// Allocate returns an empty buffer of specified dimensions.
func Allocate(numChannels, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// NumChannels returns number of channels in this sample slice.
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice.
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Append buffers to existing one. New buffer is returned if floats is nil.
func (floats Float64) Append(source Float64) Float64 {
	if floats == nil {
		floats = make([][]float64, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float64, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Clear sets all samples of the buffer to silence.
func (floats Float64) Clear() {
	for i := range floats {
		Clear(floats[i])
	}
}

// Clear sets all samples to silence.
func Clear(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// Mix adds src into dst. Only the common length is mixed.
func Mix(dst, src []float64) {
	n := min(len(dst), len(src))
	if n == 0 {
		return
	}
	vecmath.AddBlockInPlace(dst[:n], src[:n])
}

// Gain scales buf in place.
func Gain(buf []float64, gain float64) {
	if len(buf) == 0 || gain == 1 {
		return
	}
	vecmath.ScaleBlock(buf, buf, gain)
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// FramesBetween returns the number of frames between two fractional
// beat-tick positions. The result is rounded to the nearest frame, a
// negative distance returns zero.
func FramesBetween(from, to, framesPerTick float64) int {
	if to <= from || framesPerTick <= 0 {
		return 0
	}
	return int(math.Round((to - from) * framesPerTick))
}

// BuffersFor returns the number of buffers needed to hold frames that
// start at offset in the first buffer.
func BuffersFor(offset, frames, bufferSize int) int {
	if bufferSize <= 0 || frames <= 0 {
		return 0
	}
	return (offset + frames + bufferSize - 1) / bufferSize
}

// FloatBuffer converts the signal into interleaved go-audio buffer.
func (floats Float64) FloatBuffer(sampleRate int) *audio.FloatBuffer {
	numChannels := floats.NumChannels()
	size := floats.Size()
	data := make([]float64, size*numChannels)
	for c := range floats {
		for i, v := range floats[c] {
			data[i*numChannels+c] = v
		}
	}
	return &audio.FloatBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data: data,
	}
}

// FromFloatBuffer converts interleaved go-audio buffer to non-interleaved
// signal.
func FromFloatBuffer(b *audio.FloatBuffer) Float64 {
	if b == nil || b.Format == nil || b.Format.NumChannels == 0 {
		return nil
	}
	numChannels := b.Format.NumChannels
	size := int(math.Ceil(float64(len(b.Data)) / float64(numChannels)))
	floats := Allocate(numChannels, size)
	for i, v := range b.Data {
		floats[i%numChannels][i/numChannels] = v
	}
	return floats
}

// AppendInterleaved appends non-interleaved frames to interleaved go-audio
// buffer. Channels missing in src are filled with silence.
func AppendInterleaved(dst *audio.FloatBuffer, src Float64) {
	numChannels := dst.Format.NumChannels
	size := src.Size()
	for i := 0; i < size; i++ {
		for c := 0; c < numChannels; c++ {
			var v float64
			if c < len(src) && i < len(src[c]) {
				v = src[c][i]
			}
			dst.Data = append(dst.Data, v)
		}
	}
}

// IntBuffer converts captured samples to 16 bit ints.
func IntBuffer(b *audio.FloatBuffer) *audio.IntBuffer {
	ints := &audio.IntBuffer{
		Format:         b.Format,
		Data:           make([]int, len(b.Data)),
		SourceBitDepth: BitDepth16,
	}
	multiplier := float64(math.MaxInt16 - 1)
	for i, v := range b.Data {
		ints.Data[i] = int(math.Max(-1, math.Min(1, v)) * multiplier)
	}
	return ints
}

package audio

import (
	"sync"

	"pipelined.dev/sequencer/signal"
)

// Asset is decoded audio data. It's used as a source of wave clips.
type Asset struct {
	data signal.Float64
}

// NewAsset creates new asset from signal.Float64 buffer.
func NewAsset(floats signal.Float64) *Asset {
	return &Asset{data: floats}
}

// Data returns asset's data.
func (a *Asset) Data() signal.Float64 {
	if a == nil {
		return nil
	}
	return a.data
}

// NumChannels returns a number of channels of the asset data.
func (a *Asset) NumChannels() int {
	if a == nil || a.data == nil {
		return 0
	}
	return a.data.NumChannels()
}

// Clip represents a segment of an asset. It refers to an asset, but it's
// not a copy.
type Clip struct {
	*Asset
	Start int
	Len   int
}

// Clip creates a new clip from asset with defined start and length.
//
// if start >= asset size or start < 0, empty clip is returned
// if start + len >= asset size, len is decreased till the end of asset
func (a *Asset) Clip(start int, len int) Clip {
	size := a.data.Size()
	if a.data == nil || start >= size || start < 0 {
		return Clip{}
	}
	if start+len >= size {
		len = size - start
	}
	return Clip{
		Asset: a,
		Start: start,
		Len:   len,
	}
}

// Wave is an arrangement of clips placed at frame positions. Overlapping
// clips are resolved when added: the latest clip wins.
type Wave struct {
	mu   sync.RWMutex
	head *placed
	tail *placed
}

// placed is a clip at a frame in the ordered list of the wave.
type placed struct {
	Clip
	at         int
	prev, next *placed
}

// end returns the frame after the clip.
func (p *placed) end() int {
	return p.at + p.Len
}

// NewWave returns a wave with an asset clip per provided line data placed
// at the first frame.
func NewWave(data signal.Float64) *Wave {
	w := Wave{}
	if data.NumChannels() > 0 {
		w.place(0, NewAsset(data).Clip(0, data.Size()))
	}
	return &w
}

// AddClip places a clip at provided frame.
func (w *Wave) AddClip(at int, c Clip) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.place(at, c)
}

// Len returns the frame after the last clip.
func (w *Wave) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.tail == nil {
		return 0
	}
	return w.tail.end()
}

// BufferAt returns samples of the line in [index, index+bufferSize).
// Gaps between clips are silent.
func (w *Wave) BufferAt(line, index, bufferSize int) []float64 {
	result := make([]float64, bufferSize)
	w.mu.RLock()
	defer w.mu.RUnlock()
	last := index + bufferSize
	for p := w.head; p != nil && p.at < last; p = p.next {
		if p.end() <= index || line >= p.NumChannels() {
			continue
		}
		from, to := max(index, p.at), min(last, p.end())
		offset := p.Start - p.at
		copy(result[from-index:to-index], p.data[line][from+offset:to+offset])
	}
	return result
}

// place links the clip before the first clip that starts at or after the
// frame and trims its neighbours.
func (w *Wave) place(at int, c Clip) {
	if c.Asset == nil {
		return
	}
	p := &placed{Clip: c, at: at}
	next := w.head
	for next != nil && next.at < at {
		next = next.next
	}
	if next != nil {
		p.prev = next.prev
		next.prev = p
	} else {
		p.prev = w.tail
		w.tail = p
	}
	if p.prev != nil {
		p.prev.next = p
	} else {
		w.head = p
	}
	p.next = next
	w.trimNext(p)
	w.trimPrev(p)
}

// trimNext cuts the heads of following clips covered by p. Fully covered
// clips are unlinked.
func (w *Wave) trimNext(p *placed) {
	for next := p.next; next != nil; next = p.next {
		overlap := p.end() - next.at
		if overlap <= 0 {
			return
		}
		if next.Len > overlap {
			next.Start += overlap
			next.Len -= overlap
			next.at += overlap
			return
		}
		p.next = next.next
		if p.next != nil {
			p.next.prev = p
		} else {
			w.tail = p
		}
	}
}

// trimPrev cuts the tail of the previous clip covered by p. If previous
// clip lasts after p, its rest is placed after p.
func (w *Wave) trimPrev(p *placed) {
	prev := p.prev
	if prev == nil {
		return
	}
	overlap := prev.end() - p.at
	if overlap <= 0 {
		return
	}
	prev.Len -= overlap
	if rest := overlap - p.Len; rest > 0 {
		at := p.end()
		w.place(at, prev.Asset.Clip(prev.Start+at-prev.at, rest))
	}
}

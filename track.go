package sequencer

import (
	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/recall"
)

// Track is an audio together with its recall container.
type Track struct {
	name      string
	audio     *audio.Audio
	container *recall.Container
}

// Name returns track name.
func (t *Track) Name() string {
	return t.name
}

// Audio returns the audio of the track.
func (t *Track) Audio() *audio.Audio {
	return t.audio
}

// Container returns the recall container of the track.
func (t *Track) Container() *recall.Container {
	return t.container
}

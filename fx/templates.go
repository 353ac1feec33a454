package fx

import (
	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
)

// Control ports.
const (
	PortLoop      = "loop"
	PortLoopStart = "loop-start"
	PortLoopEnd   = "loop-end"
	PortKey       = "key"
	PortVelocity  = "velocity"
	PortLength    = "length"
	PortVolume    = "volume"
	PortTune      = "tune"
	PortMix       = "mix"
	PortDepth     = "depth"
	PortSpeed     = "speed"
	PortGain      = "gain"
)

var (
	allScopes = audio.Scopes()
	// scopes where notes are synthesized.
	noteScopes = []audio.SoundScope{audio.Sequencer, audio.NotationScope, audio.MIDI}
)

// Templates returns templates of all built-in processing units in
// instantiation order. Every call returns new templates.
func Templates() []*recall.Template {
	return []*recall.Template{
		{
			Name:   "delay",
			Kind:   recall.Delay,
			Level:  recall.AudioLevel,
			Scopes: []audio.SoundScope{audio.Sequencer, audio.NotationScope, audio.WaveScope, audio.MIDI},
			New:    newDelay,
		},
		{
			Name:   "count-beats",
			Kind:   recall.CountBeats,
			Level:  recall.AudioLevel,
			Scopes: []audio.SoundScope{audio.Sequencer, audio.NotationScope},
			Ports: []plugin.Port{
				{Name: PortLoop, Min: 0, Max: 1, Default: 1},
				{Name: PortLoopStart, Min: 0, Max: 1 << 16, Default: 0},
				{Name: PortLoopEnd, Min: 1, Max: 1 << 16, Default: 16},
			},
			Dependencies: []recall.Dependency{{Kind: recall.Delay}},
			New:          newCountBeats,
		},
		{
			Name:   "play-notation",
			Kind:   recall.PlayNotation,
			Level:  recall.AudioLevel,
			Scopes: []audio.SoundScope{audio.NotationScope},
			Dependencies: []recall.Dependency{
				{Kind: recall.Delay},
				{Kind: recall.CountBeats},
			},
			New: newPlayNotation,
		},
		{
			Name:         "play-wave",
			Kind:         recall.PlayWave,
			Level:        recall.AudioLevel,
			Scopes:       []audio.SoundScope{audio.WaveScope},
			Dependencies: []recall.Dependency{{Kind: recall.Delay, Optional: true}},
			New:          newPlayWave,
		},
		{
			Name:         "record-midi",
			Kind:         recall.RecordMIDI,
			Level:        recall.AudioLevel,
			Scopes:       []audio.SoundScope{audio.MIDI},
			Dependencies: []recall.Dependency{{Kind: recall.Delay}},
			New:          newRecordMIDI,
		},
		{
			Name:       "capture",
			Kind:       recall.Capture,
			Level:      recall.AudioLevel,
			Scopes:     []audio.SoundScope{audio.WaveScope},
			Persistent: true,
			New:        newCapture,
		},
		{
			Name:   "stream",
			Kind:   recall.Stream,
			Level:  recall.RecyclingLevel,
			Scopes: allScopes,
			New:    newStream,
		},
		{
			Name:         "play",
			Kind:         recall.Play,
			Level:        recall.ChannelLevel,
			Direction:    audio.Output,
			Scopes:       allScopes,
			Dependencies: []recall.Dependency{{Kind: recall.Stream, PerRecycling: true}},
			New:          newPlay,
		},
		{
			Name:      "copy-pattern",
			Kind:      recall.CopyPattern,
			Level:     recall.ChannelLevel,
			Direction: audio.Input,
			Scopes:    []audio.SoundScope{audio.Sequencer},
			Ports: []plugin.Port{
				{Name: PortKey, Min: 0, Max: 127, Default: 60},
				{Name: PortVelocity, Min: 0, Max: 127, Default: 100},
				{Name: PortLength, Min: 0, Max: 1 << 16, Default: 1},
			},
			Dependencies: []recall.Dependency{
				{Kind: recall.Delay},
				{Kind: recall.CountBeats},
			},
			New: newCopyPattern,
		},
		{
			Name:      "synth",
			Kind:      recall.Synth,
			Level:     recall.ChannelLevel,
			Direction: audio.Input,
			Scopes:    noteScopes,
			Ports: []plugin.Port{
				{Name: PortTune, Min: -24, Max: 24, Default: 0},
				{Name: PortVolume, Min: 0, Max: 1, Default: 0.5},
			},
			New: newSynth,
		},
		{
			Name:      "chorus",
			Kind:      recall.Chorus,
			Level:     recall.ChannelLevel,
			Direction: audio.Input,
			Scopes:    noteScopes,
			Ports: []plugin.Port{
				{Name: PortMix, Min: 0, Max: 1, Default: 0.5},
				{Name: PortDepth, Min: 0, Max: 0.02, Default: 0.002},
				{Name: PortSpeed, Min: 0.01, Max: 10, Default: 0.5},
			},
			Dependencies: []recall.Dependency{{Kind: recall.Synth}},
			New:          newChorus,
		},
		{
			Name:      "volume",
			Kind:      recall.Volume,
			Level:     recall.ChannelLevel,
			Direction: audio.Input,
			Scopes:    allScopes,
			Ports: []plugin.Port{
				{Name: PortGain, Min: 0, Max: 2, Default: 1},
			},
			New: newVolume,
		},
	}
}

// PluginTemplate returns template of the plugin unit. It processes input
// channels in all scopes.
func PluginTemplate(d plugin.Descriptor) *recall.Template {
	var ports []plugin.Port
	for _, p := range d.Ports {
		if p.Direction == plugin.PortInput {
			ports = append(ports, p)
		}
	}
	return &recall.Template{
		Name:      d.Specifier,
		Kind:      recall.Plugin,
		Level:     recall.ChannelLevel,
		Direction: audio.Input,
		Scopes:    allScopes,
		Ports:     ports,
		New:       newPlugin,
	}
}

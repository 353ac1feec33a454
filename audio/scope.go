package audio

// SoundScope is a playback mode of an invocation.
type SoundScope int

// Sound scopes.
const (
	Playback SoundScope = iota
	Sequencer
	NotationScope
	WaveScope
	MIDI
)

var scopeNames = [...]string{
	Playback:      "playback",
	Sequencer:     "sequencer",
	NotationScope: "notation",
	WaveScope:     "wave",
	MIDI:          "midi",
}

// Scopes returns all sound scopes.
func Scopes() []SoundScope {
	return []SoundScope{Playback, Sequencer, NotationScope, WaveScope, MIDI}
}

func (s SoundScope) String() string {
	if s < 0 || int(s) >= len(scopeNames) {
		return "unknown"
	}
	return scopeNames[s]
}

// ParseScope returns scope by its name.
func ParseScope(name string) (SoundScope, bool) {
	for i, n := range scopeNames {
		if n == name {
			return SoundScope(i), true
		}
	}
	return 0, false
}

// Direction of a channel.
type Direction int

// Channel directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

package recall

import "fmt"

// Kind is a processing-unit family.
type Kind int

// Processing-unit families.
const (
	Delay Kind = iota
	CountBeats
	CopyPattern
	PlayNotation
	PlayWave
	Synth
	Chorus
	Volume
	Stream
	Play
	Capture
	RecordMIDI
	Plugin
)

var kindNames = [...]string{
	Delay:        "delay",
	CountBeats:   "count-beats",
	CopyPattern:  "copy-pattern",
	PlayNotation: "play-notation",
	PlayWave:     "play-wave",
	Synth:        "synth",
	Chorus:       "chorus",
	Volume:       "volume",
	Stream:       "stream",
	Play:         "play",
	Capture:      "capture",
	RecordMIDI:   "record-midi",
	Plugin:       "plugin",
}

// Kinds returns all processing-unit families.
func Kinds() []Kind {
	result := make([]Kind, len(kindNames))
	for i := range kindNames {
		result[i] = Kind(i)
	}
	return result
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Level is the anchor of a run: the audio, a channel or a recycling.
type Level int

// Run levels.
const (
	AudioLevel Level = iota
	ChannelLevel
	RecyclingLevel
)

func (l Level) String() string {
	switch l {
	case AudioLevel:
		return "audio"
	case ChannelLevel:
		return "channel"
	case RecyclingLevel:
		return "recycling"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// State is a state of the run.
type State int

// Run states.
const (
	Created State = iota
	Resolving
	Resolved
	Running
	Paused
	Done
	Removed
)

var stateNames = [...]string{
	Created:   "created",
	Resolving: "resolving",
	Resolved:  "resolved",
	Running:   "running",
	Paused:    "paused",
	Done:      "done",
	Removed:   "removed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// transitions lists legal target states.
var transitions = map[State][]State{
	Created:   {Resolving, Removed},
	Resolving: {Resolved, Removed},
	Resolved:  {Running, Removed},
	Running:   {Paused, Done, Removed},
	Paused:    {Running, Done, Removed},
	Done:      {Removed},
}

func (s State) canTransit(to State) bool {
	for _, legal := range transitions[s] {
		if legal == to {
			return true
		}
	}
	return false
}

// resolvable reports if run in this state can be a dependency target.
func (s State) resolvable() bool {
	return s == Resolved || s == Running || s == Paused
}

// NotifyKind is a counter kind of the dependency notification.
type NotifyKind int

// Dependency notification counters. NotifyRun, NotifyAudioRun and
// NotifyChannelRun count bindings of recycling, audio and channel level
// dependents. NotifyAudio and NotifyChannel count started dependents.
const (
	NotifyRun NotifyKind = iota
	NotifyAudio
	NotifyAudioRun
	NotifyChannel
	NotifyChannelRun
	notifyKinds
)

func (k NotifyKind) String() string {
	switch k {
	case NotifyRun:
		return "run"
	case NotifyAudio:
		return "audio"
	case NotifyAudioRun:
		return "audio-run"
	case NotifyChannel:
		return "channel"
	case NotifyChannelRun:
		return "channel-run"
	}
	return fmt.Sprintf("notify(%d)", int(k))
}

// bindNotify returns the counter a dependent of the level increases on
// bind.
func bindNotify(l Level) NotifyKind {
	switch l {
	case AudioLevel:
		return NotifyAudioRun
	case ChannelLevel:
		return NotifyChannelRun
	}
	return NotifyRun
}

// liveNotify returns the counter a dependent of the level increases
// while it's started.
func liveNotify(l Level) NotifyKind {
	if l == AudioLevel {
		return NotifyAudio
	}
	return NotifyChannel
}

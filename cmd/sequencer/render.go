package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"slices"

	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer"
	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
	sig "pipelined.dev/sequencer/signal"
	"pipelined.dev/sequencer/task"
	"pipelined.dev/sequencer/wav"
)

const trackName = "track"

var errNoWave = errors.New("wave scope requires -in flag")

type renderCommand struct {
	config   string
	scope    string
	lines    int
	pads     int
	buffers  int
	patterns stringList
	in       string
	out      string
	verbose  bool
}

func (cmd *renderCommand) Name() string {
	return "render"
}

func (cmd *renderCommand) Help() string {
	return "Render a track offline"
}

func (cmd *renderCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.config, "config", "", "configuration file")
	fs.StringVar(&cmd.scope, "scope", audio.Sequencer.String(), "sound scope to play")
	fs.IntVar(&cmd.lines, "lines", 1, "number of audio channels")
	fs.IntVar(&cmd.pads, "pads", 1, "number of input pads")
	fs.IntVar(&cmd.buffers, "buffers", 100, "number of buffers to render")
	fs.Var(&cmd.patterns, "pattern", "comma separated step patterns of pads, x is a set step")
	fs.StringVar(&cmd.in, "in", "", "wav file played in wave scope")
	fs.StringVar(&cmd.out, "out", "", "wav file to save rendered output")
	fs.BoolVar(&cmd.verbose, "v", false, "verbose logging")
}

func (cmd *renderCommand) Run(w io.Writer) error {
	scope, ok := audio.ParseScope(cmd.scope)
	if !ok {
		return fmt.Errorf("unknown scope: %s", cmd.scope)
	}
	c, err := loadConfig(cmd.config)
	if err != nil {
		return err
	}
	logger := log.GetLogger()
	if cmd.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	m := metric.New(c.Name)
	e, err := sequencer.New(nil,
		sequencer.WithConfig(c),
		sequencer.WithLogger(logger),
		sequencer.WithMetric(m),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	tasks, err := cmd.tasks(e, scope)
	if err != nil {
		return err
	}
	p := e.StartPlayback(trackName, scope)
	e.SubmitBatch(append(tasks, p)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	captured, err := render(ctx, e, p, cmd.buffers)
	if err != nil {
		return err
	}

	frames := captured.NumFrames()
	fmt.Fprintf(w, "Rendered %d frames (%v), peak %.3f\n",
		frames, sig.DurationOf(c.SampleRate, int64(frames)), peak(captured))
	snapshot := m.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, " %s: %v\n", name, snapshot[name])
	}
	if cmd.out != "" {
		return wav.Save(cmd.out, captured)
	}
	return nil
}

// tasks returns tasks that set up the track.
func (cmd *renderCommand) tasks(e *sequencer.Engine, scope audio.SoundScope) ([]task.Task, error) {
	lines := cmd.lines
	var wave *audio.Wave
	if scope == audio.WaveScope {
		if cmd.in == "" {
			return nil, errNoWave
		}
		data, _, err := wav.Load(cmd.in)
		if err != nil {
			return nil, err
		}
		lines = max(lines, data.NumChannels())
		wave = audio.NewWave(data)
	}
	tasks := []task.Task{e.AddTrack(trackName, lines, max(cmd.pads, len(cmd.patterns)))}
	for pad, p := range cmd.patterns {
		tasks = append(tasks, e.SetPattern(trackName, pad, parsePattern(p)))
	}
	if wave != nil {
		tasks = append(tasks, e.SetWave(trackName, wave))
	}
	return tasks, nil
}

// render streams buffers on the caller goroutine and captures the
// output of the track. It stops early when playback is done.
func render(ctx context.Context, e *sequencer.Engine, p *sequencer.Playback, buffers int) (*goaudio.FloatBuffer, error) {
	var captured *goaudio.FloatBuffer
loop:
	for i := 0; i < buffers; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.RunTasks(ctx)
		select {
		case <-p.Done():
			if err := p.Err(); err != nil {
				return nil, err
			}
			break loop
		default:
		}
		e.Stream(ctx)
		t := e.Track(trackName)
		if captured == nil {
			captured = &goaudio.FloatBuffer{
				Format: e.Format().Audio(t.Audio().AudioChannels()),
			}
		}
		outputs := t.Audio().Outputs()
		floats := make(sig.Float64, len(outputs))
		for l, out := range outputs {
			floats[l] = out.Buffer()
		}
		sig.AppendInterleaved(captured, floats)
	}
	if captured == nil {
		captured = &goaudio.FloatBuffer{Format: e.Format().Audio(1)}
	}
	return captured, nil
}

func parsePattern(s string) *audio.Pattern {
	steps := make([]bool, len(s))
	for i, c := range s {
		steps[i] = c == 'x' || c == 'X'
	}
	return audio.NewPattern(steps...)
}

func peak(b *goaudio.FloatBuffer) float64 {
	var result float64
	for _, v := range b.Data {
		result = math.Max(result, math.Abs(v))
	}
	return result
}

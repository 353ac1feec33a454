package fx

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects/modulation"

	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

// Chorus modulates the recycling mix of its input channel. It's bypassed
// while the synth of the channel has no voices.
type Chorus struct {
	base
	chorus   *modulation.Chorus
	bypassed bool
}

func newChorus(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	ch, err := modulation.NewChorus()
	if err != nil {
		return nil, err
	}
	if err := ch.SetSampleRate(float64(r.Audio().Format().SampleRate)); err != nil {
		return nil, err
	}
	c := Chorus{
		base:     newBase(r),
		chorus:   ch,
		bypassed: true,
	}
	if err := c.configure(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Process implements recall.Processor.
func (c *Chorus) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost applies chorus to the recycling buffer.
func (c *Chorus) ProcessPost(*recall.StreamContext) error {
	synth, ok := dependency[*Synth](c.run, recall.Synth)
	if !ok || synth.Voices() == 0 {
		if !c.bypassed {
			c.chorus.Reset()
			c.bypassed = true
		}
		return nil
	}
	if c.bypassed {
		if err := c.configure(); err != nil {
			return err
		}
		c.bypassed = false
	}
	rc := c.run.Channel().Recycling()
	if rc == nil {
		return nil
	}
	c.chorus.ProcessInPlace(rc.Buffer())
	return nil
}

// Bypassed reports if chorus didn't process the last buffer.
func (c *Chorus) Bypassed() bool {
	return c.bypassed
}

// configure applies port values.
func (c *Chorus) configure() error {
	if err := c.chorus.SetMix(c.controls.Value(PortMix)); err != nil {
		return fmt.Errorf("chorus mix: %w", err)
	}
	if err := c.chorus.SetDepth(c.controls.Value(PortDepth)); err != nil {
		return fmt.Errorf("chorus depth: %w", err)
	}
	if err := c.chorus.SetSpeedHz(c.controls.Value(PortSpeed)); err != nil {
		return fmt.Errorf("chorus speed: %w", err)
	}
	return nil
}

// Volume scales the recycling mix of its input channel.
type Volume struct {
	base
}

func newVolume(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &Volume{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (v *Volume) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost applies gain to the recycling buffer.
func (v *Volume) ProcessPost(*recall.StreamContext) error {
	rc := v.run.Channel().Recycling()
	if rc == nil {
		return nil
	}
	if gain := v.controls.Value(PortGain); gain != 1 {
		signal.Gain(rc.Buffer(), gain)
	}
	return nil
}

// Plugin processes the recycling mix of its input channel with an
// externally loaded unit.
type Plugin struct {
	base
	instance *plugin.Instance
}

func newPlugin(r *recall.Run, env recall.Env) (recall.Processor, error) {
	if env.Loader == nil {
		return nil, ErrNoLoader
	}
	u, err := env.Loader.Load(r.Template().Name)
	if err != nil {
		return nil, err
	}
	i := plugin.NewInstance(u)
	f := r.Audio().Format()
	if err := i.Activate(f.SampleRate, f.BufferSize); err != nil {
		_ = i.Close()
		return nil, err
	}
	return &Plugin{
		base:     newBase(r),
		instance: i,
	}, nil
}

// Process implements recall.Processor.
func (p *Plugin) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost processes the recycling buffer with the unit.
func (p *Plugin) ProcessPost(*recall.StreamContext) error {
	rc := p.run.Channel().Recycling()
	if rc == nil {
		return nil
	}
	return p.instance.Process(rc.Buffer())
}

// Flush implements recall.Flusher. The unit is deactivated and cleaned
// up.
func (p *Plugin) Flush() error {
	return p.instance.Close()
}

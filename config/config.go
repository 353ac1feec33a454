// Package config loads engine configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"pipelined.dev/sequencer/audio"
)

var (
	// ErrInvalidBPM is returned when bpm is not positive.
	ErrInvalidBPM = errors.New("invalid bpm")
	// ErrInvalidDelayFactor is returned when delay factor is not positive.
	ErrInvalidDelayFactor = errors.New("invalid delay factor")
	// ErrInvalidFrequency is returned when task thread frequency is not
	// positive.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidWorkers is returned when worker pool size is not positive.
	ErrInvalidWorkers = errors.New("invalid number of workers")
	// ErrInvalidParallelism is returned when parallelism is not positive.
	ErrInvalidParallelism = errors.New("invalid parallelism")
	// ErrInvalidTimeout is returned when extern sync is enabled without
	// a positive timeout.
	ErrInvalidTimeout = errors.New("invalid extern timeout")
)

// Config of an engine.
type Config struct {
	Name          string  `yaml:"name"`
	SampleRate    int     `yaml:"samplerate"`
	BufferSize    int     `yaml:"buffer_size"`
	BPM           float64 `yaml:"bpm"`
	DelayFactor   float64 `yaml:"delay_factor"`
	TaskFrequency float64 `yaml:"task_frequency"`
	MainFrequency float64 `yaml:"main_frequency"`
	// Parallelism limits concurrent track streaming, 1 streams tracks
	// sequentially.
	Parallelism int  `yaml:"parallelism"`
	Workers     int  `yaml:"workers"`
	ExternSync  bool `yaml:"extern_sync"`
	// ExternTimeout in milliseconds.
	ExternTimeout int `yaml:"extern_timeout"`
}

// Default returns default configuration.
func Default() Config {
	return Config{
		Name:          "sequencer",
		SampleRate:    44100,
		BufferSize:    512,
		BPM:           120,
		DelayFactor:   0.25,
		TaskFrequency: 500,
		MainFrequency: 10,
		Parallelism:   1,
		Workers:       4,
		ExternTimeout: 10,
	}
}

// Parse decodes YAML on top of defaults and validates the result.
func Parse(b []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses configuration file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(b)
}

// Marshal encodes configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Format returns soundcard format.
func (c Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.SampleRate,
		BufferSize: c.BufferSize,
	}
}

// Timeout returns extern sync timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.ExternTimeout) * time.Millisecond
}

// Validate returns configuration error for invalid values.
func (c Config) Validate() error {
	if err := c.Format().Validate(); err != nil {
		return err
	}
	switch {
	case c.BPM <= 0:
		return fmt.Errorf("%w: %v", ErrInvalidBPM, c.BPM)
	case c.DelayFactor <= 0:
		return fmt.Errorf("%w: %v", ErrInvalidDelayFactor, c.DelayFactor)
	case c.TaskFrequency <= 0:
		return fmt.Errorf("%w: task %v", ErrInvalidFrequency, c.TaskFrequency)
	case c.MainFrequency <= 0:
		return fmt.Errorf("%w: main %v", ErrInvalidFrequency, c.MainFrequency)
	case c.Workers <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	case c.Parallelism <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidParallelism, c.Parallelism)
	case c.ExternSync && c.ExternTimeout <= 0:
		return fmt.Errorf("%w: %dms", ErrInvalidTimeout, c.ExternTimeout)
	}
	return nil
}

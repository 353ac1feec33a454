package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/wav"
)

func run(args ...string) (int, string) {
	var out bytes.Buffer
	c := cli{
		args:   append([]string{"sequencer"}, args...),
		stdout: &out,
	}
	return c.run(), out.String()
}

func TestUsage(t *testing.T) {
	code, out := run()
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "Usage: sequencer <command>")

	code, _ = run("unknown")
	assert.Equal(t, errorExitCode, code)
	assert.Len(t, commands(), 3)
}

func TestList(t *testing.T) {
	code, out := run("list")
	assert.Equal(t, successExitCode, code)
	assert.Contains(t, out, "count-beats")
	assert.Contains(t, out, "loop-end=16")
}

func TestConfig(t *testing.T) {
	code, out := run("config")
	assert.Equal(t, successExitCode, code)
	assert.Contains(t, out, "samplerate: 44100")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("bpm: 0\n"), 0o600))
	code, out = run("config", "-config", path)
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "invalid bpm")
}

func TestRender(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.wav")
	code, stdout := run("render", "-buffers", "8", "-pattern", "x.,.x", "-out", out)
	require.Equal(t, successExitCode, code, stdout)
	assert.Contains(t, stdout, "Rendered 4096 frames")

	loaded, sampleRate, err := wav.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 44100, sampleRate)
	assert.Equal(t, 4096, loaded.Size())
}

func TestRenderWave(t *testing.T) {
	code, stdout := run("render", "-scope", "wave")
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, stdout, errNoWave.Error())

	code, stdout = run("render", "-scope", "none")
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, stdout, "unknown scope")
}

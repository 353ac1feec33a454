package main

import (
	"flag"
	"io"

	"pipelined.dev/sequencer/config"
)

type configCommand struct {
	path string
}

func (cmd *configCommand) Name() string {
	return "config"
}

func (cmd *configCommand) Help() string {
	return "Print effective configuration"
}

func (cmd *configCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.path, "config", "", "configuration file")
}

func (cmd *configCommand) Run(w io.Writer) error {
	c, err := loadConfig(cmd.path)
	if err != nil {
		return err
	}
	b, err := c.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

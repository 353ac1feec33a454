package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/fx"
)

type listCommand struct{}

func (cmd *listCommand) Name() string {
	return "list"
}

func (cmd *listCommand) Help() string {
	return "Show sound scopes and built-in recalls"
}

func (cmd *listCommand) Register(*flag.FlagSet) {}

func (cmd *listCommand) Run(w io.Writer) error {
	fmt.Fprintf(w, "Sound scopes:\n %v\n", audio.Scopes())
	fmt.Fprintln(w, "Recalls:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range fx.Templates() {
		fmt.Fprintf(tw, " %s\t%v\t%v\t", t.Name, t.Level, t.Scopes)
		for _, p := range t.Ports {
			fmt.Fprintf(tw, "%s=%v [%v..%v] ", p.Name, p.Default, p.Min, p.Max)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

type cli struct {
	args   []string
	stdout io.Writer
}

type command interface {
	Name() string
	Help() string
	Run(w io.Writer) error
	Register(*flag.FlagSet)
}

func (c *cli) run() int {
	cmdName, args := parseArgs(c.args)
	if cmdName == "" {
		c.printUsage()
		return errorExitCode
	}

	for _, cmd := range commands() {
		if cmd.Name() != cmdName {
			continue
		}
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		flags.SetOutput(c.stdout)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if err := cmd.Run(c.stdout); err != nil {
			fmt.Fprintf(c.stdout, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	c.printUsage()
	return errorExitCode
}

const (
	successExitCode = 0
	errorExitCode   = 1
)

func commands() []command {
	return []command{
		&listCommand{},
		&configCommand{},
		&renderCommand{},
	}
}

func main() {
	c := cli{
		args:   os.Args,
		stdout: os.Stdout,
	}
	os.Exit(c.run())
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.stdout, "Sequencer renders tracks offline")
	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "Usage: sequencer <command>")
	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(c.stdout, "\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}

// stringList is a comma separated flag value.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, strings.Split(v, ",")...)
	return nil
}

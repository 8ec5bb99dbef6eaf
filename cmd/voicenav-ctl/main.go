package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/voicenav/internal/command"
	cli "github.com/spf13/pflag"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "expected 'validate', 'resolve' or 'version'")
		return 2
	}

	switch args[0] {
	case "validate":
		flags := cli.NewFlagSet("validate", cli.ContinueOnError)
		flags.SetOutput(stderr)
		path := flags.StringP("file", "f", "commands.yaml", "Path to command table")
		if err := flags.Parse(args[1:]); err != nil {
			return 2
		}
		f, err := command.LoadFile(*path)
		if err == nil {
			err = command.Validate(f)
		}
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "command table valid (%d entries)\n", len(f.Commands))
	case "resolve":
		flags := cli.NewFlagSet("resolve", cli.ContinueOnError)
		flags.SetOutput(stderr)
		path := flags.StringP("file", "f", "", "Path to command table (built-in table when empty)")
		if err := flags.Parse(args[1:]); err != nil {
			return 2
		}
		phrase := strings.Join(flags.Args(), " ")
		table, err := command.LoadTable(*path)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		out := command.NewDispatcher(table, nil, nil, logger).Match(phrase)
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if !out.Matched {
			return 3
		}
	case "version":
		fmt.Fprintln(stdout, version)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}
	return 0
}

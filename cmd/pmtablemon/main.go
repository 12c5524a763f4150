package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"codeberg.org/mutker/pmtablemon/internal/config"
	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

type command struct {
	usage string
	run   func(cfg *config.Config) error
}

var commands = map[string]command{
	"sample":  {"sample [flags]                 sample the PM table live", runSample},
	"decode":  {"decode [flags] <log>           decode a binary log to CSV on stdout", runDecode},
	"jitter":  {"jitter [flags] <log>           timing statistics of a binary log", runJitter},
	"eye":     {"eye [flags] <measurement.csv> edge aligned eye diagrams", runEye},
	"schemas": {"schemas                        list builtin PM table schemas", runSchemas},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: pmtablemon <command> [flags] [args]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintln(os.Stderr, "  "+commands[name].usage)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "flags:")
	fmt.Fprint(os.Stderr, config.NewFlagSet("pmtablemon").FlagUsages())
}

func main() {
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "%v: %s\n", errors.New().New(errors.ErrUnknownCmd), name)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Str("command", name).Msg("Config loaded")

	if err := cmd.run(cfg); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Str("command", name).Msg("Command failed")
		} else {
			logger.Error().Err(err).Str("command", name).Msg("Command failed")
		}
		os.Exit(1)
	}
}

// requireArg returns the single positional argument of a command.
func requireArg(cfg *config.Config, what string) (string, error) {
	if len(cfg.Args) != 1 {
		return "", errors.New().WithMessage(errors.ErrInvalidArgument, "expected exactly one "+what)
	}

	return cfg.Args[0], nil
}

func runSchemas(_ *config.Config) error {
	for _, version := range pmtable.Versions() {
		schema, err := pmtable.Lookup(version)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", version)
		for _, m := range schema.Metrics {
			fmt.Printf("  %-18s 0x%04x  %-6s x%d", m.Name, m.Offset, m.Kind, m.Count)
			for _, r := range m.Reductions {
				fmt.Printf("  %s=%s(>%g)", r.Name, r.Op, r.Threshold)
			}
			fmt.Println()
		}
	}

	return nil
}

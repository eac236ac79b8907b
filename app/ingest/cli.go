package ingest

import (
	"flag"
	"fmt"
	"io"
)

// ParseOptions parses the ingest command line.
func ParseOptions(args []string, defaultConfig string, stderr io.Writer) (Options, error) {
	var opts Options
	fs := flag.NewFlagSet("tickvault-ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigPath, "config", defaultConfig, "YAML config file (env TICKVAULT_CONFIG)")
	fs.BoolVar(&opts.RetryWarnings, "retry-warnings", false, "reprocess files whose last run ended with WARNING")
	fs.BoolVar(&opts.Force, "force", false, "reprocess every file regardless of checkpoints")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return opts, nil
}

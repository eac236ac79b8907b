package maintain

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

const usage = `usage: tickvault-maintain [-config file] <command> [options]
commands:
  aggregate [--force-backfill] [--sample CODE]
                                 define the monthly rollup, backfill when new
  compress                       compress chunks older than COMPRESS_AFTER
  reset [--yes]                  delete all minute bars and checkpoints
  status                         show checkpoint counts and recent failures
  daemon                         run aggregate and compress on cron schedules`

// Command is a parsed maintenance invocation.
type Command struct {
	ConfigPath    string
	Name          string
	ForceBackfill bool
	Sample        string
	Yes           bool
}

// ParseCommand parses the global flags, the command name and its flags.
func ParseCommand(args []string, defaultConfig string, stderr io.Writer) (Command, error) {
	global := flag.NewFlagSet("tickvault-maintain", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { _, _ = fmt.Fprintln(stderr, usage) }
	configPath := global.String("config", defaultConfig, "YAML config file (env TICKVAULT_CONFIG)")
	if err := global.Parse(args); err != nil {
		return Command{}, err
	}

	rest := global.Args()
	if len(rest) == 0 {
		return Command{}, errors.New(usage)
	}

	cmd := Command{ConfigPath: *configPath, Name: rest[0]}
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd.Name {
	case "aggregate":
		fs.BoolVar(&cmd.ForceBackfill, "force-backfill", false, "refresh the full history even if the view already existed")
		fs.StringVar(&cmd.Sample, "sample", "", "print the rollup rows of this code afterwards")
	case "reset":
		fs.BoolVar(&cmd.Yes, "yes", false, "skip the interactive confirmation")
	case "compress", "status", "daemon":
	default:
		return Command{}, fmt.Errorf("unknown command: %s\n%s", cmd.Name, usage)
	}

	if err := fs.Parse(rest[1:]); err != nil {
		return Command{}, err
	}
	if fs.NArg() > 0 {
		return Command{}, fmt.Errorf("%s: unexpected arguments %v", cmd.Name, fs.Args())
	}
	return cmd, nil
}

// Execute runs a parsed command.
func (a *App) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case "aggregate":
		return a.Aggregate(ctx, cmd.ForceBackfill, cmd.Sample)
	case "compress":
		return a.Compress(ctx)
	case "reset":
		return a.Reset(ctx, cmd.Yes)
	case "status":
		return a.Status(ctx)
	case "daemon":
		return a.Daemon(ctx)
	}
	return fmt.Errorf("unknown command: %s", cmd.Name)
}

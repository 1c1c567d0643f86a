// Package cli implements the autobackup command tree.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/autobackup-watch/autobackup/pkg/color"
)

var (
	jsonOutput bool
	logLevel   string
	logFormat  string
	noColor    bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autobackup <directory> [poll_interval_seconds]",
		Short: "AutoBackupWatch - automatic versioned backups of a directory",
		Long: `AutoBackupWatch polls a directory and keeps a versioned backup of every
file whose content changes. Changes are confirmed by SHA-256 fingerprint,
not by timestamp alone. Backups are written to <directory>/.autobackup and
the tracking state to <directory>/.autobackup_state.

Run without a subcommand to start watching; stop with Ctrl+C.

Examples:
  autobackup ./my_project            # Poll every 5 seconds
  autobackup ./my_project 2          # Poll every 2 seconds
  autobackup ./my_project -1         # Non-positive: default 5 seconds
  autobackup status ./my_project     # Show tracked files and versions
  autobackup history ./my_project    # Show the event journal`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
		RunE: runWatch,
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	pf.StringVar(&logFormat, "log-format", "", "log format: text, json (default from config)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	addWatchFlags(cmd)

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := run(ctx, newRootCmd(), os.Args[1:]); err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(positionalNegatives(root, args))
	return root.ExecuteContext(ctx)
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var negativeInt =regexp.MustCompile(`^-[0-9]+$`)

// positionalNegatives moves bare negative integers, such as a poll interval
// of "-1", behind a "--" terminator so they reach the watch command as
// positional arguments instead of failing as unknown shorthand flags.
// Subcommand invocations, args already containing "--", and values that
// belong to a preceding flag are left alone.
func positionalNegatives(root *cobra.Command, args []string) []string {
	if slices.Contains(args, "--") {
		return args
	}
	for _, a := range args {
		for _, sub := range root.Commands() {
			if sub.Name() == a || sub.HasAlias(a) {
				return args
			}
		}
	}

	var kept, moved []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case negativeInt.MatchString(a):
			moved = append(moved, a)
		case takesValue(root, a) && i+1 < len(args):
			kept = append(kept, a, args[i+1])
			i++
		default:
			kept = append(kept, a)
		}
	}
	if len(moved) == 0 {
		return args
	}
	return append(append(kept, "--"), moved...)
}

// takesValue reports whether arg is a flag that consumes the next argument.
func takesValue(cmd *cobra.Command, arg string) bool {
	if !strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
		return false
	}
	var f *pflag.Flag
	for _, set := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
		if strings.HasPrefix(arg, "--") {
			f = set.Lookup(arg[2:])
		} else if len(arg) == 2 {
			f = set.ShorthandLookup(arg[1:])
		}
		if f != nil {
			break
		}
	}
	return f != nil && f.NoOptDefVal == ""
}

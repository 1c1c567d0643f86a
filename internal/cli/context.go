package cli

import (
	"fmt"
	"os"

	"github.com/autobackup-watch/autobackup/pkg/color"
	"github.com/autobackup-watch/autobackup/pkg/config"
	"github.com/autobackup-watch/autobackup/pkg/logging"
	"github.com/autobackup-watch/autobackup/pkg/pathutil"
)

// requireDir resolves a directory argument or fails with ErrInvalidDirectory.
func requireDir(arg string) (string, error) {
	return pathutil.ResolveWatchDir(arg)
}

// setupLogging builds the process logger from config, overridden by the
// --log-level and --log-format flags, and installs it globally.
func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	levelName := cfg.Logging.Level
	if logLevel != "" {
		levelName = logLevel
	}
	if levelName == "" {
		levelName = string(logging.LevelInfo)
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	formatName := cfg.Logging.Format
	if logFormat != "" {
		formatName = logFormat
	}
	format, err := logging.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	l := logging.NewLogger(level)
	l.SetFormat(format)
	logging.SetGlobal(l)
	return l, nil
}

func fmtErr(format string, args ...any) {
	prefix := "autobackup: "
	if color.Enabled() {
		prefix = color.Error("autobackup:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}

package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobackup-watch/autobackup/internal/lock"
	"github.com/autobackup-watch/autobackup/internal/statestore"
	"github.com/autobackup-watch/autobackup/internal/watcher"
	"github.com/autobackup-watch/autobackup/pkg/color"
	"github.com/autobackup-watch/autobackup/pkg/errclass"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

type statusFile struct {
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	ModTime     time.Time `json:"last_observed_mtime"`
}

type statusOutput struct {
	Dir      string       `json:"dir"`
	Watching bool         `json:"watching"`
	PID      int          `json:"pid,omitempty"`
	Files    []statusFile `json:"files"`
}

func statusEntry(f model.TrackedFile) statusFile {
	return statusFile{Name: f.Name, Version: f.Version, Fingerprint: string(f.Fingerprint), ModTime: f.ModTime.UTC()}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <directory>",
		Short: "Show tracked files and their versions",
		Long: `Show the files tracked in a watched directory and their current versions,
read from the saved state. Also reports whether a watcher is running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}

			files, err := statestore.New(filepath.Join(dir, model.StateFileName)).Load()
			if err != nil && !errors.Is(err, errclass.ErrStateNotFound) {
				return err
			}

			state, holder, err := lock.NewManager(filepath.Join(dir, model.BackupDirName)).Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				res := statusOutput{Dir: dir, Watching: state == lock.StateHeld, Files: make([]statusFile, 0, len(files))}
				if res.Watching {
					res.PID = holder.PID
				}
				for _, f := range files {
					res.Files = append(res.Files, statusEntry(f))
				}
				return outputJSON(out, res)
			}

			switch state {
			case lock.StateHeld:
				fmt.Fprintf(out, "%s pid %d on %s since %s\n", color.Success("Watcher running:"),
					holder.PID, holder.Hostname, holder.AcquiredAt.Local().Format(time.DateTime))
			case lock.StateStale:
				fmt.Fprintf(out, "%s stale lock from pid %d\n", color.Warning("Watcher not running:"), holder.PID)
			default:
				fmt.Fprintln(out, color.Dim("Watcher not running"))
			}
			watcher.WriteStatus(out, dir, files)
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobackup-watch/autobackup/internal/audit"
	"github.com/autobackup-watch/autobackup/pkg/color"
	"github.com/autobackup-watch/autobackup/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <directory> [file]",
		Short: "Show the event journal",
		Long: `Show tracking and versioning events recorded for a watched directory,
oldest first. Give a file name to show only its events.

Examples:
  autobackup history ./my_project
  autobackup history ./my_project notes.txt
  autobackup history ./my_project -n 10`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}
			var file string
			if len(args) > 1 {
				file = args[1]
			}

			records, err := audit.NewFileAppender(filepath.Join(dir, model.BackupDirName, model.JournalFile)).ReadAll()
			if err != nil {
				return err
			}

			filtered := make([]model.AuditRecord, 0, len(records))
			for _, r := range records {
				if file == "" || r.File == file {
					filtered = append(filtered, r)
				}
			}
			if limit > 0 && len(filtered) > limit {
				filtered = filtered[len(filtered)-limit:]
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, filtered)
			}
			if len(filtered) == 0 {
				fmt.Fprintln(out, "No events recorded.")
				return nil
			}
			for _, r := range filtered {
				fmt.Fprintln(out, formatRecord(r))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N events")
	return cmd
}

func formatRecord(r model.AuditRecord) string {
	ts := color.Dim(r.Timestamp.Local().Format(time.DateTime))
	switch r.EventType {
	case model.EventTypeTrack:
		return fmt.Sprintf("%s  track    %s %s", ts, color.FileName(r.File), color.Version(r.Version))
	case model.EventTypeVersion:
		return fmt.Sprintf("%s  version  %s %s -> %s", ts, color.FileName(r.File), color.Version(r.Version), r.Artifact)
	case model.EventTypeStateDiscarded:
		return fmt.Sprintf("%s  %s  %v", ts, color.Warning("discard"), r.Details["quarantined"])
	}
	return fmt.Sprintf("%s  %s  %s", ts, r.EventType, r.File)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobackup-watch/autobackup/internal/verify"
	"github.com/autobackup-watch/autobackup/pkg/color"
)

func newVerifyCmd() *cobra.Command {
	var content bool

	cmd := &cobra.Command{
		Use:   "verify <directory>",
		Short: "Check state, backups and journal for consistency",
		Long: `Check a watched directory offline:
  - the state file loads and its entries are valid
  - every file past version 1 has a backup of its current version
  - with --content (default), that backup holds the recorded fingerprint
  - the event journal hash chain is intact

Exits non-zero if anything is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}

			report, err := verify.NewVerifier(dir).Verify(content)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := outputJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, f := range report.Findings {
					label := color.Warning(f.Severity)
					if f.Severity == verify.SeverityCritical {
						label = color.Error(f.Severity)
					}
					fmt.Fprintf(out, "[%s] %s: %s\n", label, f.Check, f.Error)
				}
				if report.OK() {
					fmt.Fprintf(out, "%s %s\n", color.Success("OK"), report)
				}
			}

			if !report.OK() {
				return fmt.Errorf("verification failed: %s", report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&content, "content", true, "rehash current-version backups")
	return cmd
}

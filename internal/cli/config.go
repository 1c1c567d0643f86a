package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobackup-watch/autobackup/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <command>",
		Short: "Manage watcher configuration",
		Long: `Manage the configuration stored in <directory>/.autobackup/config.yaml.

Configuration options:
  poll_interval     - Seconds between scans (default 5)
  on_corrupt_state  - abort or discard an unreadable state file (default abort)
  notify_events     - Rescan on filesystem events as well (true, false)
  logging.level     - debug, info, warn, error
  logging.format    - text, json
  metrics.addr      - Address for the Prometheus endpoint (empty disables)

Webhooks are configured by editing the file directly.`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <directory>",
		Short: "Show current configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return outputJSON(out, cfg)
			}

			fmt.Fprintln(out, "# AutoBackupWatch configuration")
			fmt.Fprintf(out, "# Location: %s\n\n", config.Path(dir))
			for _, key := range config.Keys {
				v, _ := cfg.Get(key)
				if v == "" {
					v = "(not set)"
				}
				fmt.Fprintf(out, "%s: %s\n", key, v)
			}
			if len(cfg.Webhooks) > 0 {
				fmt.Fprintln(out, "webhooks:")
				for _, h := range cfg.Webhooks {
					fmt.Fprintf(out, "  - %s %v\n", h.URL, h.Events)
				}
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <directory> <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]string{args[1]: v})
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <directory> <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := requireDir(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[1], args[2]); err != nil {
				return err
			}
			if err := config.Save(dir, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[1], args[2])
			return nil
		},
	}
}

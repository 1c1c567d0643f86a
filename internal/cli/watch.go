package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/autobackup-watch/autobackup/internal/watcher"
	"github.com/autobackup-watch/autobackup/pkg/config"
	"github.com/autobackup-watch/autobackup/pkg/logging"
	"github.com/autobackup-watch/autobackup/pkg/metrics"
	"github.com/autobackup-watch/autobackup/pkg/webhook"
)

var (
	watchInterval    int
	watchOnCorrupt   string
	watchNotify      bool
	watchMetricsAddr string
	watchForce       bool
)

func addWatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&watchInterval, "interval", 0, "poll interval in seconds (default from config, 5)")
	f.StringVar(&watchOnCorrupt, "on-corrupt", "", "what to do with an unreadable state file: abort, discard")
	f.BoolVar(&watchNotify, "notify", false, "also rescan on filesystem events")
	f.StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&watchForce, "force", false, "take over the directory lock from another watcher")
}

// watchSummary is printed with --json when the watch ends.
type watchSummary struct {
	Dir     string       `json:"dir"`
	Tracked int          `json:"tracked"`
	Files   []statusFile `json:"files"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := requireDir(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if err := applyWatchOverrides(cmd, cfg, args); err != nil {
		return err
	}

	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var reg *metrics.Registry
	if cfg.Metrics.Addr != "" {
		reg = metrics.NewRegistry()
		addr, done, err := reg.Serve(ctx, cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		log.Info("serving metrics", map[string]any{"addr": addr.String()})
		go func() {
			if err := <-done; err != nil {
				log.ErrorErr("metrics server stopped", err)
			}
		}()
	}

	hooks := newWebhookClient(cfg, log)

	out := cmd.OutOrStdout()
	if jsonOutput {
		out = io.Discard
	}

	d, err := watcher.New(watcher.Options{
		Dir:       dir,
		Interval:  cfg.Interval(),
		OnCorrupt: cfg.CorruptPolicy(),
		Notify:    cfg.NotifyEvents,
		Force:     watchForce,
		Logger:    log,
		Metrics:   reg,
		Webhooks:  hooks,
		Out:       out,
	})
	if err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		return err
	}

	files := d.Registry().Snapshot()
	if jsonOutput {
		summary := watchSummary{Dir: d.Dir(), Tracked: len(files), Files: make([]statusFile, 0, len(files))}
		for _, f := range files {
			summary.Files = append(summary.Files, statusEntry(f))
		}
		return outputJSON(cmd.OutOrStdout(), summary)
	}
	fmt.Fprintf(out, "\nStopped. Tracking %d file(s).\n", len(files))
	return nil
}

// applyWatchOverrides layers flags and the positional interval over the
// file configuration.
func applyWatchOverrides(cmd *cobra.Command, cfg *config.Config, args []string) error {
	f := cmd.Flags()
	if f.Changed("interval") {
		cfg.PollInterval = watchInterval
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid poll interval %q: %w", args[1], err)
		}
		cfg.PollInterval = n
	}
	if f.Changed("on-corrupt") {
		cfg.OnCorruptState = watchOnCorrupt
	}
	if f.Changed("notify") {
		cfg.NotifyEvents = watchNotify
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = watchMetricsAddr
	}
	return cfg.Validate()
}

func newWebhookClient(cfg *config.Config, log *logging.Logger) *webhook.Client {
	if len(cfg.Webhooks) == 0 {
		return nil
	}
	wc := webhook.DefaultConfig()
	for _, h := range cfg.Webhooks {
		hook := webhook.HookConfig{URL: h.URL, Secret: h.Secret}
		for _, e := range h.Events {
			hook.Events = append(hook.Events, webhook.EventType(e))
		}
		wc.Hooks = append(wc.Hooks, hook)
	}
	return webhook.NewClient(wc, log)
}

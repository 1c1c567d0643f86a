package watcher

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/autobackup-watch/autobackup/internal/scan"
	"github.com/autobackup-watch/autobackup/pkg/logging"
)

// startNotifier emits a nudge whenever a candidate file in dir is written,
// created, renamed or removed. Nudges coalesce: at most one is pending.
// Polling stays authoritative; a missed event only delays detection until
// the next tick.
func startNotifier(ctx context.Context, dir string, log *logging.Logger) (<-chan struct{}, func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, nil, err
	}

	nudges := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !relevant(ev) {
					continue
				}
				select {
				case nudges <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WarnErr("filesystem notification error", err)
			}
		}
	}()

	stop := func() {
		w.Close()
		<-done
	}
	return nudges, stop, nil
}

func relevant(ev fsnotify.Event) bool {
	if scan.Ignored(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}

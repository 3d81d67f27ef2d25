package driver

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/n5hz/wavetuner/internal/config"
	"github.com/n5hz/wavetuner/internal/logging"
)

// WatchDebounce is how long Watch waits after the last directory event
// before re-scanning for newly arrived scripts.
var WatchDebounce = 500 * time.Millisecond

// Watch runs every currently matching script once, then keeps watching
// opts.Dir and runs any script that shows up afterward, honouring the same
// inter-file pause RunBatch does. It blocks until stop is closed or the
// watcher fails.
func Watch(opts Options, cfg config.Config, newRunner func(scriptPath string) Runner, diag logging.Logger, stop <-chan struct{}) error {
	if diag == nil {
		diag = logging.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("driver: watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(opts.Dir); err != nil {
		return fmt.Errorf("driver: watch %s: %w", opts.Dir, err)
	}

	seen := make(map[string]bool)
	scan := func() {
		files, err := SelectFiles(opts.Dir, opts.Category, cfg)
		if err != nil {
			diag.Warn("driver: watch scan failed", logging.Field{Key: "error", Value: err.Error()})
			return
		}
		var fresh []string
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				fresh = append(fresh, f)
			}
		}
		for i, path := range fresh {
			runOne(path, opts, newRunner, diag)
			if i < len(fresh)-1 {
				time.Sleep(BetweenFilesPause)
			}
		}
	}

	scan()

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".py" {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(WatchDebounce)
			timerC = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			diag.Warn("driver: watch error", logging.Field{Key: "error", Value: err.Error()})
		case <-timerC:
			timerC = nil
			scan()
		}
	}
}

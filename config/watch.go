package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Swind/go-message-queue/core"
)

// reloadDebounce absorbs the burst of events editors produce for one save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes on disk and hands every valid,
// changed configuration to fn. Invalid files are logged and skipped.
// Watch blocks until ctx is done and returns nil then.
func Watch(ctx context.Context, path string, logger core.Logger, fn func(*Config)) error {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch init: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}

	var (
		mu       sync.Mutex
		timer    *time.Timer
		lastHash uint64
	)
	if cfg, err := Load(path); err == nil {
		lastHash = hashConfig(cfg)
	}

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Warn("config reload failed", core.F("path", path), core.F("error", err))
			return
		}

		h := hashConfig(cfg)
		mu.Lock()
		unchanged := h != 0 && h == lastHash
		lastHash = h
		mu.Unlock()
		if unchanged {
			logger.Debug("config unchanged; skipping reload", core.F("path", path))
			return
		}

		if ctx.Err() != nil {
			return
		}
		logger.Info("config reloaded", core.F("path", path))
		fn(cfg)
	}

	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	logger.Debug("config watcher started", core.F("dir", dir), core.F("file", file))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("config watch %s: event channel closed", dir)
			}
			// Compare by basename; editors often replace the file through a rename.
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("config watch %s: error channel closed", dir)
			}
			logger.Warn("config watch error", core.F("dir", dir), core.F("error", err))
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

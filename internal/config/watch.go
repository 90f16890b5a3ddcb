package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands the
// validated result to a callback. Invalid edits are logged and skipped.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
	wg    sync.WaitGroup
}

// Watch starts watching path. The directory is watched rather than the file
// so that editors which replace the file via rename are still observed.
func Watch(path string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		watcher:  fw,
		onChange: onChange,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"RoomFM/logger"

	"github.com/fsnotify/fsnotify"
)

// WatchWeights watches a JSON weights file and calls apply with the parsed
// weights on every change. A malformed or invalid file leaves the current
// weights in place. The watcher runs until the returned stop function is called.
func WatchWeights(path string, apply func(Weights) error) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files rather than writing in place.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	// Apply the initial file if it exists.
	if _, err := os.Stat(path); err == nil {
		loadWeightsFile(path, apply)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					loadWeightsFile(path, apply)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("weights watcher error", logger.ErrorField(err))
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}

func loadWeightsFile(path string, apply func(Weights) error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read weights file", logger.String("path", path), logger.ErrorField(err))
		return
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		logger.Warn("failed to parse weights file", logger.String("path", path), logger.ErrorField(err))
		return
	}

	if err := apply(w); err != nil {
		logger.Warn("rejected weights from file", logger.String("path", path), logger.ErrorField(err))
		return
	}

	logger.Info("scorer weights reloaded",
		logger.String("path", path),
		logger.Float64("alpha", w.Alpha),
		logger.Float64("beta", w.Beta),
		logger.Float64("gamma", w.Gamma))
}

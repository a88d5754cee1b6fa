package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const noiseReloadDebounce = 500 * time.Millisecond

// ReadNoiseFile reads one pattern per line. Blank lines and lines starting with
// # are skipped.
func ReadNoiseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

// NoiseWatcher keeps a NoiseFilter in sync with a pattern file. The filter
// always holds the base patterns plus whatever the file currently contains.
type NoiseWatcher struct {
	filter *NoiseFilter
	base   []string
	path   string
	log    zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: editors write files in several steps.
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewNoiseWatcher creates a watcher for path. Call Start to load and watch it.
func NewNoiseWatcher(filter *NoiseFilter, base []string, path string, log zerolog.Logger) *NoiseWatcher {
	return &NoiseWatcher{
		filter: filter,
		base:   append([]string(nil), base...),
		path:   path,
		log:    log.With().Str("component", "noise-watcher").Logger(),
	}
}

// Reload reads the pattern file and replaces the filter's pattern set. If the
// file cannot be read the base patterns alone are applied.
func (nw *NoiseWatcher) Reload() error {
	filePatterns, err := ReadNoiseFile(nw.path)
	patterns := append(append([]string(nil), nw.base...), filePatterns...)
	nw.filter.Set(patterns)
	if err != nil {
		return err
	}
	nw.log.Info().Int("patterns", len(patterns)).Str("path", nw.path).Msg("noise patterns loaded")
	return nil
}

// Start loads the file and watches its directory until ctx is done. The
// directory is watched rather than the file so atomic replace-on-save works,
// and so a file that does not exist yet is picked up once it is created.
func (nw *NoiseWatcher) Start(ctx context.Context) error {
	if err := nw.Reload(); err != nil {
		nw.log.Warn().Err(err).Str("path", nw.path).Msg("noise pattern file not loaded, using base patterns")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(nw.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(nw.path), err)
	}
	nw.watcher = w

	go nw.watchLoop(ctx)
	return nil
}

func (nw *NoiseWatcher) watchLoop(ctx context.Context) {
	defer nw.watcher.Close()
	target := filepath.Clean(nw.path)

	for {
		select {
		case <-ctx.Done():
			nw.debounceMu.Lock()
			if nw.debounceTimer != nil {
				nw.debounceTimer.Stop()
			}
			nw.debounceMu.Unlock()
			return

		case event, ok := <-nw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			nw.scheduleReload()

		case err, ok := <-nw.watcher.Errors:
			if !ok {
				return
			}
			nw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (nw *NoiseWatcher) scheduleReload() {
	nw.debounceMu.Lock()
	defer nw.debounceMu.Unlock()

	if nw.debounceTimer != nil {
		nw.debounceTimer.Reset(noiseReloadDebounce)
		return
	}
	nw.debounceTimer = time.AfterFunc(noiseReloadDebounce, func() {
		nw.debounceMu.Lock()
		nw.debounceTimer = nil
		nw.debounceMu.Unlock()

		if err := nw.Reload(); err != nil {
			nw.log.Warn().Err(err).Msg("noise pattern reload failed, using base patterns")
		}
	})
}

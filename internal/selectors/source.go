package selectors

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Source holds the current profile. A profile loaded from a file can be hot
// reloaded with Watch; readers always see a complete, validated profile.
type Source struct {
	path    string
	current atomic.Pointer[Profile]
	logger  *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewSource loads the profile at path, or the embedded default when path is
// empty.
func NewSource(path string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{path: path, logger: logger}
	if path == "" {
		s.current.Store(Default())
		return s, nil
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		s.path = abs
	}
	p, err := LoadFile(s.path)
	if err != nil {
		return nil, err
	}
	s.current.Store(p)
	return s, nil
}

// Static wraps an already loaded profile.
func Static(p *Profile) *Source {
	s := &Source{logger: zap.NewNop()}
	s.current.Store(p)
	return s
}

// Current returns the active profile.
func (s *Source) Current() *Profile {
	return s.current.Load()
}

// Reload re-reads the profile file. A broken file keeps the previous profile.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(p)
	s.logger.Info("selector profile reloaded", zap.String("path", s.path), zap.String("platform", p.Platform))
	return nil
}

// Watch reloads the profile whenever its file changes, until ctx is done. It
// watches the parent directory so editors that replace the file are seen.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create selector watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				if s.timer != nil {
					s.timer.Stop()
				}
				s.mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("selector watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *Source) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(defaultReloadDebounce, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("keeping previous selector profile", zap.Error(err))
		}
	})
}

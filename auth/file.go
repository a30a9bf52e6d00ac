// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// A FileToken is a TokenSource which reads the token from a file and
// reloads it whenever the file is written, created or replaced. If a
// reload fails, the previous token stays in use.
//
// Close stops watching the file.
type FileToken struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.RWMutex
	token string
}

// NewFileToken reads the token in the file at path and starts watching
// it. Leading and trailing white space is ignored. A nil logger logs
// nothing.
func NewFileToken(path string, logger *zap.Logger) (*FileToken, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f := &FileToken{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err = f.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reqx/auth: watching token file: %w", err)
	}
	// Editors and login tools usually replace the file rather than
	// writing it in place, so the directory is watched.
	if err = w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("reqx/auth: watching token file: %w", err)
	}
	f.watcher = w
	go f.watch()
	return f, nil
}

// Token returns the most recently loaded token.
func (f *FileToken) Token(_ context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token, nil
}

// Close stops watching the token file. The last token loaded remains
// available.
func (f *FileToken) Close() error {
	err := f.watcher.Close()
	<-f.done
	return err
}

func (f *FileToken) watch() {
	defer close(f.done)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn("Failed to reload token file", zap.String("path", f.path), zap.Error(err))
			} else {
				f.logger.Debug("Reloaded token file", zap.String("path", f.path))
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("Token file watch error", zap.String("path", f.path), zap.Error(err))
		}
	}
}

func (f *FileToken) reload() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reqx/auth: reading token file: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = strings.TrimSpace(string(b))
	return nil
}

// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches rapid editor writes into one reload.
const reloadDebounce = 200 * time.Millisecond

// Library holds every loaded pack and keeps them fresh on disk changes.
//
// A reload replaces the whole pack map atomically; sessions hold their
// pack pointer for their lifetime, so a mid-session reload affects only
// sessions started afterwards.
type Library struct {
	dir string

	mu    sync.RWMutex
	packs map[string]*Pack

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// LoadLibrary reads every *.yaml pack under dir. A directory with no valid
// packs is an error; a single bad file is logged and skipped so one typo
// cannot take the whole library down on reload.
func LoadLibrary(dir string) (*Library, error) {
	l := &Library{
		dir:  dir,
		done: make(chan struct{}),
	}
	packs, err := loadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(packs) == 0 {
		return nil, fmt.Errorf("no scene packs in %s", dir)
	}
	l.packs = packs
	return l, nil
}

// Get returns the pack for scene, if loaded.
func (l *Library) Get(scene string) (*Pack, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.packs[scene]
	return p, ok
}

// Scenes lists loaded scene names, sorted.
func (l *Library) Scenes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.packs))
	for name := range l.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch starts hot-reloading the pack directory. Call Close to stop.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create content watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	l.watcher = watcher
	go l.watchLoop()
	return nil
}

// Close stops the watcher. Loaded packs remain available.
func (l *Library) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.watcher != nil {
			l.watcher.Close()
		}
	})
}

func (l *Library) watchLoop() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isPackFile(event.Name) {
				continue
			}
			// Debounce: editors fire several events per save.
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			l.reload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("content watcher error", "error", err)
		}
	}
}

func (l *Library) reload() {
	packs, err := loadDir(l.dir)
	if err != nil {
		slog.Error("content reload failed, keeping previous packs",
			"dir", l.dir,
			"error", err,
		)
		return
	}
	if len(packs) == 0 {
		slog.Error("content reload found no packs, keeping previous packs",
			"dir", l.dir,
		)
		return
	}
	l.mu.Lock()
	l.packs = packs
	l.mu.Unlock()
	slog.Info("content packs reloaded",
		"dir", l.dir,
		"scenes", len(packs),
	)
}

func loadDir(dir string) (map[string]*Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read content directory %s: %w", dir, err)
	}

	packs := make(map[string]*Pack)
	for _, entry := range entries {
		if entry.IsDir() || !isPackFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable pack", "path", path, "error", err)
			continue
		}
		pack, err := ParsePack(data)
		if err != nil {
			slog.Warn("skipping invalid pack", "path", path, "error", err)
			continue
		}
		if _, dup := packs[pack.Scene]; dup {
			slog.Warn("skipping duplicate scene", "path", path, "scene", pack.Scene)
			continue
		}
		packs[pack.Scene] = pack
	}
	return packs, nil
}

func isPackFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
)

var storeTracer = otel.Tracer("profile")

// Config holds BadgerDB settings for the profile store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is
	// true.
	Path string `yaml:"path"`

	// InMemory disables disk persistence. Used by tests and by
	// deployments that treat profiles as ephemeral.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces every commit to disk. Profiles are written a few
	// times per session, so the durability is worth the latency.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration `yaml:"gc_interval"`

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns production settings: durable writes, GC every
// five minutes.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns settings for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the embedded implementation of Store.
type BadgerStore struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

var _ Store = (*BadgerStore)(nil)

// Open opens or creates the profile database.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent profile store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create profile directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}

	store := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gcStop = make(chan struct{})
		store.gcDone = make(chan struct{})
		go store.runGC(cfg.GCInterval)
	}
	return store, nil
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, playerID string) (*datatypes.PlayerProfile, error) {
	ctx, span := storeTracer.Start(ctx, "profile.BadgerStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("player_id", playerID))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p datatypes.PlayerProfile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(playerID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load profile %s: %w", playerID, err)
	}
	return &p, nil
}

// Save implements Store. UpdatedAt is stamped here so every checkpoint
// carries the write time.
func (s *BadgerStore) Save(ctx context.Context, p *datatypes.PlayerProfile) error {
	ctx, span := storeTracer.Start(ctx, "profile.BadgerStore.Save")
	defer span.End()
	span.SetAttributes(attribute.String("player_id", p.PlayerID))

	if p.PlayerID == "" {
		return errors.New("profile has no player ID")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.UpdatedAt = time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.PlayerID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.PlayerID), data)
	})
	if m := observability.DefaultMetrics; m != nil {
		m.RecordProfileSave(err == nil)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("save profile %s: %w", p.PlayerID, err)
	}
	return nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(profileKey(playerID))
	})
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", playerID, err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (s *BadgerStore) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("profile store GC failed", "error", err)
			}
		}
	}
}

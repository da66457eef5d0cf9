// Package badger provides a result cache persisted in an embedded BadgerDB.
// Entries carry a native TTL, so expired keys are invisible to reads and the
// next write for the same key replaces them.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/cache"
	"github.com/JakeFAU/contact-harvester/internal/extract"
)

// Config holds configuration for the BadgerDB-backed cache.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; useful for tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives backend failures. Badger's internal logging is routed here too.
	Logger *zap.Logger
}

// Store implements extract.ResultCache on top of BadgerDB.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open creates or opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger cache: %w", err)
	}
	return nil
}

// Get returns the cached records, or a miss when the key is absent, expired,
// unreadable, or the context is already done.
func (s *Store) Get(ctx context.Context, collectorID, keywords, location string) ([]extract.RawRecord, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	key := []byte(cache.Key(collectorID, keywords, location))
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("collector", collectorID), zap.Error(err))
		return nil, false
	}
	var records []extract.RawRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		s.logger.Warn("cache entry corrupt", zap.String("collector", collectorID), zap.Error(err))
		return nil, false
	}
	return records, true
}

// Put writes records with the given ttl. Failures are logged and dropped.
func (s *Store) Put(
	ctx context.Context,
	collectorID, keywords, location string,
	records []extract.RawRecord,
	ttl time.Duration,
) {
	if ctx.Err() != nil {
		return
	}
	payload, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("collector", collectorID), zap.Error(err))
		return
	}
	key := []byte(cache.Key(collectorID, keywords, location))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, payload).WithTTL(cache.TTL(ttl)))
	})
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("collector", collectorID), zap.Error(err))
	}
}

type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

var _ extract.ResultCache = (*Store)(nil)

// Package dedupe tracks which presentation URLs have already been emitted,
// within this run and across previous runs, so a document is never handed
// to the catalog twice.
package dedupe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/log"
	"ir-scraper/pkg/utils"
)

const (
	urlKeyPrefix = "url:"      // Prefix for emitted-URL keys in the DB
	seenDBDir    = "dedupe_db" // Subdirectory within the state dir for Badger files
	lruSize      = 4096        // In-run fast path; badger remains the source of truth
)

// Store answers "has this normalized URL been emitted before?". MarkEmitted
// is an atomic check-and-set: the first caller for a URL wins.
type Store interface {
	// MarkEmitted records the URL as emitted. Returns true if the URL was
	// newly added, false if it had been emitted before (this run or a prior one).
	MarkEmitted(normalizedURL string) (bool, error)

	// Seen reports whether the URL was already emitted, without marking.
	Seen(normalizedURL string) (bool, error)

	// Count returns the number of distinct URLs recorded.
	Count() int

	Close() error
}

// BadgerStore implements Store on BadgerDB with an LRU cache in front for
// the in-run hot path.
type BadgerStore struct {
	db       *badger.DB
	recent   *lru.Cache[string, struct{}]
	keyCount atomic.Int64
	log      *logrus.Entry
}

// NewBadgerStore opens (or creates) the dedupe database under stateDir.
// Existing keys are kept: cross-run persistence is what makes re-running
// the pipeline idempotent.
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, seenDBDir)
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Infof("Opening dedupe database at %s", dbPath)

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	recent, err := lru.New[string, struct{}](lruSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &BadgerStore{db: db, recent: recent, log: logger}
	if count, err := store.countKeys(); err != nil {
		logger.Warnf("Failed to count existing dedupe keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		logger.Infof("Dedupe database holds %d previously emitted URLs", count)
	}
	return store, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction
// conflicts. Concurrent MVCC transactions on overlapping keys can return
// badger.ErrConflict; these resolve in microseconds.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkEmitted implements Store.
func (s *BadgerStore) MarkEmitted(normalizedURL string) (bool, error) {
	if _, hit := s.recent.Get(normalizedURL); hit {
		return false, nil
	}

	added := false
	key := []byte(urlKeyPrefix + normalizedURL)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, []byte{}))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		return errGet // nil when the key already exists
	})
	if err != nil {
		return false, fmt.Errorf("%w: marking URL '%s': %w", utils.ErrDatabase, normalizedURL, err)
	}

	s.recent.Add(normalizedURL, struct{}{})
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// Seen implements Store.
func (s *BadgerStore) Seen(normalizedURL string) (bool, error) {
	if _, hit := s.recent.Get(normalizedURL); hit {
		return true, nil
	}

	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, errGet := txn.Get([]byte(urlKeyPrefix + normalizedURL))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: checking URL '%s': %w", utils.ErrDatabase, normalizedURL, err)
	}
	return found, nil
}

// Count implements Store. O(1) from the cached key count.
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// countKeys performs a one-time full key scan during initialization.
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing dedupe database...")
		return s.db.Close()
	}
	return nil
}

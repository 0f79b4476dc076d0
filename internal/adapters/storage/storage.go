// Package storage provides the badger-backed persistence adapter.
// Multi-key writes go through BatchWrite or RunInTransaction so a run
// and its index rows never land in a half-written state.
package storage

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

type Store struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func New(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "storage"),
	}
}

// Open creates the store over a badger database at dataDir. An empty
// dataDir opens an in-memory database, used by tests.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to open storage",
			Details: map[string]interface{}{"data_dir": dataDir, "error": err.Error()},
		}
	}

	return New(db, logger), nil
}

func (s *Store) Get(key string) (value []byte, exists bool, err error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		exists = true
		value, err = item.ValueCopy(nil)
		return err
	})

	return value, exists, err
}

func (s *Store) Put(key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (s *Store) Delete(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) Exists(key string) (bool, error) {
	_, exists, err := s.Get(key)
	return exists, err
}

func (s *Store) BatchWrite(ops []ports.WriteOp) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			switch op.Type {
			case ports.OpPut:
				if op.TTL > 0 {
					entry := badger.NewEntry([]byte(op.Key), op.Value).WithTTL(op.TTL)
					if err := txn.SetEntry(entry); err != nil {
						return err
					}
				} else if err := txn.Set([]byte(op.Key), op.Value); err != nil {
					return err
				}
			case ports.OpDelete:
				if err := txn.Delete([]byte(op.Key)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) GetNext(prefix string) (key string, value []byte, exists bool, err error) {
	if err := s.checkOpen(); err != nil {
		return "", nil, false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		item := it.Item()
		key = string(item.Key())
		exists = true
		value, err = item.ValueCopy(nil)
		return err
	})

	return key, value, exists, err
}

func (s *Store) ListByPrefix(prefix string) ([]ports.KeyValue, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var results []ports.KeyValue
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			results = append(results, ports.KeyValue{
				Key:   string(item.Key()),
				Value: value,
			})
		}
		return nil
	})

	return results, err
}

func (s *Store) CountPrefix(prefix string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

func (s *Store) DeleteByPrefix(prefix string) (deletedCount int, err error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
			deletedCount++
		}
		return nil
	})

	return deletedCount, err
}

func (s *Store) AtomicIncrement(key string) (newValue int64, err error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(key))
		if err == nil {
			err = item.Value(func(val []byte) error {
				if len(val) == 8 {
					current = int64(binary.BigEndian.Uint64(val))
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		newValue = current + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(newValue))
		return txn.Set([]byte(key), buf)
	})

	return newValue, err
}

func (s *Store) RunInTransaction(fn func(tx ports.Transaction) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&transaction{txn: txn})
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return domain.ErrClosed
	}
	return nil
}

type transaction struct {
	txn *badger.Txn
}

func (t *transaction) Get(key string) (value []byte, exists bool, err error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err = item.ValueCopy(nil)
	return value, err == nil, err
}

func (t *transaction) Put(key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

func (t *transaction) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
	return t.txn.SetEntry(entry)
}

func (t *transaction) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}

func (t *transaction) Exists(key string) (bool, error) {
	_, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

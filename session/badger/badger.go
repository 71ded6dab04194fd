// Package badger implements a canonical session store on top of BadgerDB.
//
// Every session is one key, "sess/<name>/<id>", whose value is the write
// timestamp (8 bytes, big-endian Unix nanoseconds) followed by the payload.
// Clean scans the namespace prefix and deletes entries older than the
// maximum lifetime; an optional TTL lets Badger expire entries on its own.
package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
)

const defaultName = "default"

// Config configures a Store opened by Open.
type Config struct {
	// Dir is the Badger data directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps all data in memory (tests, ephemeral servers).
	InMemory bool
	// TTL, when positive, is attached to every written entry.
	TTL time.Duration
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Store is a core.Handler persisting sessions in BadgerDB.
type Store struct {
	db    *badgerdb.DB
	owned bool

	mu   sync.RWMutex
	name string

	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

var _ core.Handler = (*Store)(nil)

// Open opens (or creates) a Badger database according to cfg. The returned
// Store owns the database and closes it on Close.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger session store requires a directory or in-memory mode")
	}
	opts := badgerdb.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	s := New(db, cfg.TTL, cfg.Logger)
	s.owned = true
	return s, nil
}

// New wraps an already opened database. The caller keeps ownership of db.
func New(db *badgerdb.DB, ttl time.Duration, logger logging.Logger) *Store {
	return &Store{db: db, name: defaultName, ttl: ttl, now: time.Now, logger: logging.OrNoOp(logger)}
}

func (s *Store) key(id string) []byte {
	return append(s.prefix(), id...)
}

func (s *Store) prefix() []byte {
	return []byte("sess/" + s.sessionName() + "/")
}

// sessionName returns the namespace selected by Create.
func (s *Store) sessionName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func encodeValue(ts time.Time, data string) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, uint64(ts.UnixNano()))
	copy(buf[8:], data)
	return buf
}

func decodeValue(val []byte) (time.Time, string, error) {
	if len(val) < 8 {
		return time.Time{}, "", fmt.Errorf("corrupt session value (%d bytes)", len(val))
	}
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
	return ts, string(val[8:]), nil
}

// Create selects the key namespace.
func (s *Store) Create(_, name string, _ core.CreateNext) bool {
	if name != "" {
		s.mu.Lock()
		s.name = name
		s.mu.Unlock()
	}
	return true
}

// Read returns the stored payload, or "" when missing or unreadable.
func (s *Store) Read(id string, _ core.ReadNext) string {
	var data string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			_, d, err := decodeValue(val)
			data = d
			return err
		})
	})
	if err != nil {
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			s.logger.Error("failed to read session", "id", id, "error", err)
		}
		return ""
	}
	return data
}

// Write stores the payload with the current timestamp.
func (s *Store) Write(id, data string, _ core.WriteNext) bool {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry(s.key(id), encodeValue(s.now(), data))
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		s.logger.Error("failed to write session", "id", id, "error", err)
		return false
	}
	return true
}

// Delete removes the session key.
func (s *Store) Delete(id string, _ core.DeleteNext) bool {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(s.key(id))
	})
	if err != nil {
		s.logger.Error("failed to delete session", "id", id, "error", err)
		return false
	}
	return true
}

// Clean deletes every session in the namespace written more than
// maxLifetime seconds ago.
func (s *Store) Clean(maxLifetime int, _ core.CleanNext) bool {
	cutoff := s.now().Add(-time.Duration(maxLifetime) * time.Second)

	var expired [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: s.prefix(), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				ts, _, err := decodeValue(val)
				if err != nil || ts.Before(cutoff) {
					expired = append(expired, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to scan sessions", "error", err)
		return false
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range expired {
		if err := wb.Delete(k); err != nil {
			s.logger.Error("failed to queue session delete", "error", err)
			return false
		}
	}
	if err := wb.Flush(); err != nil {
		s.logger.Error("failed to delete expired sessions", "error", err)
		return false
	}
	s.logger.Debug("badger sessions collected", "removed", len(expired))
	return true
}

// Close closes the database if the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"edaconn/pkg/logging"
)

// kvPair is a single persisted key/value entry. Everything the session
// machine persists (tokens, status, flags) goes through this record type;
// typed accessors below convert to and from strings.
type kvPair struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Store is the persistence bridge. It survives daemon restarts and backs
// both the session key/value state and the target profile list.
type Store struct {
	db *badgerhold.Store
}

// Open opens (creating if necessary) the Badger database at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logging.Debug("Store", "Opened storage at %s", dir)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetString returns the value for key. The second return value reports
// whether the key was present.
func (s *Store) GetString(key string) (string, bool, error) {
	var pair kvPair
	err := s.db.Get(key, &pair)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return pair.Value, true, nil
}

// SetString inserts or updates a key/value pair.
func (s *Store) SetString(key, value string) error {
	pair := kvPair{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := s.db.Upsert(key, &pair); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// GetInt64 returns the integer value for key, or 0 when absent.
func (s *Store) GetInt64(key string) (int64, bool, error) {
	raw, ok, err := s.GetString(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("key %s holds non-numeric value: %w", key, err)
	}
	return v, true, nil
}

// SetInt64 stores an integer value under key.
func (s *Store) SetInt64(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

// GetBool returns the boolean value for key; absent keys read as false.
func (s *Store) GetBool(key string) (bool, error) {
	raw, ok, err := s.GetString(key)
	if err != nil || !ok {
		return false, err
	}
	return raw == "true", nil
}

// SetBool stores a boolean value under key.
func (s *Store) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

// DeleteKeys removes the given keys. Missing keys are not an error.
func (s *Store) DeleteKeys(keys ...string) error {
	for _, key := range keys {
		err := s.db.Delete(key, &kvPair{})
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

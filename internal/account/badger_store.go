package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
)

const userKeyPrefix = "user:"

// BadgerStore keeps accounts in a badger database, one CBOR encoded record
// per key "user:<username>".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the database in dir. An empty dir keeps everything
// in memory, which is what tests and throwaway deployments use.
func OpenBadgerStore(dir string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func userKey(username string) []byte {
	return []byte(userKeyPrefix + username)
}

// Create stores a, failing with ErrUserExists if the username is taken.
func (s *BadgerStore) Create(a Account) error {
	data, err := cbor.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := userKey(a.Username)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return ErrUserExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, data)
	})
}

// Get returns the account stored for username.
func (s *BadgerStore) Get(username string) (Account, error) {
	var a Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &a)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Account{}, ErrUserNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("read account %q: %w", username, err)
	}
	return a, nil
}

// Usernames lists stored usernames in key order.
func (s *BadgerStore) Usernames() ([]string, error) {
	names := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(userKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), userKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return names, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging into zerolog. Badger is
// chatty at info level, so its info lines are logged at debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

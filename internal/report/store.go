// Package report persists completed assessment results so reports can be
// retrieved after the run that produced them. Storage is a BadgerDB
// key-value store keyed by run ID.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aneeshram/artivox/internal/analysis"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("report: not found")

// keyPrefix namespaces report entries in the store.
const keyPrefix = "report/"

// Store persists assessment results in BadgerDB. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open creates a Store persisting to the given directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("report: dir must not be empty")
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory creates a Store with no disk persistence. Intended for tests
// and ephemeral deployments.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(slogLogger{}))
	if err != nil {
		return nil, fmt.Errorf("report: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists one result under its run ID, overwriting any previous entry
// with the same ID.
func (s *Store) Save(res *analysis.Result) error {
	if res.RunID == "" {
		return errors.New("report: result has no run ID")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("report: encode result: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(res.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("report: save %s: %w", res.RunID, err)
	}
	return nil
}

// Get retrieves the result for a run ID, or ErrNotFound.
func (s *Store) Get(runID string) (*analysis.Result, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(runID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report: get %s: %w", runID, err)
	}

	var res analysis.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", runID, err)
	}
	return &res, nil
}

// List returns the run IDs of all stored reports.
func (s *Store) List() ([]string, error) {
	prefix := []byte(keyPrefix)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	return ids, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(runID string) []byte {
	return []byte(keyPrefix + runID)
}

// slogLogger routes badger's own logging through slog, dropping the noisy
// info and debug levels.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...interface{})   { slog.Error(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Warningf(f string, v ...interface{}) { slog.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Infof(string, ...interface{})        {}
func (slogLogger) Debugf(string, ...interface{})       {}

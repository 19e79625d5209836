// Package store is the config store and stats store: a sqlite-backed
// key-value-plus-table store holding global settings, the device table,
// the channel whitelist, the skip-category list, and the per-(device,metric)
// stats counters. It is the only persisted state the control plane depends
// on; everything else lives in memory for the lifetime of a supervisor.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"skipfleet/internal/crypto"
)

type Store struct {
	db        *sql.DB
	encryptor *crypto.Encryptor
}

type Option func(*Store)

// WithEncryptor enables at-rest encryption of the segment-database API key.
func WithEncryptor(e *crypto.Encryptor) Option {
	return func(s *Store) { s.encryptor = e }
}

func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// HasEncryptor reports whether the store was initialized with an encryption key.
func (s *Store) HasEncryptor() bool {
	return s.encryptor != nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

// Package store implements the Credential Store (C1): atomic-as-specified
// persistence of the enrollment identity, broker address, and mTLS
// material across a key-value partition and a filesystem-like partition.
//
// Opening and pragma tuning are grounded on this codebase's db.Open: WAL
// journal mode and a busy timeout so the store tolerates concurrent reads
// from the CLI's `status` subcommand while the agent holds the connection.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
)

const (
	journalMode    = "WAL"
	busyTimeoutMS  = 5000
	kvNamespace    = "makapix"
	certCAName     = "makapix_ca.pem"
	certCertName   = "makapix_cert.pem"
	certKeyName    = "makapix_key.pem"
)

// Identity is the enrollment identity plus broker address (spec §3,
// "Enrollment Identity").
type Identity struct {
	PlayerKey string
	Host      string
	Port      uint16
}

// Certs is the mTLS material trio (spec §3, "mTLS Material").
type Certs struct {
	CA   []byte
	Cert []byte
	Key  []byte
}

// Store is the process-wide Credential Store. The KV partition lives in
// SQLite (db/connection.go's Open pattern); the cert partition lives as
// flat files on disk, matching the teacher's own direct os.WriteFile use
// for non-relational blobs (see DESIGN.md C1 entry).
type Store struct {
	db       *sql.DB
	certsDir string
}

// Open opens (creating if needed) the KV partition at kvPath and uses
// certsDir as the filesystem partition root.
func Open(kvPath, certsDir string) (*Store, error) {
	log := corelog.For("store")

	if dir := filepath.Dir(kvPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, corerrors.Wrapf(err, "creating kv directory %s", dir)
		}
	}
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return nil, corerrors.Wrapf(err, "creating certs directory %s", certsDir)
	}

	db, err := sql.Open("sqlite3", kvPath)
	if err != nil {
		return nil, corerrors.Wrapf(err, "opening kv store at %s", kvPath)
	}
	if _, err := db.Exec("PRAGMA journal_mode = " + journalMode); err != nil {
		db.Close()
		return nil, corerrors.Wrap(err, "enabling WAL journal mode")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, corerrors.Wrap(err, "setting busy timeout")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		db.Close()
		return nil, corerrors.Wrap(err, "creating kv table")
	}

	log.Infow("credential store opened", "kv_path", kvPath, "certs_dir", certsDir)
	return &Store{db: db, certsDir: certsDir}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) putKV(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
		kvNamespace, key, value,
	)
	if err != nil {
		return corerrors.Mark(corerrors.Wrap(err, "writing kv entry"), corerrors.ErrIOError)
	}
	return nil
}

func (s *Store) getKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE namespace = ? AND key = ?`, kvNamespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", corerrors.ErrNotFound
	}
	if err != nil {
		return "", corerrors.Mark(corerrors.Wrap(err, "reading kv entry"), corerrors.ErrIOError)
	}
	return value, nil
}

package store

import (
	"database/sql"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// SQLiteStore keeps payloads in a single sqlite file, keyed by hash.
type SQLiteStore struct {
	File    string
	db      *sql.DB
	written atomic.Int64
	reused  atomic.Int64
}

// OpenSQLite opens or creates the database at file. Existing tiles are kept,
// so a database can be reused across runs.
func OpenSQLite(file string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	// pragmas are per connection and the lock is exclusive
	db.SetMaxOpenConns(1)
	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := setupTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{File: file, db: db}, nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=0")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=DELETE")
	if err != nil {
		return err
	}
	return nil
}

func setupTables(db *sql.DB) error {
	_, err := db.Exec("create table if not exists tiles (hash text primary key, tile_data blob);")
	if err != nil {
		return err
	}
	_, err = db.Exec("create table if not exists metadata (name text primary key, value text);")
	return err
}

// Put inserts data unless its hash is already present.
func (s *SQLiteStore) Put(data []byte) (Hash, error) {
	h := Sum(data)
	res, err := s.db.Exec("insert or ignore into tiles (hash, tile_data) values (?, ?);", string(h), data)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n > 0 {
		s.written.Add(1)
		log.Debugf("tile %s written", h)
	} else {
		s.reused.Add(1)
	}
	return h, nil
}

func (s *SQLiteStore) Has(h Hash) (bool, error) {
	var one int
	err := s.db.QueryRow("select 1 from tiles where hash = ?;", string(h)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) Get(h Hash) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("select tile_data from tiles where hash = ?;", string(h)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return data, err
}

// SetMetadata upserts name/value rows in the metadata table.
func (s *SQLiteStore) SetMetadata(items map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for name, value := range items {
		_, err := tx.Exec("insert or replace into metadata (name, value) values (?, ?);", name, value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Metadata reads one metadata value.
func (s *SQLiteStore) Metadata(name string) (string, error) {
	var value string
	err := s.db.QueryRow("select value from metadata where name = ?;", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *SQLiteStore) Stats() Stats {
	return Stats{Written: s.written.Load(), Reused: s.reused.Load()}
}

// Close analyzes and closes the database.
func (s *SQLiteStore) Close() error {
	if _, err := s.db.Exec("ANALYZE;"); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Package store persists tile payloads under the hex sha1 of their bytes.
//
// Stores only grow: identical payloads map to the same hash and are kept
// once, and nothing is ever deleted.
package store

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get for an unknown hash.
var ErrNotFound = errors.New("tile not found")

// Hash is the hex encoded sha1 of a tile payload.
type Hash string

// Sum hashes a payload.
func Sum(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// Store is a content addressed blob store.
type Store interface {
	// Put stores data under Sum(data) unless that key already exists and
	// returns the key either way.
	Put(data []byte) (Hash, error)
	Has(h Hash) (bool, error)
	Get(h Hash) ([]byte, error)
	Stats() Stats
	Close() error
}

// MetadataSetter is implemented by stores that keep run metadata next to
// the tiles.
type MetadataSetter interface {
	SetMetadata(items map[string]string) error
}

// Stats counts Put calls by outcome.
type Stats struct {
	Written int64
	Reused  int64
}

// Format names a store backend.
type Format string

// Supported formats.
const (
	Files  Format = "files"
	SQLite Format = "sqlite"
)

// TilesDir and TilesDB name the store locations inside an output directory.
const (
	TilesDir = "tiles"
	TilesDB  = "tiles.db"
)

// Open returns the store for format inside the output directory outDir.
func Open(format Format, outDir string) (Store, error) {
	switch format {
	case Files, "":
		return NewFileStore(filepath.Join(outDir, TilesDir)), nil
	case SQLite:
		if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
			return nil, err
		}
		return OpenSQLite(filepath.Join(outDir, TilesDB))
	default:
		return nil, fmt.Errorf("unknown store format %q", format)
	}
}

// Encode returns the canonical serialization of a tile payload. Maps are
// written with sorted keys, which makes equal payloads byte-identical.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// PutValue encodes v and stores the result.
func PutValue(s Store, v interface{}) (Hash, error) {
	data, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("encode tile: %w", err)
	}
	return s.Put(data)
}

package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps one <hash>.json file per payload in a directory.
type FileStore struct {
	dir     string
	written atomic.Int64
	reused  atomic.Int64
}

// NewFileStore returns a store writing below dir. The directory is created
// on the first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir is the directory holding the tile files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path is the file a hash is stored in.
func (s *FileStore) Path(h Hash) string {
	return filepath.Join(s.dir, string(h)+".json")
}

// Put writes data to a temporary file and publishes it with a hard link,
// which fails when the target exists. Concurrent writers of the same
// payload therefore never clobber each other.
func (s *FileStore) Put(data []byte) (Hash, error) {
	h := Sum(data)
	target := s.Path(h)
	if _, err := os.Stat(target); err == nil {
		s.reused.Add(1)
		return h, nil
	}
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tile-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	err = os.Link(tmp.Name(), target)
	switch {
	case err == nil:
		s.written.Add(1)
		log.Debugf("tile %s written", h)
	case errors.Is(err, fs.ErrExist):
		s.reused.Add(1)
	default:
		return "", err
	}
	return h, nil
}

// Has reports whether h is stored.
func (s *FileStore) Has(h Hash) (bool, error) {
	_, err := os.Stat(s.Path(h))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Get reads the payload stored under h.
func (s *FileStore) Get(h Hash) ([]byte, error) {
	data, err := os.ReadFile(s.Path(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) Stats() Stats {
	return Stats{Written: s.written.Load(), Reused: s.reused.Load()}
}

func (s *FileStore) Close() error {
	return nil
}

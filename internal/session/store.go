package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"
)

// DefaultFile is the store location relative to the data directory.
const DefaultFile = "scan_data.json"

var ErrNotFound = errors.New("session not found")

// IOError reports a failure reading or writing the backing document.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store is the scan_data.json document. It performs no locking of its own;
// concurrent Load/Save callers race at whole-document granularity and the
// last writer wins. Funnel saves through a Writer to avoid that.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the whole document. A missing file is an empty document.
func (s *Store) Load() (map[string]Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Session{}, nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]Session{}, nil
	}

	doc := map[string]Session{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &IOError{Op: "decode", Path: s.path, Err: err}
	}
	// A literal null decodes to a nil map.
	if doc == nil {
		doc = map[string]Session{}
	}
	return doc, nil
}

// Save replaces the whole document atomically: readers see either the
// previous document or the new one, never a partial write.
func (s *Store) Save(doc map[string]Session) error {
	if doc == nil {
		doc = map[string]Session{}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &IOError{Op: "create dir", Path: s.path, Err: err}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}
	if err := renameio.WriteFile(s.path, data, 0644); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Get loads the document and returns one session.
func (s *Store) Get(key string) (Session, error) {
	doc, err := s.Load()
	if err != nil {
		return Session{}, err
	}
	sess, ok := doc[key]
	if !ok {
		return Session{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return sess, nil
}

// Keys returns the document's keys in chronological order.
func Keys(doc map[string]Session) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

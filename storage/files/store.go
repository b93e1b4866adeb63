package files

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/markdown"
)

var (
	ErrNotExist    = errors.New("file does not exist")
	ErrExist       = errors.New("file already exists")
	ErrInvalidPath = errors.New("invalid path")
)

// Store reads and writes files under a root directory. Writes are atomic
// (temp file + rename) and serialized per store.
type Store struct {
	root string
	mu   sync.RWMutex
}

func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving data dir")
	}
	if err = os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating data dir")
	}
	return &Store{root: abs}, nil
}

// NewStoreFromConfig opens the store rooted at conf.Storage.DataDir.
func NewStoreFromConfig(conf *core.Config) (*Store, error) {
	return NewStore(conf.Storage.DataDir)
}

func (s *Store) Root() string { return s.root }

// Path resolves rel under the root, refusing anything that escapes it.
func (s *Store) Path(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", errors.Wrap(ErrInvalidPath, rel)
	}
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(s.root, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", errors.Wrap(ErrInvalidPath, rel)
	}
	return p, nil
}

func (s *Store) Read(rel string) ([]byte, error) {
	p, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := ioutil.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotExist, rel)
	}
	return data, errors.Wrapf(err, "reading %s", rel)
}

func (s *Store) Exists(rel string) bool {
	p, err := s.Path(rel)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(p)
	return err == nil
}

func (s *Store) Write(rel string, data []byte) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(p, data)
}

// Create writes rel only when it does not exist yet, returning ErrExist otherwise.
// The complete file is hard-linked into place, so it is never seen half-written
// and two creators of the same path cannot both succeed.
func (s *Store) Create(rel string, data []byte) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpName, err := writeTemp(p, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	if err = os.Link(tmpName, p); err != nil {
		if os.IsExist(err) {
			return errors.Wrap(ErrExist, rel)
		}
		return errors.Wrap(err, "linking temp file")
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmpName, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}

// writeTemp writes data to a synced temp file next to path and returns its name.
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating dir")
	}
	tmp, err := ioutil.TempFile(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", errors.Wrap(err, "syncing temp file")
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return "", errors.Wrap(err, "closing temp file")
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", errors.Wrap(err, "chmod temp file")
	}
	return tmpName, nil
}

// Remove deletes rel. Removing a missing file returns ErrNotExist.
func (s *Store) Remove(rel string) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return errors.Wrap(ErrNotExist, rel)
	}
	return errors.Wrapf(err, "removing %s", rel)
}

// List returns the names (without ext) of the regular files of dir with the given ext, sorted.
// A missing dir lists nothing.
func (s *Store) List(dir, ext string) ([]string, error) {
	p, err := s.Path(dir)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := ioutil.ReadDir(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Mode().IsRegular() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ext))
	}
	sort.Strings(names)
	return names, nil
}

// ListDirs returns the sub-directories of dir, sorted.
func (s *Store) ListDirs(dir string) ([]string, error) {
	p, err := s.Path(dir)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := ioutil.ReadDir(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) ReadJSON(rel string, v interface{}) error {
	data, err := s.Read(rel)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decoding %s", rel)
}

func (s *Store) WriteJSON(rel string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", rel)
	}
	return s.Write(rel, append(data, '\n'))
}

// ReadRecord decodes the frontmatter of a markdown record into meta and returns its body.
func (s *Store) ReadRecord(rel string, meta interface{}) ([]byte, error) {
	data, err := s.Read(rel)
	if err != nil {
		return nil, err
	}
	body, _, err := markdown.Split(data, meta)
	return body, errors.Wrapf(err, "decoding %s", rel)
}

func (s *Store) WriteRecord(rel string, meta interface{}, body []byte) error {
	data, err := markdown.Join(meta, body)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", rel)
	}
	return s.Write(rel, data)
}

// CreateRecord is WriteRecord for a record that must not exist yet.
func (s *Store) CreateRecord(rel string, meta interface{}, body []byte) error {
	data, err := markdown.Join(meta, body)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", rel)
	}
	return s.Create(rel, data)
}

// IsNotExist reports whether err is (or wraps) ErrNotExist.
func IsNotExist(err error) bool {
	return errors.Cause(err) == ErrNotExist
}

// IsExist reports whether err is (or wraps) ErrExist.
func IsExist(err error) bool {
	return errors.Cause(err) == ErrExist
}

package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileStore keeps each list in a file under Dir, next to a TOML .meta file
// recording when it was stored.
type FileStore struct {
	Dir string
	// TTL bounds the age of entries. Zero keeps entries forever.
	TTL time.Duration

	now func() time.Time
}

// meta is the TOML-serializable entry metadata.
type meta struct {
	Key      string    `toml:"key"`
	Count    int       `toml:"count"`
	CachedAt time.Time `toml:"cached_at"`
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, ttl time.Duration) *FileStore {
	return &FileStore{Dir: dir, TTL: ttl, now: time.Now}
}

// Put writes a list to the store.
func (s *FileStore) Put(_ context.Context, key string, names []string) error {
	filePath := s.filePath(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filePath, encode(names), 0o644); err != nil {
		return err
	}

	m := meta{Key: key, Count: len(names), CachedAt: s.now().UTC()}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return err
	}
	return os.WriteFile(filePath+".meta", buf.Bytes(), 0o644)
}

// Get reads a list. Entries without readable metadata count as missing.
func (s *FileStore) Get(_ context.Context, key string) ([]string, bool, error) {
	filePath := s.filePath(key)

	body, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var m meta
	if _, err := toml.DecodeFile(filePath+".meta", &m); err != nil {
		return nil, false, nil
	}
	if m.Key != key {
		return nil, false, nil
	}
	if s.TTL > 0 && s.now().Sub(m.CachedAt) > s.TTL {
		return nil, false, nil
	}
	return decode(body), true, nil
}

func (s *FileStore) Close() error { return nil }

// filePath returns the file for key. Keys are escaped into a single file
// name; overlong ones are hashed.
func (s *FileStore) filePath(key string) string {
	name := url.PathEscape(key)
	if len(name) > 200 {
		sum := sha256.Sum256([]byte(key))
		name = hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.Dir, name)
}

// Package blob implements OxiDB's content-addressed bucket/object store:
// objects are stored under _blobs/<bucket>/<sha256>.obj with a JSON
// sidecar (<sha256>.meta.json) carrying the caller-supplied key,
// content-type, user metadata, and size. An in-memory key->sha256 index
// per bucket is rebuilt at open by rescanning the sidecar files, the
// same recovery-by-rescan idiom pkg/storage uses for collections.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// ObjectMeta is the JSON sidecar persisted alongside each object's bytes.
type ObjectMeta struct {
	Key         string            `json:"key"`
	SHA256      string            `json:"sha256"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
}

// Bucket is one open bucket: its directory plus the in-memory key index.
type Bucket struct {
	name string
	dir  string

	mu    sync.RWMutex
	byKey map[string]ObjectMeta
}

// Store owns the mapping from bucket name to open Bucket, rooted at
// <dataDir>/_blobs.
type Store struct {
	baseDir string

	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// NewStore returns a Store rooted at dataDir/_blobs.
func NewStore(dataDir string) *Store {
	return &Store{baseDir: filepath.Join(dataDir, "_blobs"), buckets: make(map[string]*Bucket)}
}

// CreateBucket creates (idempotently) the on-disk directory for name and
// opens it, rebuilding its key index from any existing sidecars.
func (s *Store) CreateBucket(name string) (*Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "create bucket directory %q", name)
	}
	b, err := openBucket(name, dir)
	if err != nil {
		return nil, err
	}
	s.buckets[name] = b
	return b, nil
}

// Bucket returns an already-open or newly opened bucket handle.
func (s *Store) Bucket(name string) (*Bucket, error) {
	s.mu.RLock()
	if b, ok := s.buckets[name]; ok {
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()
	return s.CreateBucket(name)
}

// DeleteBucket removes a bucket's directory entirely and evicts its handle.
func (s *Store) DeleteBucket(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, name)
	if err := os.RemoveAll(filepath.Join(s.baseDir, name)); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "remove bucket directory %q", name)
	}
	return nil
}

// ListBuckets returns every bucket directory name on disk.
func (s *Store) ListBuckets() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "list buckets")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func openBucket(name, dir string) (*Bucket, error) {
	b := &Bucket{name: name, dir: dir, byKey: make(map[string]ObjectMeta)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "read bucket directory %q", name)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var meta ObjectMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		b.byKey[meta.Key] = meta
	}
	return b, nil
}

// Put stores data under key, content-addressed by its SHA-256 digest
// (objects with identical bytes are deduplicated within the bucket).
func (b *Bucket) Put(key, contentType string, data []byte, metadata map[string]string) (ObjectMeta, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	objPath := filepath.Join(b.dir, digest+".obj")
	if _, err := os.Stat(objPath); os.IsNotExist(err) {
		if err := os.WriteFile(objPath, data, 0o644); err != nil {
			return ObjectMeta{}, oxierr.Wrap(oxierr.IOError, err, "write object %q", digest)
		}
	}

	meta := ObjectMeta{Key: key, SHA256: digest, ContentType: contentType, Metadata: metadata, Size: int64(len(data))}
	metaPath := filepath.Join(b.dir, digest+".meta.json")
	metaData, err := json.Marshal(meta)
	if err != nil {
		return ObjectMeta{}, oxierr.Wrap(oxierr.Internal, err, "marshal object metadata")
	}
	if err := os.WriteFile(metaPath, metaData, 0o644); err != nil {
		return ObjectMeta{}, oxierr.Wrap(oxierr.IOError, err, "write object metadata %q", digest)
	}

	b.mu.Lock()
	b.byKey[key] = meta
	b.mu.Unlock()
	return meta, nil
}

// Get returns an object's bytes and metadata by caller key.
func (b *Bucket) Get(key string) ([]byte, ObjectMeta, bool, error) {
	meta, ok := b.lookup(key)
	if !ok {
		return nil, ObjectMeta{}, false, nil
	}
	data, err := os.ReadFile(filepath.Join(b.dir, meta.SHA256+".obj"))
	if err != nil {
		return nil, ObjectMeta{}, false, oxierr.Wrap(oxierr.IOError, err, "read object %q", meta.SHA256)
	}
	return data, meta, true, nil
}

// Head returns only an object's metadata by caller key.
func (b *Bucket) Head(key string) (ObjectMeta, bool) {
	return b.lookup(key)
}

func (b *Bucket) lookup(key string) (ObjectMeta, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, ok := b.byKey[key]
	return meta, ok
}

// Delete removes the sidecar (and, if no other key references the same
// digest, the underlying object bytes) for key.
func (b *Bucket) Delete(key string) error {
	b.mu.Lock()
	meta, ok := b.byKey[key]
	if !ok {
		b.mu.Unlock()
		return oxierr.New(oxierr.NotFound, "object %q not found", key)
	}
	delete(b.byKey, key)
	stillReferenced := false
	for _, m := range b.byKey {
		if m.SHA256 == meta.SHA256 {
			stillReferenced = true
			break
		}
	}
	b.mu.Unlock()

	if err := os.Remove(filepath.Join(b.dir, meta.SHA256+".meta.json")); err != nil && !os.IsNotExist(err) {
		return oxierr.Wrap(oxierr.IOError, err, "remove object metadata %q", meta.SHA256)
	}
	if !stillReferenced {
		if err := os.Remove(filepath.Join(b.dir, meta.SHA256+".obj")); err != nil && !os.IsNotExist(err) {
			return oxierr.Wrap(oxierr.IOError, err, "remove object %q", meta.SHA256)
		}
	}
	return nil
}

// List returns the metadata of every object in the bucket.
func (b *Bucket) List() []ObjectMeta {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ObjectMeta, 0, len(b.byKey))
	for _, m := range b.byKey {
		out = append(out, m)
	}
	return out
}

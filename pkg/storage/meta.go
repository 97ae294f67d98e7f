package storage

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// IndexDef is the persisted definition of one secondary index
// (spec.md §3 "Index definition").
type IndexDef struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"` // "single" | "composite" | "text"
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

// Meta is a collection's persisted configuration: its index catalog and
// compaction epoch (spec.md §4.1 "File layout per collection").
type Meta struct {
	Epoch   int        `json:"epoch"`
	Indexes []IndexDef `json:"indexes"`
}

// LoadMeta reads meta.json, returning a zero-value Meta if it doesn't exist
// yet (a freshly created collection).
func LoadMeta(dir string) (Meta, error) {
	path := filepath.Join(dir, "meta.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Meta{}, nil
	}
	if err != nil {
		return Meta{}, oxierr.Wrap(oxierr.IOError, err, "read meta.json")
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, oxierr.Wrap(oxierr.Corruption, err, "parse meta.json")
	}
	return m, nil
}

// SaveMeta writes meta.json atomically (write to a temp file, fsync,
// rename), matching the log's crash-safety discipline.
func SaveMeta(dir string, m Meta) error {
	path := filepath.Join(dir, "meta.json")
	tmp := path + ".tmp"
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return oxierr.Wrap(oxierr.Internal, err, "marshal meta.json")
	}
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "create meta.json.tmp")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return oxierr.Wrap(oxierr.IOError, err, "write meta.json.tmp")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return oxierr.Wrap(oxierr.IOError, err, "fsync meta.json.tmp")
	}
	if err := f.Close(); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "close meta.json.tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "rename meta.json.tmp")
	}
	return nil
}

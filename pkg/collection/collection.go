// Package collection implements the collection manager: the mapping from
// collection name to live collection handle, and each collection's
// document CRUD/index/compaction operations built on pkg/storage,
// pkg/index, pkg/query and pkg/planner.
package collection

import (
	"sync"

	"github.com/google/uuid"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/index"
	"github.com/oxidb/oxidb/pkg/oxierr"
	"github.com/oxidb/oxidb/pkg/planner"
	"github.com/oxidb/oxidb/pkg/query"
	"github.com/oxidb/oxidb/pkg/storage"
)

// Collection is one open, live collection: its append log, the decoded
// live document map, and its secondary index catalog.
type Collection struct {
	name string
	dir  string

	mu      sync.RWMutex
	log     *storage.Log
	docs    map[string]document.Value
	indexes map[string]*index.Index
	meta    storage.Meta
}

// Open opens (creating if necessary) the collection at dir, replays its
// log, and rebuilds every defined index from the recovered live document
// map (pkg/index's "always rebuild from live map" design).
func Open(name, dir string) (*Collection, error) {
	log, entries, err := storage.OpenLog(dir)
	if err != nil {
		return nil, err
	}
	meta, err := storage.LoadMeta(dir)
	if err != nil {
		log.Close()
		return nil, err
	}

	c := &Collection{
		name:    name,
		dir:     dir,
		log:     log,
		docs:    make(map[string]document.Value, len(entries)),
		indexes: make(map[string]*index.Index, len(meta.Indexes)),
		meta:    meta,
	}

	for _, rp := range entries {
		doc, err := document.Parse(rp.Document)
		if err != nil {
			log.Close()
			return nil, oxierr.Wrap(oxierr.Corruption, err, "decode recovered document %q", rp.ID)
		}
		c.docs[rp.ID] = doc
	}
	for _, def := range meta.Indexes {
		idx := index.New(toIndexDef(def))
		for id, doc := range c.docs {
			if err := idx.Insert(id, doc); err != nil {
				log.Close()
				return nil, oxierr.Wrap(oxierr.Corruption, err, "rebuild index %q", def.Name)
			}
		}
		c.indexes[def.Name] = idx
	}
	return c, nil
}

// Lock acquires the collection's write lock. Exposed for the
// transaction layer, which must hold every participant collection's
// write lock for the duration of a commit, acquired in lexicographic
// order of collection name to avoid deadlock against a concurrent
// transaction touching the same collections in a different order.
func (c *Collection) Lock() { c.mu.Lock() }

// Unlock releases the write lock acquired by Lock.
func (c *Collection) Unlock() { c.mu.Unlock() }

// Close releases the collection's log file handle.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Close()
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

func toIndexDef(d storage.IndexDef) index.Def {
	fields := make([]document.Path, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = document.ParsePath(f)
	}
	return index.Def{Name: d.Name, Kind: index.Kind(d.Kind), Fields: fields, Unique: d.Unique}
}

func fromIndexDef(d index.Def) storage.IndexDef {
	fields := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = f.String()
	}
	return storage.IndexDef{Name: d.Name, Kind: string(d.Kind), Fields: fields, Unique: d.Unique}
}

// Insert assigns a new _id if the document doesn't already carry one,
// appends a Put record, and maintains every index. Insert fails if a
// unique index rejects the document's projection.
func (c *Collection) Insert(doc document.Value) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.InsertLocked(doc)
}

// InsertLocked is Insert's body without its own locking, for callers
// (the transaction layer) that already hold the collection's write
// lock across several operations.
func (c *Collection) InsertLocked(doc document.Value) (string, error) {
	id, doc := ensureID(doc)
	if _, exists := c.docs[id]; exists {
		return "", oxierr.New(oxierr.Conflict, "document %q already exists", id)
	}

	for _, idx := range c.indexes {
		if err := idx.Insert(id, doc); err != nil {
			c.rollbackInsert(id, doc)
			return "", err
		}
	}
	if err := c.log.AppendPut(id, doc); err != nil {
		c.rollbackInsert(id, doc)
		return "", err
	}
	c.docs[id] = doc
	return id, nil
}

func (c *Collection) rollbackInsert(id string, doc document.Value) {
	for _, idx := range c.indexes {
		idx.Remove(id, doc)
	}
}

func ensureID(doc document.Value) (string, document.Value) {
	idPath := document.ParsePath("_id")
	if v, ok := document.Get(doc, idPath); ok && v.Kind == document.KindString && v.S != "" {
		return v.S, doc
	}
	id := uuid.NewString()
	return id, document.Set(doc, idPath, document.String(id))
}

// FindOne returns the first document matching filter, applying the
// planner's chosen access path.
func (c *Collection) FindOne(filter document.Value) (document.Value, bool, error) {
	results, err := c.Find(filter, 1, 0)
	if err != nil || len(results) == 0 {
		return document.Value{}, false, err
	}
	return results[0], true, nil
}

// Find returns every document matching filter, honoring limit (0 = no
// limit) and skip.
func (c *Collection) Find(filter document.Value, limit, skip int) ([]document.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.candidateIDs(filter)
	var out []document.Value
	skipped := 0
	for _, id := range ids {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		if !query.Match(doc, filter) {
			continue
		}
		if skipped < skip {
			skipped++
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of documents matching filter.
func (c *Collection) Count(filter document.Value) (int, error) {
	results, err := c.Find(filter, 0, 0)
	return len(results), err
}

// candidateIDs asks the planner for an access path and resolves it to a
// candidate id list; query.Match is always re-applied by the caller as
// the correctness backstop regardless of what the index actually covered.
func (c *Collection) candidateIDs(filter document.Value) []string {
	cat := make(planner.Catalog, len(c.indexes))
	for name, idx := range c.indexes {
		cat[name] = idx
	}
	plan := planner.Plan(filter, cat)
	if plan.Access == planner.AccessScan || plan.IndexName == "" {
		return c.allIDs()
	}

	idx := c.indexes[plan.IndexName]
	switch plan.Access {
	case planner.AccessUniqueEquality, planner.AccessEquality, planner.AccessCompositeEq:
		v, ok := equalityValue(plan.Constraint.Cond)
		if !ok {
			return c.allIDs()
		}
		if plan.Access == planner.AccessCompositeEq {
			// Composite keys are full tuples; the constraint fixes only
			// the leading field.
			return idx.Prefix(document.KeyTuple{v})
		}
		return idx.Points(document.KeyTuple{v})
	case planner.AccessRange:
		lo, hi, incLo, incHi := rangeBounds(plan.Constraint.Cond)
		return idx.Range(lo, hi, incLo, incHi)
	case planner.AccessCompositeRange:
		// A longer key whose leading field equals the 1-tuple upper bound
		// sorts above that bound, so only the lower bound narrows the scan.
		lo, _, incLo, _ := rangeBounds(plan.Constraint.Cond)
		return idx.Range(lo, nil, incLo, true)
	default:
		return c.allIDs()
	}
}

// equalityValue extracts the scalar an equality constraint resolves to:
// either the implicit scalar itself, or the argument of an explicit $eq.
func equalityValue(cond document.Value) (document.Value, bool) {
	if cond.Kind != document.KindObject {
		return cond, true
	}
	if v, ok := cond.O.Get("$eq"); ok {
		return v, true
	}
	return document.Value{}, false
}

func rangeBounds(cond document.Value) (lo, hi document.KeyTuple, incLo, incHi bool) {
	if cond.Kind != document.KindObject {
		return nil, nil, true, true
	}
	for _, op := range cond.O.Keys() {
		v, _ := cond.O.Get(op)
		switch op {
		case "$gt":
			lo, incLo = document.KeyTuple{v}, false
		case "$gte":
			lo, incLo = document.KeyTuple{v}, true
		case "$lt":
			hi, incHi = document.KeyTuple{v}, false
		case "$lte":
			hi, incHi = document.KeyTuple{v}, true
		}
	}
	return lo, hi, incLo, incHi
}

func (c *Collection) allIDs() []string {
	out := make([]string, 0, len(c.docs))
	for id := range c.docs {
		out = append(out, id)
	}
	return out
}

// Update applies the update operator document to every document matching
// filter, maintaining indexes and the append log per document.
func (c *Collection) Update(filter, update document.Value) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.UpdateLocked(filter, update)
}

// UpdateLocked is Update's body without its own locking; see InsertLocked.
func (c *Collection) UpdateLocked(filter, update document.Value) (int, error) {
	var updated int
	for id, doc := range c.docs {
		if !query.Match(doc, filter) {
			continue
		}
		newDoc, err := query.ApplyUpdate(doc, update)
		if err != nil {
			return updated, err
		}
		for _, idx := range c.indexes {
			if err := idx.Update(id, doc, newDoc); err != nil {
				return updated, err
			}
		}
		if err := c.log.AppendPut(id, newDoc); err != nil {
			return updated, err
		}
		c.docs[id] = newDoc
		updated++
	}
	return updated, nil
}

// Delete removes every document matching filter.
func (c *Collection) Delete(filter document.Value) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DeleteLocked(filter)
}

// DeleteLocked is Delete's body without its own locking; see InsertLocked.
func (c *Collection) DeleteLocked(filter document.Value) (int, error) {
	var removed int
	for id, doc := range c.docs {
		if !query.Match(doc, filter) {
			continue
		}
		if err := c.log.AppendDelete(id); err != nil {
			return removed, err
		}
		for _, idx := range c.indexes {
			idx.Remove(id, doc)
		}
		delete(c.docs, id)
		removed++
	}
	return removed, nil
}

// CreateIndex defines a new index and backfills it by scanning every live
// document (spec.md §3 "Lifecycle": "creation backfills by scanning the
// collection").
func (c *Collection) CreateIndex(def index.Def) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.indexes[def.Name]; exists {
		return oxierr.New(oxierr.Conflict, "index %q already exists", def.Name)
	}
	idx := index.New(def)
	for id, doc := range c.docs {
		if err := idx.Insert(id, doc); err != nil {
			return err
		}
	}
	c.indexes[def.Name] = idx
	c.meta.Indexes = append(c.meta.Indexes, fromIndexDef(def))
	return storage.SaveMeta(c.dir, c.meta)
}

// DropIndex removes an index definition and its in-memory structure.
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.indexes[name]; !exists {
		return oxierr.New(oxierr.NotFound, "index %q not found", name)
	}
	delete(c.indexes, name)
	kept := c.meta.Indexes[:0]
	for _, d := range c.meta.Indexes {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	c.meta.Indexes = kept
	return storage.SaveMeta(c.dir, c.meta)
}

// ListIndexes returns the collection's index definitions.
func (c *Collection) ListIndexes() []storage.IndexDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]storage.IndexDef, len(c.meta.Indexes))
	copy(out, c.meta.Indexes)
	return out
}

// Compact rewrites the append log to hold one Put per live document and
// bumps the epoch counter.
func (c *Collection) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := make([]storage.RecordPayload, 0, len(c.docs))
	for id, doc := range c.docs {
		data, err := document.Marshal(doc)
		if err != nil {
			return oxierr.Wrap(oxierr.Internal, err, "marshal document %q for compaction", id)
		}
		live = append(live, storage.RecordPayload{Op: storage.OpPut, ID: id, Document: data})
	}
	if err := c.log.Rewrite(live); err != nil {
		return err
	}
	c.meta.Epoch++
	return storage.SaveMeta(c.dir, c.meta)
}

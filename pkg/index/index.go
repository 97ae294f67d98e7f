// Package index implements OxiDB's in-memory secondary index structures:
// single-field, unique, composite, and text indexes, rebuilt from the
// collection's live document map at open (spec.md §4.1, §4.2) and kept
// current by diffing old vs new document projections on every write.
package index

import (
	"sort"
	"sync"

	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Kind identifies an index's structure.
type Kind string

const (
	KindSingle    Kind = "single"
	KindComposite Kind = "composite"
	KindText      Kind = "text"
)

// Def is an index definition (collection-scoped).
type Def struct {
	Name   string
	Kind   Kind
	Fields []document.Path
	Unique bool
}

// DefaultName builds the default "{fields_joined}_{kind}" index name.
func DefaultName(fields []string, kind Kind) string {
	joined := ""
	for i, f := range fields {
		if i > 0 {
			joined += "_"
		}
		joined += f
	}
	return joined + "_" + string(kind)
}

// entrySet is the unordered set of document ids mapped to one key tuple;
// idsOf returns its members sorted.
type entrySet map[string]struct{}

// Index is one maintained secondary index.
type Index struct {
	mu     sync.RWMutex
	Def    Def
	byKey  map[string]entrySet      // canonical key string -> ids (single/composite)
	keys   []document.KeyTuple      // sorted distinct key tuples (single/composite)
	tokens map[string]entrySet      // token -> ids (text)
}

// New creates an empty index of the given definition.
func New(def Def) *Index {
	idx := &Index{Def: def}
	if def.Kind == KindText {
		idx.tokens = make(map[string]entrySet)
	} else {
		idx.byKey = make(map[string]entrySet)
	}
	return idx
}

// Reset clears all entries (used before a full rebuild).
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Def.Kind == KindText {
		idx.tokens = make(map[string]entrySet)
	} else {
		idx.byKey = make(map[string]entrySet)
		idx.keys = nil
	}
}

// Insert adds doc's projection to the index under id, failing with a
// ConstraintViolation-equivalent error if this is a unique index and the
// key tuple already maps to a different id (spec.md §3 invariant 3).
func (idx *Index) Insert(id string, doc document.Value) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Def.Kind == KindText {
		for _, tok := range Tokenize(textOf(doc, idx.Def.Fields)) {
			idx.addToken(tok, id)
		}
		return nil
	}
	tuples := idx.project(doc)
	for _, t := range tuples {
		key := t.String()
		if idx.Def.Unique {
			if set, ok := idx.byKey[key]; ok {
				for existing := range set {
					if existing != id {
						return oxierr.New(oxierr.Conflict, "unique index %q: duplicate key", idx.Def.Name)
					}
				}
			}
		}
		idx.addKey(t, key, id)
	}
	return nil
}

// Remove deletes doc's projection for id.
func (idx *Index) Remove(id string, doc document.Value) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Def.Kind == KindText {
		for _, tok := range Tokenize(textOf(doc, idx.Def.Fields)) {
			idx.removeToken(tok, id)
		}
		return
	}
	for _, t := range idx.project(doc) {
		idx.removeKey(t, t.String(), id)
	}
}

// Update diffs oldDoc vs newDoc and applies the minimal set of additions
// and removals (spec.md §4.2 "Maintenance"). Validates uniqueness before
// any mutation is applied.
func (idx *Index) Update(id string, oldDoc, newDoc document.Value) error {
	idx.mu.RLock()
	kind := idx.Def.Kind
	idx.mu.RUnlock()

	if kind == KindText {
		oldToks := toSet(Tokenize(textOf(oldDoc, idx.Def.Fields)))
		newToks := toSet(Tokenize(textOf(newDoc, idx.Def.Fields)))
		idx.mu.Lock()
		defer idx.mu.Unlock()
		for tok := range oldToks {
			if _, keep := newToks[tok]; !keep {
				idx.removeToken(tok, id)
			}
		}
		for tok := range newToks {
			if _, had := oldToks[tok]; !had {
				idx.addToken(tok, id)
			}
		}
		return nil
	}

	oldTuples := idx.project(oldDoc)
	newTuples := idx.project(newDoc)
	oldSet := tupleSet(oldTuples)
	newSet := tupleSet(newTuples)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.Def.Unique {
		for key, t := range newSet {
			if _, already := oldSet[key]; already {
				continue
			}
			if set, ok := idx.byKey[key]; ok {
				for existing := range set {
					if existing != id {
						return oxierr.New(oxierr.Conflict, "unique index %q: duplicate key", idx.Def.Name)
					}
				}
			}
			_ = t
		}
	}

	for key, t := range oldSet {
		if _, keep := newSet[key]; !keep {
			idx.removeKey(t, key, id)
		}
	}
	for key, t := range newSet {
		if _, had := oldSet[key]; !had {
			idx.addKey(t, key, id)
		}
	}
	return nil
}

func tupleSet(tuples []document.KeyTuple) map[string]document.KeyTuple {
	out := make(map[string]document.KeyTuple, len(tuples))
	for _, t := range tuples {
		out[t.String()] = t
	}
	return out
}

func toSet(toks []string) map[string]struct{} {
	out := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		out[t] = struct{}{}
	}
	return out
}

func (idx *Index) project(doc document.Value) []document.KeyTuple {
	if len(idx.Def.Fields) == 1 {
		return document.ProjectOne(doc, idx.Def.Fields[0])
	}
	return document.ProjectComposite(doc, idx.Def.Fields)
}

func (idx *Index) addKey(t document.KeyTuple, key, id string) {
	set, ok := idx.byKey[key]
	if !ok {
		set = make(entrySet)
		idx.byKey[key] = set
		idx.insertSortedKey(t)
	}
	set[id] = struct{}{}
}

func (idx *Index) removeKey(t document.KeyTuple, key, id string) {
	set, ok := idx.byKey[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx.byKey, key)
		idx.removeSortedKey(t)
	}
}

func (idx *Index) addToken(tok, id string) {
	set, ok := idx.tokens[tok]
	if !ok {
		set = make(entrySet)
		idx.tokens[tok] = set
	}
	set[id] = struct{}{}
}

func (idx *Index) removeToken(tok, id string) {
	set, ok := idx.tokens[tok]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx.tokens, tok)
	}
}

func (idx *Index) insertSortedKey(t document.KeyTuple) {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i].Compare(t) >= 0 })
	idx.keys = append(idx.keys, nil)
	copy(idx.keys[i+1:], idx.keys[i:])
	idx.keys[i] = t
}

func (idx *Index) removeSortedKey(t document.KeyTuple) {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i].Compare(t) >= 0 })
	if i < len(idx.keys) && idx.keys[i].Compare(t) == 0 {
		idx.keys = append(idx.keys[:i], idx.keys[i+1:]...)
	}
}

func idsOf(set entrySet) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

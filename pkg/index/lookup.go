package index

import "github.com/oxidb/oxidb/pkg/document"

// Points returns the ids whose key tuple equals key exactly.
func (idx *Index) Points(key document.KeyTuple) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.byKey[key.String()]
	if !ok {
		return nil
	}
	return idsOf(set)
}

// Range returns ids for all key tuples in [lo, hi] (or open-ended, per the
// inclusive flags), in key order. A nil lo or hi means unbounded on that
// side (spec.md §4.2 "Lookup operations").
func (idx *Index) Range(lo, hi document.KeyTuple, incLo, incHi bool) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, k := range idx.keys {
		if lo != nil {
			c := k.Compare(lo)
			if c < 0 || (c == 0 && !incLo) {
				continue
			}
		}
		if hi != nil {
			c := k.Compare(hi)
			if c > 0 || (c == 0 && !incHi) {
				continue
			}
		}
		for id := range idx.byKey[k.String()] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// Prefix returns ids for every key tuple beginning with prefix, in key
// order (composite-index prefix scans).
func (idx *Index) Prefix(prefix document.KeyTuple) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, k := range idx.keys {
		if !k.HasPrefix(prefix) {
			continue
		}
		for id := range idx.byKey[k.String()] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// Postings returns ids whose text index contains token (already
// lowercased/case-folded by the caller via Tokenize).
func (idx *Index) Postings(token string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.tokens[token]
	if !ok {
		return nil
	}
	return idsOf(set)
}

// KeyCount returns the number of distinct key tuples (used by the planner
// to estimate selectivity for range scans).
func (idx *Index) KeyCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.Def.Kind == KindText {
		return len(idx.tokens)
	}
	return len(idx.keys)
}

// TotalEntries returns the total number of (key, id) pairs, used as the
// denominator for the planner's range-selectivity estimate.
func (idx *Index) TotalEntries() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := 0
	if idx.Def.Kind == KindText {
		for _, s := range idx.tokens {
			total += len(s)
		}
		return total
	}
	for _, s := range idx.byKey {
		total += len(s)
	}
	return total
}

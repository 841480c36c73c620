package storage

import (
	"stashdb/storage/index"
	"stashdb/value"
)

// keySet is an index bucket: the set of entry keys filed under one index
// term.
type keySet map[string]struct{}

// indexManager keeps every secondary index consistent with the store:
//
//   - exact:    canonical serialization → keys (whole-value equality)
//   - fields:   field name → canonical field value → keys (field equality,
//     top-level struct fields only)
//   - fulltext: lower-cased token → keys (inverted index over textual and
//     numeric leaves)
//   - ranges:   field name → numeric B-tree ("" holds bare numeric values)
//
// Updates are performed as delete-then-insert; there is no incremental
// fast path. Empty buckets and empty trees are pruned on removal.
type indexManager struct {
	exact    map[string]keySet
	fields   map[string]map[string]keySet
	fulltext map[string]keySet
	ranges   map[string]*index.Tree
}

func newIndexManager() *indexManager {
	return &indexManager{
		exact:    make(map[string]keySet),
		fields:   make(map[string]map[string]keySet),
		fulltext: make(map[string]keySet),
		ranges:   make(map[string]*index.Tree),
	}
}

// insert files key under every index term derived from v.
func (ix *indexManager) insert(key string, v value.Value) {
	addKey(ix.exact, v.Canonical(), key)

	for _, tok := range v.Tokens() {
		addKey(ix.fulltext, tok, key)
	}

	if v.Kind() == value.KindStruct {
		for _, f := range v.Fields() {
			byValue, ok := ix.fields[f.Name]
			if !ok {
				byValue = make(map[string]keySet)
				ix.fields[f.Name] = byValue
			}
			addKey(byValue, f.Value.Canonical(), key)

			if num, ok := f.Value.Number(); ok {
				ix.rangeTree(f.Name).Insert(num, key)
			}
		}
	}

	if num, ok := v.Number(); ok {
		ix.rangeTree("").Insert(num, key)
	}
}

// remove takes key out of every index bucket derived from v, pruning
// buckets and trees that become empty.
func (ix *indexManager) remove(key string, v value.Value) {
	dropKey(ix.exact, v.Canonical(), key)

	for _, tok := range v.Tokens() {
		dropKey(ix.fulltext, tok, key)
	}

	if v.Kind() == value.KindStruct {
		for _, f := range v.Fields() {
			if byValue, ok := ix.fields[f.Name]; ok {
				dropKey(byValue, f.Value.Canonical(), key)
				if len(byValue) == 0 {
					delete(ix.fields, f.Name)
				}
			}
			if num, ok := f.Value.Number(); ok {
				ix.dropRange(f.Name, num, key)
			}
		}
	}

	if num, ok := v.Number(); ok {
		ix.dropRange("", num, key)
	}
}

// rebuild replaces all index contents with what a full pass over the store
// produces. Used at startup and after a failed batch apply.
func (ix *indexManager) rebuild(s *store) {
	ix.exact = make(map[string]keySet)
	ix.fields = make(map[string]map[string]keySet)
	ix.fulltext = make(map[string]keySet)
	ix.ranges = make(map[string]*index.Tree)
	for key, v := range s.entries {
		ix.insert(key, v)
	}
}

func (ix *indexManager) rangeTree(field string) *index.Tree {
	tree, ok := ix.ranges[field]
	if !ok {
		tree = index.NewTree()
		ix.ranges[field] = tree
	}
	return tree
}

func (ix *indexManager) dropRange(field string, num float64, key string) {
	tree, ok := ix.ranges[field]
	if !ok {
		return
	}
	tree.Delete(num, key)
	if tree.Len() == 0 {
		delete(ix.ranges, field)
	}
}

// lookupExact returns the keys whose whole value has the given canonical
// serialization.
func (ix *indexManager) lookupExact(canonical string) []string {
	return setKeys(ix.exact[canonical])
}

// lookupField returns the keys whose top-level field matches the canonical
// value.
func (ix *indexManager) lookupField(field, canonical string) []string {
	byValue, ok := ix.fields[field]
	if !ok {
		return nil
	}
	return setKeys(byValue[canonical])
}

// lookupFullText returns the keys whose token set contains every word.
// No words means no matches.
func (ix *indexManager) lookupFullText(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	result, ok := ix.fulltext[words[0]]
	if !ok {
		return nil
	}
	for _, word := range words[1:] {
		bucket, ok := ix.fulltext[word]
		if !ok {
			return nil
		}
		next := make(keySet)
		for key := range result {
			if _, ok := bucket[key]; ok {
				next[key] = struct{}{}
			}
		}
		if len(next) == 0 {
			return nil
		}
		result = next
	}
	return setKeys(result)
}

// rangeQuery returns the keys whose indexed numeric value under field is
// above (gt) or below the bound.
func (ix *indexManager) rangeQuery(field string, gt bool, bound float64) []string {
	tree, ok := ix.ranges[field]
	if !ok {
		return nil
	}
	if gt {
		return tree.Above(bound)
	}
	return tree.Below(bound)
}

func addKey(m map[string]keySet, term, key string) {
	set, ok := m[term]
	if !ok {
		set = make(keySet)
		m[term] = set
	}
	set[key] = struct{}{}
}

func dropKey(m map[string]keySet, term, key string) {
	set, ok := m[term]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(m, term)
	}
}

func setKeys(set keySet) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}

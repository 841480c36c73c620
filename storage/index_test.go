package storage

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"stashdb/value"
)

func TestIndexManager_InsertRemove(t *testing.T) {
	ix := newIndexManager()
	v := mustParseValue(t, `{"Name":"Alice Smith","Age":15}`)

	ix.insert("s1", v)

	keysEqual(t, sorted(ix.lookupExact(v.Canonical())), []string{"s1"})
	keysEqual(t, sorted(ix.lookupField("Name", `"Alice Smith"`)), []string{"s1"})
	keysEqual(t, sorted(ix.lookupFullText([]string{"alice", "smith"})), []string{"s1"})
	keysEqual(t, sorted(ix.rangeQuery("Age", true, 10)), []string{"s1"})

	ix.remove("s1", v)

	if len(ix.exact) != 0 || len(ix.fields) != 0 || len(ix.fulltext) != 0 || len(ix.ranges) != 0 {
		t.Errorf("buckets not pruned: exact=%d fields=%d fulltext=%d ranges=%d",
			len(ix.exact), len(ix.fields), len(ix.fulltext), len(ix.ranges))
	}
}

func TestIndexManager_BareNumberUsesDefaultTree(t *testing.T) {
	ix := newIndexManager()
	ix.insert("n1", value.Number(10))
	ix.insert("n2", value.Number(20))

	keysEqual(t, sorted(ix.rangeQuery("", true, 15)), []string{"n2"})
	keysEqual(t, sorted(ix.rangeQuery("", false, 15)), []string{"n1"})

	ix.remove("n1", value.Number(10))
	keysEqual(t, ix.rangeQuery("", false, 15), nil)
}

func TestIndexManager_NonNumericFieldSkipsRangeTree(t *testing.T) {
	ix := newIndexManager()
	ix.insert("s1", mustParseValue(t, `{"Name":"Alice"}`))
	if len(ix.ranges) != 0 {
		t.Errorf("text field must not create a range tree: %v", ix.ranges)
	}
}

// Incremental maintenance must land on exactly the state a full rebuild
// produces, whatever the mix of inserts, updates, and deletes.
func TestIndexManager_MatchesRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := newStore(nil)
	ix := newIndexManager()

	randomValue := func() value.Value {
		switch rng.Intn(4) {
		case 0:
			return value.Number(float64(rng.Intn(50)))
		case 1:
			return value.Text(fmt.Sprintf("word%d common", rng.Intn(10)))
		case 2:
			return mustParseValue(t, fmt.Sprintf(`{"Age":%d,"Name":"p%d"}`, rng.Intn(90), rng.Intn(20)))
		default:
			return mustParseValue(t, fmt.Sprintf("[%d,%d]", rng.Intn(10), rng.Intn(10)))
		}
	}

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%02d", rng.Intn(40))
		old, exists := s.get(key)
		switch {
		case !exists:
			v := randomValue()
			s.put(key, v)
			ix.insert(key, v)
		case rng.Intn(2) == 0:
			v := randomValue()
			ix.remove(key, old)
			s.put(key, v)
			ix.insert(key, v)
		default:
			ix.remove(key, old)
			s.remove(key)
		}
	}

	fresh := newIndexManager()
	fresh.rebuild(s)

	if !sameBuckets(ix.exact, fresh.exact) {
		t.Error("exact index diverged from rebuild")
	}
	if !sameBuckets(ix.fulltext, fresh.fulltext) {
		t.Error("fulltext index diverged from rebuild")
	}
	if len(ix.fields) != len(fresh.fields) {
		t.Fatalf("field index count %d, want %d", len(ix.fields), len(fresh.fields))
	}
	for name, byValue := range fresh.fields {
		if !sameBuckets(ix.fields[name], byValue) {
			t.Errorf("field index %q diverged from rebuild", name)
		}
	}
	if len(ix.ranges) != len(fresh.ranges) {
		t.Fatalf("range tree count %d, want %d", len(ix.ranges), len(fresh.ranges))
	}
	for name, tree := range fresh.ranges {
		got := ix.ranges[name]
		if got == nil || got.Len() != tree.Len() {
			t.Errorf("range tree %q size diverged from rebuild", name)
			continue
		}
		if !reflect.DeepEqual(sorted(got.Above(-1)), sorted(tree.Above(-1))) {
			t.Errorf("range tree %q contents diverged from rebuild", name)
		}
	}
}

func sameBuckets(a, b map[string]keySet) bool {
	if len(a) != len(b) {
		return false
	}
	for term, set := range a {
		other, ok := b[term]
		if !ok || len(other) != len(set) {
			return false
		}
		for key := range set {
			if _, ok := other[key]; !ok {
				return false
			}
		}
	}
	return true
}

func sorted(keys []string) []string {
	sort.Strings(keys)
	return keys
}

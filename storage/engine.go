package storage

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"stashdb/auth"
	"stashdb/metrics"
	"stashdb/query"
	"stashdb/value"
)

// Engine is the storage core: the authoritative store, the secondary
// indexes, the transaction manager, and the persistence layer, guarded as
// one unit by a single exclusive lock. Every public operation holds the
// lock for its full duration, including the synchronous snapshot write, so
// no caller can ever observe store and indexes out of step.
type Engine struct {
	mu      sync.Mutex
	store   *store
	indexes *indexManager
	persist *persister
	txn     *transaction
}

// Open loads the backing file at path (an absent file starts empty) and
// rebuilds all indexes from the loaded key-space. A present but unreadable
// file is fatal: the error is a StorageCorruptionError and no engine is
// returned.
func Open(path string, fsync bool) (*Engine, error) {
	p := newPersister(path, fsync)
	entries, err := p.load()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:   newStore(entries),
		indexes: newIndexManager(),
		persist: p,
	}
	e.indexes.rebuild(e.store)
	metrics.Keys.Set(float64(e.store.len()))

	log.Printf("loaded %d keys from %s", e.store.len(), path)
	return e, nil
}

// -------------------------------------------------------------------------
// CRUD
// -------------------------------------------------------------------------

// Create inserts a new key. Inside an open transaction the mutation is
// staged; otherwise it is applied, indexed, and flushed before returning.
func (e *Engine) Create(key, raw string) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := parseEntry(key, raw)
	if err != nil {
		return value.Value{}, err
	}

	if e.txn != nil {
		if err := e.txn.stageCreate(e.store, key, v); err != nil {
			return value.Value{}, err
		}
		return v, nil
	}

	if e.store.has(key) {
		return value.Value{}, &DuplicateKeyError{Key: key}
	}
	e.store.put(key, v)
	e.indexes.insert(key, v)
	if err := e.flush(); err != nil {
		e.indexes.remove(key, v)
		e.store.remove(key)
		return value.Value{}, err
	}
	metrics.Operations.WithLabelValues("create").Inc()
	metrics.Keys.Set(float64(e.store.len()))
	return v, nil
}

// Read returns the current value for key. While a transaction is open the
// staged overlay is consulted first so the transaction sees its own writes.
func (e *Engine) Read(key string) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.lookupLocked(key)
	if !ok {
		return value.Value{}, &KeyNotFoundError{Key: key}
	}
	metrics.Operations.WithLabelValues("read").Inc()
	return v, nil
}

// Update replaces the value of an existing key. Index maintenance is
// delete-then-insert against the old value; there is no partial fast path.
func (e *Engine) Update(key, raw string) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := parseEntry(key, raw)
	if err != nil {
		return value.Value{}, err
	}

	if e.txn != nil {
		if err := e.txn.stageUpdate(e.store, key, v); err != nil {
			return value.Value{}, err
		}
		return v, nil
	}

	old, ok := e.store.get(key)
	if !ok {
		return value.Value{}, &KeyNotFoundError{Key: key}
	}
	e.indexes.remove(key, old)
	e.store.put(key, v)
	e.indexes.insert(key, v)
	if err := e.flush(); err != nil {
		e.indexes.remove(key, v)
		e.store.put(key, old)
		e.indexes.insert(key, old)
		return value.Value{}, err
	}
	metrics.Operations.WithLabelValues("update").Inc()
	return v, nil
}

// Delete removes a key. It is a privileged operation: ctx must carry the
// admin capability.
func (e *Engine) Delete(ctx auth.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := auth.Check(ctx, "delete"); err != nil {
		return err
	}

	if e.txn != nil {
		return e.txn.stageDelete(e.store, key)
	}

	old, ok := e.store.get(key)
	if !ok {
		return &KeyNotFoundError{Key: key}
	}
	e.indexes.remove(key, old)
	e.store.remove(key)
	if err := e.flush(); err != nil {
		e.store.put(key, old)
		e.indexes.insert(key, old)
		return err
	}
	metrics.Operations.WithLabelValues("delete").Inc()
	metrics.Keys.Set(float64(e.store.len()))
	return nil
}

// -------------------------------------------------------------------------
// Transactions
// -------------------------------------------------------------------------

// Begin opens the process-wide transaction and returns its ID. A second
// Begin while one is open fails immediately rather than queuing.
func (e *Engine) Begin() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txn != nil {
		return "", &TransactionError{Reason: fmt.Sprintf("transaction %s already in progress", e.txn.id)}
	}
	e.txn = newTransaction()
	return e.txn.id, nil
}

// Commit applies the staged log to the live store and indexes in log order
// and flushes once for the whole batch. If any staged operation no longer
// succeeds against live state the whole commit aborts with live state
// untouched; the transaction stays open so the caller can roll it back.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txn == nil {
		return &TransactionError{Reason: "no transaction in progress"}
	}
	if err := e.txn.validate(e.store); err != nil {
		metrics.Transactions.WithLabelValues("conflict").Inc()
		return err
	}

	backup := e.store.snapshot()
	for _, op := range e.txn.log {
		switch op.kind {
		case opCreate:
			e.store.put(op.key, op.val)
			e.indexes.insert(op.key, op.val)
		case opUpdate:
			old, _ := e.store.get(op.key)
			e.indexes.remove(op.key, old)
			e.store.put(op.key, op.val)
			e.indexes.insert(op.key, op.val)
		case opDelete:
			old, _ := e.store.get(op.key)
			e.indexes.remove(op.key, old)
			e.store.remove(op.key)
		}
	}
	if err := e.flush(); err != nil {
		e.store = newStore(backup)
		e.indexes.rebuild(e.store)
		return fmt.Errorf("commit %s: %w", e.txn.id, err)
	}

	e.txn = nil
	metrics.Transactions.WithLabelValues("commit").Inc()
	metrics.Keys.Set(float64(e.store.len()))
	return nil
}

// Rollback discards the staged overlay and log. Live state was never
// touched, so there is nothing to undo.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txn == nil {
		return &TransactionError{Reason: "no transaction in progress"}
	}
	e.txn = nil
	metrics.Transactions.WithLabelValues("rollback").Inc()
	return nil
}

// -------------------------------------------------------------------------
// Queries
// -------------------------------------------------------------------------

// Find evaluates a parsed query against live state: indexes answer
// equality, range, and full-text predicates; substring search scans the
// store. Results are sorted by the requested field (missing fields last) or
// by key when no sort is requested, then truncated to the limit.
func (e *Engine) Find(q query.Query) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var keys []string
	switch p := q.Predicate.(type) {
	case query.Equal:
		keys = e.indexes.lookupExact(p.Value.Canonical())
	case query.FieldEqual:
		keys = e.indexes.lookupField(p.Field, p.Value.Canonical())
	case query.Range:
		keys = e.indexes.rangeQuery(p.Field, p.Above, p.Bound)
	case query.FullText:
		keys = e.indexes.lookupFullText(p.Words)
	case query.Contains:
		// Match against the flattened text, not the JSON serialization,
		// so substrings holding backslashes or quotes compare literally.
		for key, v := range e.store.entries {
			if strings.Contains(v.Flatten(), p.Substr) {
				keys = append(keys, key)
			}
		}
	default:
		return nil, &query.QueryError{Reason: fmt.Sprintf("unsupported predicate %T", q.Predicate)}
	}

	e.sortKeys(keys, q.SortBy)
	if q.Limit > 0 && len(keys) > q.Limit {
		keys = keys[:q.Limit]
	}
	metrics.Operations.WithLabelValues("find").Inc()
	return keys, nil
}

// sortKeys orders candidate keys by the sort field extracted from each
// key's current value, numerically when both sides parse as numbers.
// Entries whose sort field is absent go last. Without a sort field, keys
// are ordered lexicographically for stable output.
func (e *Engine) sortKeys(keys []string, sortBy string) {
	if sortBy == "" {
		sort.Strings(keys)
		return
	}
	sort.SliceStable(keys, func(i, j int) bool {
		vi, iok := e.sortField(keys[i], sortBy)
		vj, jok := e.sortField(keys[j], sortBy)
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return value.Compare(vi, vj) < 0
	})
}

func (e *Engine) sortField(key, field string) (value.Value, bool) {
	v, ok := e.store.get(key)
	if !ok {
		return value.Value{}, false
	}
	return v.Field(field)
}

// Join reads both entries and reports whether their values (or the named
// field of both) are equal. A field absent on either side is a non-match.
func (e *Engine) Join(key1, key2, field string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v1, ok := e.lookupLocked(key1)
	if !ok {
		return false, &KeyNotFoundError{Key: key1}
	}
	v2, ok := e.lookupLocked(key2)
	if !ok {
		return false, &KeyNotFoundError{Key: key2}
	}
	metrics.Operations.WithLabelValues("join").Inc()

	if field != "" {
		f1, ok1 := v1.Field(field)
		f2, ok2 := v2.Field(field)
		if !ok1 || !ok2 {
			return false, nil
		}
		return value.Equal(f1, f2), nil
	}
	return value.Equal(v1, v2), nil
}

// -------------------------------------------------------------------------
// Aggregates
// -------------------------------------------------------------------------

func (e *Engine) Max(key string) (float64, error) { return e.aggregate(key, "max") }
func (e *Engine) Min(key string) (float64, error) { return e.aggregate(key, "min") }
func (e *Engine) Sum(key string) (float64, error) { return e.aggregate(key, "sum") }
func (e *Engine) Avg(key string) (float64, error) { return e.aggregate(key, "avg") }

// aggregate folds a single entry's numeric content: a bare number is its
// own aggregate, a list of numbers folds element-wise, anything else is a
// query error.
func (e *Engine) aggregate(key, fn string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.lookupLocked(key)
	if !ok {
		return 0, &KeyNotFoundError{Key: key}
	}

	var nums []float64
	if n, ok := v.Number(); ok {
		nums = []float64{n}
	} else if v.Kind() == value.KindList {
		for _, item := range v.Items() {
			n, ok := item.Number()
			if !ok {
				return 0, &query.QueryError{Reason: fmt.Sprintf("%s requires a number or a list of numbers", fn)}
			}
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return 0, &query.QueryError{Reason: fmt.Sprintf("%s requires a number or a list of numbers", fn)}
	}

	acc := nums[0]
	for _, n := range nums[1:] {
		switch fn {
		case "max":
			if n > acc {
				acc = n
			}
		case "min":
			if n < acc {
				acc = n
			}
		case "sum", "avg":
			acc += n
		}
	}
	if fn == "avg" {
		acc /= float64(len(nums))
	}
	metrics.Operations.WithLabelValues(fn).Inc()
	return acc, nil
}

// -------------------------------------------------------------------------
// Introspection
// -------------------------------------------------------------------------

// Entries returns every live entry sorted by key.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Entry, 0, e.store.len())
	for _, key := range e.store.keys() {
		v, _ := e.store.get(key)
		out = append(out, Entry{Key: key, Value: v})
	}
	return out
}

// InspectFullText returns full-text buckets for debugging: the keys filed
// under word, or every bucket when word is empty. Key lists are sorted.
func (e *Engine) InspectFullText(word string) map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]string)
	if word != "" {
		if keys := setKeys(e.indexes.fulltext[strings.ToLower(word)]); keys != nil {
			sort.Strings(keys)
			out[strings.ToLower(word)] = keys
		}
		return out
	}
	for tok, set := range e.indexes.fulltext {
		keys := setKeys(set)
		sort.Strings(keys)
		out[tok] = keys
	}
	return out
}

// Stats is a point-in-time summary of engine state.
type Stats struct {
	Keys          int
	ExactTerms    int
	FieldIndexes  int
	FullTextTerms int
	RangeTrees    int
	RangeEntries  int
	MaxTreeHeight int
	TxnOpen       bool
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		Keys:          e.store.len(),
		ExactTerms:    len(e.indexes.exact),
		FieldIndexes:  len(e.indexes.fields),
		FullTextTerms: len(e.indexes.fulltext),
		RangeTrees:    len(e.indexes.ranges),
		TxnOpen:       e.txn != nil,
	}
	for _, tree := range e.indexes.ranges {
		st.RangeEntries += tree.Len()
		if h := tree.Height(); h > st.MaxTreeHeight {
			st.MaxTreeHeight = h
		}
	}
	return st
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// lookupLocked resolves a key through the open transaction's overlay if
// there is one, else against the live store. Callers hold e.mu.
func (e *Engine) lookupLocked(key string) (value.Value, bool) {
	if e.txn != nil {
		return e.txn.lookup(e.store, key)
	}
	return e.store.get(key)
}

// flush writes the whole key-space through the persistence layer. Runs
// inside the critical section so readers never race the snapshot.
func (e *Engine) flush() error {
	if err := e.persist.save(e.store.entries); err != nil {
		return err
	}
	metrics.Saves.Inc()
	return nil
}

func parseEntry(key, raw string) (value.Value, error) {
	if key == "" {
		return value.Value{}, &ValidationError{Reason: "key must not be empty"}
	}
	v, err := value.Parse(raw)
	if err != nil {
		return value.Value{}, &ValidationError{Err: err}
	}
	return v, nil
}

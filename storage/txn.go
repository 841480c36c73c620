package storage

import (
	"fmt"

	"github.com/google/uuid"

	"stashdb/value"
)

type opKind uint8

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// stagedOp is one logged operation of an open transaction: the key, the new
// value (creates and updates), and the pre-operation image needed to reason
// about it at commit time.
type stagedOp struct {
	kind        opKind
	key         string
	val         value.Value // new value for create/update
	prev        value.Value // pre-operation value, when prevPresent
	prevPresent bool
}

// overlayEntry is the copy-on-write view of one key inside an open
// transaction. deleted marks a staged tombstone.
type overlayEntry struct {
	val     value.Value
	deleted bool
}

// transaction stages mutations without touching live structures. Readers
// outside the transaction keep observing pre-transaction state because only
// commit applies the log.
type transaction struct {
	id      string
	log     []stagedOp
	overlay map[string]overlayEntry
}

func newTransaction() *transaction {
	return &transaction{
		id:      uuid.NewString(),
		overlay: make(map[string]overlayEntry),
	}
}

// lookup resolves key against the transaction's view: the overlay first,
// then the live store.
func (tx *transaction) lookup(s *store, key string) (value.Value, bool) {
	if oe, ok := tx.overlay[key]; ok {
		if oe.deleted {
			return value.Value{}, false
		}
		return oe.val, true
	}
	return s.get(key)
}

func (tx *transaction) stageCreate(s *store, key string, v value.Value) error {
	if _, exists := tx.lookup(s, key); exists {
		return &DuplicateKeyError{Key: key}
	}
	tx.log = append(tx.log, stagedOp{kind: opCreate, key: key, val: v})
	tx.overlay[key] = overlayEntry{val: v}
	return nil
}

func (tx *transaction) stageUpdate(s *store, key string, v value.Value) error {
	prev, exists := tx.lookup(s, key)
	if !exists {
		return &KeyNotFoundError{Key: key}
	}
	tx.log = append(tx.log, stagedOp{kind: opUpdate, key: key, val: v, prev: prev, prevPresent: true})
	tx.overlay[key] = overlayEntry{val: v}
	return nil
}

func (tx *transaction) stageDelete(s *store, key string) error {
	prev, exists := tx.lookup(s, key)
	if !exists {
		return &KeyNotFoundError{Key: key}
	}
	tx.log = append(tx.log, stagedOp{kind: opDelete, key: key, prev: prev, prevPresent: true})
	tx.overlay[key] = overlayEntry{deleted: true}
	return nil
}

// validate replays the log against live state, simulating key presence, and
// returns a TransactionError for the first operation that would no longer
// succeed. Called under the engine lock immediately before applying.
func (tx *transaction) validate(s *store) error {
	present := make(map[string]bool, len(tx.log))
	exists := func(key string) bool {
		if p, ok := present[key]; ok {
			return p
		}
		return s.has(key)
	}

	for i, op := range tx.log {
		switch op.kind {
		case opCreate:
			if exists(op.key) {
				return &TransactionError{Reason: fmt.Sprintf(
					"commit %s aborted: operation %d (create %q) conflicts with live state", tx.id, i+1, op.key)}
			}
			present[op.key] = true
		case opUpdate:
			if !exists(op.key) {
				return &TransactionError{Reason: fmt.Sprintf(
					"commit %s aborted: operation %d (update %q) conflicts with live state", tx.id, i+1, op.key)}
			}
		case opDelete:
			if !exists(op.key) {
				return &TransactionError{Reason: fmt.Sprintf(
					"commit %s aborted: operation %d (delete %q) conflicts with live state", tx.id, i+1, op.key)}
			}
			present[op.key] = false
		}
	}
	return nil
}

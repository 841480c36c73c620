package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stashdb/value"
)

// persister owns the backing file: a single JSON object mapping every key to
// its value, loaded wholesale at startup and rewritten wholesale on every
// committed mutation.
type persister struct {
	path  string
	fsync bool
}

func newPersister(path string, fsync bool) *persister {
	return &persister{path: path, fsync: fsync}
}

// load reads the backing file. A missing file yields an empty key-space; a
// file that exists but does not parse yields a StorageCorruptionError.
func (p *persister) load() (map[string]value.Value, error) {
	f, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]value.Value), nil
		}
		return nil, fmt.Errorf("open backing file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, &StorageCorruptionError{Path: p.path, Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &StorageCorruptionError{Path: p.path, Err: fmt.Errorf("top level is not an object")}
	}

	entries := make(map[string]value.Value)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &StorageCorruptionError{Path: p.path, Err: err}
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, &StorageCorruptionError{Path: p.path, Err: fmt.Errorf("non-string key")}
		}
		v, err := value.Decode(dec)
		if err != nil {
			return nil, &StorageCorruptionError{Path: p.path, Err: err}
		}
		entries[key] = v
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, &StorageCorruptionError{Path: p.path, Err: err}
	}
	return entries, nil
}

// save serializes the whole key-space to a temporary file in the backing
// file's directory and atomically renames it into place. A crash before the
// rename leaves the previous file untouched; a crash after leaves the new
// file fully intact. No reader can ever observe a partial write.
func (p *persister) save(entries map[string]value.Value) error {
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".stashdb-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeSnapshot(tmp, entries); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if p.fsync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("sync snapshot: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace backing file: %w", err)
	}
	return nil
}

// writeSnapshot emits the key-space as a JSON object with sorted keys, one
// entry per line so the file diffs cleanly.
func writeSnapshot(f *os.File, entries map[string]value.Value) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("\n  ")
		quoted, _ := json.Marshal(k)
		b.Write(quoted)
		b.WriteString(": ")
		b.WriteString(entries[k].String())
	}
	if len(keys) > 0 {
		b.WriteByte('\n')
	}
	b.WriteString("}\n")

	_, err := f.WriteString(b.String())
	return err
}

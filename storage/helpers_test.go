package storage

import (
	"path/filepath"
	"testing"

	"stashdb/auth"
	"stashdb/value"
)

var (
	adminCtx = auth.Context{User: "admin", Role: auth.RoleAdmin}
	userCtx  = auth.Context{User: "user", Role: auth.RoleUser}
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return eng
}

func mustCreate(t *testing.T, e *Engine, key, raw string) value.Value {
	t.Helper()
	v, err := e.Create(key, raw)
	if err != nil {
		t.Fatalf("Create(%q, %q): %v", key, raw, err)
	}
	return v
}

func mustParseValue(t *testing.T, raw string) value.Value {
	t.Helper()
	v, err := value.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return v
}

func keysEqual(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got keys %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got keys %v, want %v", got, want)
		}
	}
}

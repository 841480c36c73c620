package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stashdb/auth"
	"stashdb/query"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportCSV(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "key,value\n"+
		"s1,\"{\"\"Name\"\":\"\"Alice\"\",\"\"Age\"\":15}\"\n"+
		"s2,plain text\n"+
		"s3,42\n")

	report, err := e.ImportCSV(adminCtx, path)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if report.Imported != 3 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want 3 imported", report)
	}

	v, err := e.Read("s1")
	if err != nil {
		t.Fatalf("Read s1: %v", err)
	}
	if got := v.String(); got != `{"Name":"Alice","Age":15}` {
		t.Errorf("s1 = %s", got)
	}

	// Imported rows are indexed like any other create.
	keys, err := e.Find(query.Query{Predicate: query.Range{Field: "Age", Above: true, Bound: 10}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	keysEqual(t, keys, []string{"s1"})
}

func TestImportCSV_RequiresAdmin(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "key,value\nk1,v1\n")

	_, err := e.ImportCSV(userCtx, path)
	var perm *auth.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if _, err := e.Read("k1"); err == nil {
		t.Error("denied import must not touch the store")
	}
}

func TestImportCSV_FailsRowNotBatch(t *testing.T) {
	e := newTestEngine(t)
	mustCreate(t, e, "dup", "already here")

	path := writeCSV(t, "key,value\n"+
		"a,1\n"+
		"dup,collides\n"+
		",empty key\n"+
		"b,2\n")

	report, err := e.ImportCSV(adminCtx, path)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if report.Imported != 2 {
		t.Errorf("Imported = %d, want 2", report.Imported)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("Failed = %+v, want 2 rows", report.Failed)
	}

	var dup *DuplicateKeyError
	if !errors.As(report.Failed[0].Err, &dup) {
		t.Errorf("row error = %v, want DuplicateKeyError", report.Failed[0].Err)
	}
	if report.Failed[0].Line != 3 {
		t.Errorf("failed line = %d, want 3", report.Failed[0].Line)
	}
	var verr *ValidationError
	if !errors.As(report.Failed[1].Err, &verr) {
		t.Errorf("row error = %v, want ValidationError", report.Failed[1].Err)
	}

	// The duplicate keeps its original value.
	v, _ := e.Read("dup")
	if v.String() != `"already here"` {
		t.Errorf("dup = %s, want original", v)
	}
	if _, err := e.Read("b"); err != nil {
		t.Errorf("row after failures should still import: %v", err)
	}
}

func TestImportCSV_MissingColumns(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "id,data\n1,x\n")

	_, err := e.ImportCSV(adminCtx, path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestImportCSV_StagedInTransaction(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "key,value\nk1,v1\nk2,v2\n")

	if _, err := e.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	report, err := e.ImportCSV(adminCtx, path)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if report.Imported != 2 {
		t.Fatalf("Imported = %d, want 2", report.Imported)
	}
	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, err := e.Read("k1"); err == nil {
		t.Error("rolled-back import must not persist")
	}
}

func TestExportCSV_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	mustCreate(t, e, "s1", `{"Name":"Alice, PhD","Age":15}`)
	mustCreate(t, e, "s2", `with "quotes" inside`)
	mustCreate(t, e, "n", "42")

	out := filepath.Join(t.TempDir(), "out.csv")
	n, err := e.ExportCSV(adminCtx, out)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if n != 3 {
		t.Errorf("exported %d rows, want 3", n)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "key,value\n") {
		t.Errorf("missing header:\n%s", data)
	}

	// The export must import cleanly into a fresh engine.
	e2 := newTestEngine(t)
	report, err := e2.ImportCSV(adminCtx, out)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if report.Imported != 3 || len(report.Failed) != 0 {
		t.Fatalf("re-import report = %+v", report)
	}
	v, err := e2.Read("s1")
	if err != nil {
		t.Fatalf("Read after re-import: %v", err)
	}
	if got := v.String(); got != `{"Name":"Alice, PhD","Age":15}` {
		t.Errorf("s1 after re-import = %s", got)
	}
}

func TestExportCSV_RequiresAdmin(t *testing.T) {
	e := newTestEngine(t)
	mustCreate(t, e, "k1", "v1")

	_, err := e.ExportCSV(userCtx, filepath.Join(t.TempDir(), "out.csv"))
	var perm *auth.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
}

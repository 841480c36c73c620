package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := "data_file: /var/lib/stash.db\nfsync: false\nlog_level: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if fc.DataFile == nil || *fc.DataFile != "/var/lib/stash.db" {
		t.Errorf("DataFile = %v", fc.DataFile)
	}
	if fc.Fsync == nil || *fc.Fsync != false {
		t.Errorf("Fsync = %v", fc.Fsync)
	}
	if fc.LogLevel == nil || *fc.LogLevel != 1 {
		t.Errorf("LogLevel = %v", fc.LogLevel)
	}
	if fc.MetricsAddr != nil {
		t.Errorf("MetricsAddr should be absent, got %v", *fc.MetricsAddr)
	}
}

func TestLoadFile_AbsentKeysStayNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("log_level: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if fc.DataFile != nil || fc.Fsync != nil || fc.MetricsAddr != nil {
		t.Error("keys absent from the file must stay nil")
	}
	if fc.LogLevel == nil || *fc.LogLevel != 2 {
		t.Errorf("LogLevel = %v", fc.LogLevel)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := loadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("data_file: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadFile(path); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("STASHDB_TEST_STR", "set")
	if got := envStr("STASHDB_TEST_STR", "fallback"); got != "set" {
		t.Errorf("envStr = %q", got)
	}
	if got := envStr("STASHDB_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envStr fallback = %q", got)
	}

	t.Setenv("STASHDB_TEST_BOOL", "false")
	if envBool("STASHDB_TEST_BOOL", true) {
		t.Error("envBool should honor the variable")
	}
	t.Setenv("STASHDB_TEST_BOOL", "not-a-bool")
	if !envBool("STASHDB_TEST_BOOL", true) {
		t.Error("envBool should fall back on junk")
	}

	t.Setenv("STASHDB_TEST_INT", "7")
	if got := envInt("STASHDB_TEST_INT", 1); got != 7 {
		t.Errorf("envInt = %d", got)
	}
	t.Setenv("STASHDB_TEST_INT", "seven")
	if got := envInt("STASHDB_TEST_INT", 1); got != 1 {
		t.Errorf("envInt fallback = %d", got)
	}
}

package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataFile    string
	Fsync       bool
	LogLevel    int
	MetricsAddr string
}

// Parse resolves configuration with the usual precedence: defaults, then
// an optional YAML file named by -config or STASHDB_CONFIG, then
// environment variables, then command line flags.
func Parse() (*Config, error) {
	cfg := &Config{
		DataFile: "./stash.db",
		Fsync:    true,
	}

	var path string
	flag.StringVar(&path, "config", envStr("STASHDB_CONFIG", ""), "path to YAML config file")
	flag.StringVar(&cfg.DataFile, "datafile", envStr("STASHDB_DATAFILE", cfg.DataFile), "database file")
	flag.BoolVar(&cfg.Fsync, "fsync", envBool("STASHDB_FSYNC", cfg.Fsync), "fsync snapshots before rename (disable for speed at risk of data loss on crash)")
	flag.IntVar(&cfg.LogLevel, "log-level", envInt("STASHDB_LOG_LEVEL", 0), "log verbosity (0=off, 1=commands)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", envStr("STASHDB_METRICS_ADDR", ""), "address for /metrics (empty disables)")
	flag.Parse()

	if path == "" {
		return cfg, nil
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if !set["datafile"] && os.Getenv("STASHDB_DATAFILE") == "" && fileCfg.DataFile != nil {
		cfg.DataFile = *fileCfg.DataFile
	}
	if !set["fsync"] && os.Getenv("STASHDB_FSYNC") == "" && fileCfg.Fsync != nil {
		cfg.Fsync = *fileCfg.Fsync
	}
	if !set["log-level"] && os.Getenv("STASHDB_LOG_LEVEL") == "" && fileCfg.LogLevel != nil {
		cfg.LogLevel = *fileCfg.LogLevel
	}
	if !set["metrics-addr"] && os.Getenv("STASHDB_METRICS_ADDR") == "" && fileCfg.MetricsAddr != nil {
		cfg.MetricsAddr = *fileCfg.MetricsAddr
	}
	return cfg, nil
}

// fileConfig uses pointers so a key absent from the YAML file is
// distinguishable from a key set to its zero value.
type fileConfig struct {
	DataFile    *string `yaml:"data_file"`
	Fsync       *bool   `yaml:"fsync"`
	LogLevel    *int    `yaml:"log_level"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

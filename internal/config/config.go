// Package config loads ServeConfig from an optional YAML file layered
// under environment variable overrides, grounded on
// fyrsmithlabs-contextd's internal/config/loader.go (koanf.New("."),
// env provider with a case-folding transformer, YAML provider loaded
// first so the environment always wins).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ServeConfig holds everything the serve subcommand needs: the HTTP
// bind address, the isolate pool's concurrency cap, and the object
// store's prune interval.
type ServeConfig struct {
	HTTPAddr      string        `koanf:"http_addr"`
	PoolCap       int           `koanf:"pool_cap"`
	PruneInterval time.Duration `koanf:"prune_interval"`
	DataDir       string        `koanf:"data_dir"`
}

// Defaults mirror spec.md §6 (bind address) and the isolate-pool /
// object-store defaults named in §4.1/§4.3.
func Defaults() ServeConfig {
	return ServeConfig{
		HTTPAddr:      "[::]:8080",
		PoolCap:       0, // 0 -> runtime.NumCPU() in isolate.NewPool
		PruneInterval: 10 * time.Second,
		DataDir:       "./data",
	}
}

// Load builds a ServeConfig from defaults, an optional YAML file at
// path (skipped if empty or absent), and environment variables
// prefixed VM_ (VM_HTTP_ADDR, VM_POOL_CAP, VM_PRUNE_INTERVAL,
// VM_DATA_DIR), in that precedence order (env wins).
func Load(path string) (ServeConfig, error) {
	k := koanf.New(".")

	cfg := Defaults()
	defaults := map[string]interface{}{
		"http_addr":      cfg.HTTPAddr,
		"pool_cap":       cfg.PoolCap,
		"prune_interval": cfg.PruneInterval,
		"data_dir":       cfg.DataDir,
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return ServeConfig{}, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return ServeConfig{}, err
			}
		}
	}

	if err := k.Load(env.Provider("VM_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "VM_")
		return strings.ToLower(s)
	}), nil); err != nil {
		return ServeConfig{}, err
	}

	var out ServeConfig
	if err := k.Unmarshal("", &out); err != nil {
		return ServeConfig{}, err
	}
	if out.HTTPAddr == "" {
		out.HTTPAddr = cfg.HTTPAddr
	}
	if out.PruneInterval == 0 {
		out.PruneInterval = cfg.PruneInterval
	}
	if out.DataDir == "" {
		out.DataDir = cfg.DataDir
	}
	return out, nil
}

// Package config loads and saves an anthocnet.Config from YAML, the way
// shurli's internal/config package loads its HomeNodeConfig: a plain
// struct-tagged type, a Load that reads a file into it, and a Save that
// writes it back out atomically.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kprusa/anthocnet"
)

// Load reads and parses a YAML config file at path. Any field absent
// from the file keeps its DefaultConfig value, since Load starts from
// the defaults and decodes onto them rather than a zero struct.
func Load(path string) (*anthocnet.Config, error) {
	cfg := anthocnet.DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save marshals cfg as YAML to path, replacing any existing file via a
// temp-file-then-rename so a crash mid-write never leaves a truncated
// config behind, the same pattern shurli's peer history store uses for
// its JSON snapshots.
func Save(path string, cfg *anthocnet.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

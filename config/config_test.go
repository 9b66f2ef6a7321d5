package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kprusa/anthocnet"
)

func Test_SaveLoad_roundTrip(t *testing.T) {
	cfg := anthocnet.DefaultConfig()
	cfg.AntPort = 6000
	cfg.ConsBeta = 12.5
	cfg.BlackholeMode = true

	path := filepath.Join(t.TempDir(), "anthocnet.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AntPort != 6000 {
		t.Errorf("AntPort = %d, want 6000", got.AntPort)
	}
	if got.ConsBeta != 12.5 {
		t.Errorf("ConsBeta = %v, want 12.5", got.ConsBeta)
	}
	if !got.BlackholeMode {
		t.Errorf("BlackholeMode = false, want true")
	}
	if got.NbExpire != 2500*time.Millisecond {
		t.Errorf("NbExpire = %v, want 2.5s (unset fields keep defaults)", got.NbExpire)
	}
}

func Test_Load_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

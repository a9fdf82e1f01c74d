package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/malaria-world/internal/config"
)

func TestResolveSeed(t *testing.T) {
	tests := []struct {
		name       string
		configSeed int64
		flagSeed   int64
		want       int64 // 0 means any fresh positive seed
	}{
		{"config seed used", 42, 0, 42},
		{"flag overrides config", 42, 7, 7},
		{"flag alone", 0, 9, 9},
		{"neither draws one", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Seed = tt.configSeed

			got := resolveSeed(&cfg, tt.flagSeed, nil)
			if tt.want != 0 && got != tt.want {
				t.Errorf("seed = %d, want %d", got, tt.want)
			}
			if got <= 0 && tt.want == 0 {
				t.Errorf("drawn seed %d is not positive", got)
			}
			if cfg.Seed != got {
				t.Errorf("cfg.Seed = %d, want the effective seed %d", cfg.Seed, got)
			}
		})
	}
}

func TestResolveSeedFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("seed: 42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := resolveSeed(&cfg, 0, nil); got != 42 {
		t.Fatalf("seed = %d, want 42 from the config file", got)
	}

	// The stored form of cfg replays the same seed.
	raw, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back := config.Default()
	if err := config.Decode(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Seed != 42 {
		t.Errorf("stored config seed = %d, want 42", back.Seed)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	issues := Default().Validate()
	for _, is := range issues {
		if is.Severity == SeverityError {
			t.Fatalf("default config has error at %s: %s", is.Path, is.Message)
		}
	}
}

func TestDefaultSources(t *testing.T) {
	t.Parallel()
	cfg := Default()
	for _, name := range []string{"customers", "transactions", "sentiment"} {
		if _, ok := cfg.Source(name); !ok {
			t.Fatalf("missing default source %q", name)
		}
	}
	txn, _ := cfg.Source("transactions")
	if txn.ForeignKey != "customer_id" || txn.References != "customers" {
		t.Fatalf("transactions FK declaration wrong: %+v", txn)
	}
	cust, _ := cfg.Source("customers")
	if !cust.NearDuplicates {
		t.Fatal("customers should have near-duplicate detection enabled")
	}
}

func TestValidateCatchesProblems(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{
			name:   "unknown format",
			mutate: func(c *Config) { c.Sources[0].Format = "xml" },
			path:   "sources[0].format",
		},
		{
			name:   "natural key not declared",
			mutate: func(c *Config) { c.Sources[0].NaturalKey = "nope" },
			path:   "sources[0].natural_key",
		},
		{
			name:   "dangling reference",
			mutate: func(c *Config) { c.Sources[1].References = "ghost" },
			path:   "sources[1].references",
		},
		{
			name:   "inverted field range",
			mutate: func(c *Config) { c.Sources[1].Fields[3].Min = ptr(99999) },
			path:   "sources[1].fields[3]",
		},
		{
			name:   "unknown field type",
			mutate: func(c *Config) { c.Sources[0].Fields[0].Type = "blob" },
			path:   "sources[0].fields[0].type",
		},
		{
			name:   "bad date bound",
			mutate: func(c *Config) { c.Thresholds.DateMax = "soon" },
			path:   "thresholds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			found := false
			for _, is := range cfg.Validate() {
				if is.Severity == SeverityError && is.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error at %s, got %+v", tt.path, cfg.Validate())
			}
		})
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	yaml := []byte("out_dir: custom_out\nstorage:\n  kind: postgres\n  dsn: postgres://local/app\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv("PIPELINE_STORAGE_DSN", "postgres://env/wins")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom_out", cfg.OutDir)
	require.Equal(t, "postgres", cfg.Storage.Kind)
	require.Equal(t, "postgres://env/wins", cfg.Storage.DSN, "env must override file")
	// Untouched keys keep defaults.
	require.Len(t, cfg.Sources, 3)
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()
	_, err := Load("does/not/exist.yaml")
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"PIPELINE_OUT_DIR", "out_dir"},
		{"PIPELINE_STORAGE_KIND", "storage.kind"},
		{"PIPELINE_THRESHOLDS_NULL_RATE_WARNING", "thresholds.null_rate_warning"},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

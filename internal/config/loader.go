package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes environment overrides, e.g. PIPELINE_STORAGE_DSN.
const envPrefix = "PIPELINE_"

// Load resolves the configuration: defaults, then the YAML file at path
// (optional, pass "" to skip), then PIPELINE_ environment variables.
// Environment keys map underscores to nesting only for known top-level
// sections, so PIPELINE_STORAGE_KIND becomes storage.kind.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey translates PIPELINE_STORAGE_KIND into storage.kind. Only the
// first underscore after a known section name becomes a dot; the rest of
// the key keeps its underscores (thresholds.null_rate_warning).
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range []string{"storage", "thresholds"} {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return s
}

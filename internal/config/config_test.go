package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.ServiceURL)
	assert.InDelta(t, 0.4, cfg.SampleFraction, 1e-9)
	assert.Equal(t, time.Second, cfg.Debounce())
	assert.Equal(t, []string{"Han"}, cfg.TargetScripts)
	assert.Equal(t, 2, cfg.MinTextLength)
	assert.Contains(t, cfg.SkipElements, "script")
}

func TestLoadConfigProviders(t *testing.T) {
	t.Setenv("TRANSLENS_TEST_KEY", "sk-test")
	content := `
sample_fraction: 0.5
server:
  provider: qwen2.5
  providers:
    qwen2.5:
      api_url: https://example.invalid/v1
      model: qwen2.5-7b
      api_key: ${TRANSLENS_TEST_KEY}
      use_system_role: false
      rate_limit_count: 10
      headers:
        X-Title: translens
`
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	name, pc, err := cfg.ActiveProvider()
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", name)
	assert.Equal(t, "sk-test", pc.APIKey)
	assert.False(t, pc.UseSystemRole)
	assert.Equal(t, 10, pc.RateLimitCount)
	assert.Equal(t, 60, pc.RateLimitPeriodSeconds)
	assert.Equal(t, 30, pc.MaxTranslationLength)
	assert.Equal(t, DefaultSystemPrompt, pc.SystemPrompt)
	assert.Equal(t, "translens", pc.Headers["x-title"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero fraction", func(c *Config) { c.SampleFraction = 0 }, false},
		{"fraction above one", func(c *Config) { c.SampleFraction = 1.5 }, false},
		{"negative debounce", func(c *Config) { c.DebounceMs = -1 }, false},
		{"no scripts", func(c *Config) { c.TargetScripts = nil }, false},
		{"zero min length", func(c *Config) { c.MinTextLength = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestActiveProviderMissing(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Provider = "nope"
	_, _, err := cfg.ActiveProvider()
	assert.Error(t, err)
}

func TestLoadGlossary(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "glossary.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[translations]
"机器学习" = " machine learning "
"天气" = "weather"
`), 0o644))

		g, err := LoadGlossary(path)
		require.NoError(t, err)
		assert.Equal(t, 2, g.Len())

		tr, ok := g.Lookup("机器学习")
		assert.True(t, ok)
		assert.Equal(t, "machine learning", tr)

		_, ok = g.Lookup("公园")
		assert.False(t, ok)
	})

	t.Run("empty translation", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[translations]\n\"天气\" = \"  \"\n"), 0o644))
		_, err := LoadGlossary(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadGlossary(filepath.Join(dir, "missing.toml"))
		assert.Error(t, err)
	})

	t.Run("nil glossary", func(t *testing.T) {
		var g *Glossary
		_, ok := g.Lookup("天气")
		assert.False(t, ok)
		assert.Zero(t, g.Len())
	})
}

func TestLoadConfigRejectsMalformedProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  provider: broken
  providers:
    broken:
      api_url: http://127.0.0.1:8080/v1
      rate_limit_count: many
`), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

package embedcodec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxtv/embedcodec/oracle"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
provider: flyx
oracle:
  encode_url: https://example.com/encode
  method: GET
  param_name: text
  timeout_sec: 10
recovery:
  alphabet: abcd
  max_position: 24
  concurrency: 3
  probe_delay_ms: 50
output: artifacts/flyx.json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "flyx", cfg.Provider)
	assert.Equal(t, "https://example.com/encode", cfg.Oracle.EncodeURL)
	assert.Equal(t, 24, cfg.Recovery.MaxPosition)
	assert.Equal(t, "artifacts/flyx.json", cfg.Output)

	r, err := cfg.NewRecoverer()
	require.NoError(t, err)
	assert.Equal(t, "abcd", r.options.Alphabet)
	assert.Equal(t, 24, r.options.MaxPosition)
	assert.Equal(t, 3, r.options.Concurrency)
}

func TestLoadConfigRejectsIncomplete(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no provider", "oracle:\n  encode_url: https://x\n"},
		{"no oracle", "provider: flyx\n"},
		{"bad engine", "provider: flyx\noracle:\n  script: dec.js\n  engine: v8\n"},
		{"bad yaml", "provider: [unclosed\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestConfigScriptedOracle(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "decoder.js")
	require.NoError(t, os.WriteFile(script, []byte(`function encode(t){return t;}function decode(t){return t;}`), 0o644))

	cfg := &Config{Provider: "flyx"}
	cfg.Oracle.Script = script
	cfg.Oracle.Engine = "goja"
	require.NoError(t, cfg.Validate())

	orc, err := cfg.NewOracle()
	require.NoError(t, err)
	_, ok := orc.(*oracle.ScriptedOracle)
	assert.True(t, ok)
	assert.Equal(t, "flyx", orc.Name())
}

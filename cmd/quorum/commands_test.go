package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
app:
  log_level: warn
engine:
  symbols: [BTCUSDT]
notify:
  telegram:
    enabled: true
    bot_token: "123:secret"
    chat_id: "42"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	out, err := execute(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "123:secret")
	assert.Contains(t, out, "***")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	engine := doc["engine"].(map[string]any)
	assert.Equal(t, "1h", engine["timeframe"])
}

func TestConfigShowJSON(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	out, err := execute(t, "config", "show", "-c", path, "-o", "json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "Engine")
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	bad := writeConfig(t, "engine:\n  timeframe: soon\n")
	_, err = execute(t, "config", "validate", "--config", bad)
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	_, err := execute(t, "config", "show", "-c", path, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "quorum dev")
}

func TestEvaluateRequiresSymbol(t *testing.T) {
	_, err := execute(t, "evaluate")
	assert.Error(t, err)
}

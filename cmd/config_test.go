package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-ticket/mdt/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	viper.SetDefault("db_path", filepath.Join(dir, "mdt.db"))
	viper.SetDefault("port", 3001)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "")

	// Initialize output
	ui = output.New()

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mdt configuration")
	assert.Contains(t, string(data), "anthropic")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	defer func() { configForce = false }()
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mdt configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	os.Setenv("MDT_TEST_KEY", "val")
	defer os.Unsetenv("MDT_TEST_KEY")
	assert.Contains(t, detectSource("test_key", "MDT_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "MDT_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "MDT_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"anthropic": map[string]any{
			"api_key": "x",
			"model":   "y",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["anthropic.api_key"])
	assert.True(t, result["anthropic.model"])
	assert.False(t, result["anthropic"])
}

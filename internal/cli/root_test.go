package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRootCmd(t *testing.T) {
	cmd := GetRootCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "kirana", cmd.Use)
	assert.Equal(t, version, cmd.Version)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, version, GetVersion())
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := GetRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["config"])
}

func TestConfigShow(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile = filepath.Join(tmpDir, "kirana.json")
	t.Cleanup(func() { cfgFile = "" })

	var out bytes.Buffer
	configShowCmd.SetOut(&out)

	require.NoError(t, configShowCmd.RunE(configShowCmd, nil))
	assert.Contains(t, out.String(), `"server"`)
}

func TestConfigInit(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile = filepath.Join(tmpDir, "kirana.json")
	t.Cleanup(func() { cfgFile = "" })

	var out bytes.Buffer
	configInitCmd.SetOut(&out)

	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))
	assert.FileExists(t, cfgFile)
}

package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "am.toml")

	require.NoError(t, WriteDefaultConfig(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(SecretFilePermissions), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "deposit all", cfg.Commands["deposit"].Command)

	err = WriteDefaultConfig(path, false)
	assert.Error(t, err, "refuses to overwrite without force")

	require.NoError(t, WriteDefaultConfig(path, true))
	_, err = os.Stat(path + ".back1")
	assert.NoError(t, err, "overwrite keeps a backup")
}

func TestCreateBackup_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")

	for i := 1; i <= 4; i++ {
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", i)), DefaultFilePermissions))
		require.NoError(t, createBackup(path))
	}

	for n, want := range map[string]int{".back1": 4, ".back2": 3, ".back3": 2} {
		data, err := os.ReadFile(path + n)
		require.NoError(t, err)
		assert.Len(t, data, want, n)
	}
	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateCommandEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[gateway]
channel_id = "42"

[commands.collect]
cooldown_minutes = 30
`), DefaultFilePermissions))

	require.NoError(t, UpdateCommandEnabled(path, "collect", true))

	var raw map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, toml.Unmarshal(data, &raw))

	collect := raw["commands"].(map[string]interface{})["collect"].(map[string]interface{})
	assert.Equal(t, true, collect["enabled"])
	assert.EqualValues(t, 30, collect["cooldown_minutes"])
	assert.Equal(t, "42", raw["gateway"].(map[string]interface{})["channel_id"])
}

func TestMarshalTOML_RedactsToken(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Gateway.Token = "very-secret-token-9876"

	data, err := MarshalTOML(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "very-secret")
	assert.Contains(t, string(data), "****9876")
	assert.Equal(t, "very-secret-token-9876", cfg.Gateway.Token, "caller's config untouched")
}

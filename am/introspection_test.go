package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at fresh temp dirs so no real
// config files leak into the test.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = filepath.Join(t.TempDir(), "bot")
	require.NoError(t, os.MkdirAll(project, DefaultDirPermissions))
	t.Setenv("HOME", home)
	t.Setenv("AUTOBOAT_DATABASE_PATH", "")
	t.Setenv("AUTOBOAT_GATEWAY_TOKEN", "")
	t.Setenv("TOKEN", "")
	chdir(t, project)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DefaultDirPermissions))
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))
}

func settingByKey(settings []SettingInfo, key string) (SettingInfo, bool) {
	for _, s := range settings {
		if s.Key == key {
			return s, true
		}
	}
	return SettingInfo{}, false
}

func TestPrecedence(t *testing.T) {
	home, project := isolate(t)
	userPath := filepath.Join(home, ".autoboat", "am.toml")
	projectPath := filepath.Join(project, "am.toml")

	writeFile(t, userPath, `
[database]
path = "user.db"

[gateway]
channel_id = "123"

[commands.work]
cooldown_minutes = 7
`)

	t.Run("user file over defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "user.db", cfg.Database.Path)
		assert.Equal(t, "123", cfg.Gateway.ChannelID)
		assert.Equal(t, float64(7), cfg.Commands["work"].CooldownMinutes)
		assert.Equal(t, "work", cfg.Commands["work"].Command, "defaults fill the rest of a partially set command")
		assert.Equal(t, userPath, ActiveConfigFile(""))
	})

	writeFile(t, projectPath, `
[database]
path = "project.db"
`)

	t.Run("project file over user file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "project.db", cfg.Database.Path)
		assert.Equal(t, "123", cfg.Gateway.ChannelID)
		assert.Equal(t, projectPath, ActiveConfigFile(""))
	})

	t.Run("environment over files", func(t *testing.T) {
		t.Setenv("AUTOBOAT_DATABASE_PATH", "env.db")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.Database.Path)
	})

	t.Run("explicit file over environment", func(t *testing.T) {
		t.Setenv("AUTOBOAT_DATABASE_PATH", "env.db")
		explicit := filepath.Join(t.TempDir(), "custom.toml")
		writeFile(t, explicit, `
[database]
path = "explicit.db"
`)
		cfg, err := Load(explicit)
		require.NoError(t, err)
		assert.Equal(t, "explicit.db", cfg.Database.Path)
		assert.Equal(t, "123", cfg.Gateway.ChannelID, "lower layers still apply")
		assert.Equal(t, explicit, ActiveConfigFile(explicit))
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestTokenFromEnvironment(t *testing.T) {
	isolate(t)

	t.Setenv("TOKEN", "legacy-token-value")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token-value", cfg.Gateway.Token)

	t.Setenv("AUTOBOAT_GATEWAY_TOKEN", "preferred-token-value")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "preferred-token-value", cfg.Gateway.Token)
}

func TestIntrospect(t *testing.T) {
	home, _ := isolate(t)
	userPath := filepath.Join(home, ".autoboat", "am.toml")
	writeFile(t, userPath, `
[gateway]
token = "super-secret-token-1234"
channel_id = "42"
`)
	t.Setenv("AUTOBOAT_TIMING_STARTUP_COUNTDOWN_SECONDS", "0")

	v, sources, err := NewViper("")
	require.NoError(t, err)
	settings := Introspect(v, sources)

	channel, ok := settingByKey(settings, "gateway.channel_id")
	require.True(t, ok)
	assert.Equal(t, SourceUser, channel.Source)
	assert.Equal(t, userPath, channel.SourcePath)

	token, ok := settingByKey(settings, "gateway.token")
	require.True(t, ok)
	assert.Equal(t, "****1234", token.Value)

	countdown, ok := settingByKey(settings, "timing.startup_countdown_seconds")
	require.True(t, ok)
	assert.Equal(t, SourceEnvironment, countdown.Source)
	assert.Equal(t, "AUTOBOAT_TIMING_STARTUP_COUNTDOWN_SECONDS", countdown.SourcePath)

	theme, ok := settingByKey(settings, "log.theme")
	require.True(t, ok)
	assert.Equal(t, SourceDefault, theme.Source)

	counts := CountBySource(settings)
	assert.Equal(t, 2, counts[SourceUser])
	assert.Equal(t, 1, counts[SourceEnvironment])
	assert.Greater(t, counts[SourceDefault], 10)

	for i := 1; i < len(settings); i++ {
		assert.Less(t, settings[i-1].Key, settings[i].Key, "sorted by key")
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", Redact(""))
	assert.Equal(t, "****", Redact("short"))
	assert.Equal(t, "****wxyz", Redact("abcdefghijklmnopqrstuvwxyz"))
}

func TestFlatten(t *testing.T) {
	flat := flatten(map[string]interface{}{
		"commands": map[string]interface{}{
			"work": map[string]interface{}{"cooldown_minutes": 5},
		},
		"log": map[string]interface{}{"json": true},
	}, "")

	assert.Equal(t, map[string]interface{}{
		"commands.work.cooldown_minutes": 5,
		"log.json":                       true,
	}, flat)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory, updates PWD, and restores both on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Open(".")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(dir) {
		dir, err = os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		err := oldwd.Chdir()
		oldwd.Close()
		if err != nil {
			panic("chdir: " + err.Error())
		}
	})
}

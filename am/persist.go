package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
)

// DefaultConfig returns the built-in defaults with no files or environment applied
func DefaultConfig() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return LoadWithViper(v)
}

// MarshalTOML renders cfg as TOML. The gateway token is redacted.
func MarshalTOML(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Gateway.Token = Redact(cfg.Gateway.Token)
	data, err := toml.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// WriteDefaultConfig writes the built-in defaults to path. An existing file
// is only replaced when force is set, and is backed up first.
func WriteDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.WithHint(
			errors.Newf("config file %s already exists", path),
			"pass --force to overwrite (the old file is kept as .back1)")
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}
	return saveConfigFile(path, data)
}

// UpdateCommandEnabled sets commands.<name>.enabled in the config file at path,
// leaving every other key as written.
func UpdateCommandEnabled(path, name string, enabled bool) error {
	raw := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	commands, _ := raw["commands"].(map[string]interface{})
	if commands == nil {
		commands = make(map[string]interface{})
	}
	section, _ := commands[name].(map[string]interface{})
	if section == nil {
		section = make(map[string]interface{})
	}
	section["enabled"] = enabled
	commands[name] = section
	raw["commands"] = commands

	data, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return saveConfigFile(path, data)
}

// saveConfigFile backs up the current file and writes data in its place
func saveConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Mark this as our own write to prevent reload loops
	if w := GetGlobalWatcher(); w != nil && w.Path() == filepath.Clean(path) {
		w.MarkOwnWrite()
	}

	// The file may carry gateway.token
	if err := os.WriteFile(path, data, SecretFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup",
			"file", back3,
			logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, SecretFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

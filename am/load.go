package am

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/autoboat/errors"
)

// SystemConfigPath is the lowest-precedence config file
const SystemConfigPath = "/etc/autoboat/config.toml"

// Load reads the merged configuration. explicitPath may be empty.
func Load(explicitPath string) (*Config, error) {
	v, _, err := NewViper(explicitPath)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.resolveTokenFile(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a single file on top of the defaults,
// ignoring other config files and the environment.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return LoadWithViper(v)
}

// NewViper builds a Viper instance with every source merged in precedence
// order, and reports which source supplied each key.
func NewViper(explicitPath string) (*viper.Viper, map[string]SourceInfo, error) {
	v := viper.New()

	v.SetEnvPrefix("AUTOBOAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	sources := make(map[string]SourceInfo)
	for _, cf := range discoverConfigFiles() {
		settings, err := readTOML(cf.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, nil, errors.Wrapf(err, "merge %s", cf.Path)
		}
		recordSources(settings, "", cf, sources)
	}

	// The explicit file lands in Viper's override layer so it beats the environment.
	if explicitPath != "" {
		settings, err := readTOML(explicitPath)
		if err != nil {
			return nil, nil, errors.WithHint(err, "check the --config path")
		}
		cf := SourceInfo{Source: SourceExplicit, Path: explicitPath}
		for key, value := range flatten(settings, "") {
			v.Set(key, value)
		}
		recordSources(settings, "", cf, sources)
		v.SetConfigFile(explicitPath)
	}

	return v, sources, nil
}

// ActiveConfigFile returns the highest-precedence config file in effect,
// or "" when only defaults and the environment apply.
func ActiveConfigFile(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	files := discoverConfigFiles()
	if len(files) == 0 {
		return ""
	}
	return files[len(files)-1].Path
}

// UserConfigPath returns ~/.autoboat/am.toml
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate home directory")
	}
	return filepath.Join(home, ".autoboat", "am.toml"), nil
}

// ConfigCandidates lists every location checked for a config file, lowest
// precedence first, whether or not it exists.
func ConfigCandidates() []SourceInfo {
	candidates := []SourceInfo{{Source: SourceSystem, Path: SystemConfigPath}}
	if user, err := UserConfigPath(); err == nil {
		candidates = append(candidates, SourceInfo{Source: SourceUser, Path: user})
	}
	if project := findProjectConfig(); project != "" {
		candidates = append(candidates, SourceInfo{Source: SourceProject, Path: project})
	}
	return candidates
}

// discoverConfigFiles lists existing config files, lowest precedence first
func discoverConfigFiles() []SourceInfo {
	candidates := ConfigCandidates()

	var found []SourceInfo
	for _, c := range candidates {
		if _, err := os.Stat(c.Path); err == nil {
			found = append(found, c)
		}
	}
	return found
}

// findProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func readTOML(path string) (map[string]interface{}, error) {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	tmp.SetConfigType("toml")
	if err := tmp.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return tmp.AllSettings(), nil
}

// flatten turns nested settings into dotted keys
func flatten(settings map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range flatten(nested, key) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func recordSources(settings map[string]interface{}, prefix string, src SourceInfo, sources map[string]SourceInfo) {
	for key := range flatten(settings, prefix) {
		sources[key] = src
	}
}

// resolveTokenFile reads gateway.token from gateway.token_file when no token is set.
// The file holds KEY=value lines; the TOKEN line is used.
func (c *Config) resolveTokenFile() error {
	if c.Gateway.Token != "" || c.Gateway.TokenFile == "" {
		return nil
	}

	f, err := os.Open(c.Gateway.TokenFile)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "open token file %s", c.Gateway.TokenFile),
			"create it with a single line: TOKEN=<your token>",
		)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "TOKEN=") {
			c.Gateway.Token = strings.TrimSpace(strings.TrimPrefix(line, "TOKEN="))
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "read token file %s", c.Gateway.TokenFile)
	}
	return errors.Newf("token file %s has no TOKEN= line", c.Gateway.TokenFile)
}

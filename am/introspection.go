package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/autoboat/config.toml
	SourceUser        ConfigSource = "user"        // ~/.autoboat/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // AUTOBOAT_* env vars
	SourceExplicit    ConfigSource = "explicit"    // --config path
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // file path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// sensitiveKeys are redacted in introspection output
var sensitiveKeys = map[string]bool{
	"gateway.token": true,
}

// Introspect lists every effective setting with the source that supplied it,
// sorted by key. Sensitive values are redacted.
func Introspect(v *viper.Viper, sources map[string]SourceInfo) []SettingInfo {
	flat := flatten(v.AllSettings(), "")

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}

		// The environment beats files, except the explicit --config path
		if info.Source != SourceExplicit {
			if envKey, ok := envOverride(key); ok {
				info = SourceInfo{Source: SourceEnvironment, Path: envKey}
			}
		}

		value := flat[key]
		if sensitiveKeys[key] {
			value = Redact(v.GetString(key))
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings
}

func envOverride(key string) (string, bool) {
	names := []string{"AUTOBOAT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
	if key == "gateway.token" {
		names = append(names, "TOKEN")
	}
	for _, name := range names {
		if os.Getenv(name) != "" {
			return name, true
		}
	}
	return "", false
}

// Redact hides all but the last four characters of a secret
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// CountBySource summarises how many settings each source supplied
func CountBySource(settings []SettingInfo) map[ConfigSource]int {
	counts := make(map[ConfigSource]int)
	for _, s := range settings {
		counts[s.Source]++
	}
	return counts
}

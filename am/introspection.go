package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/pegabatch/am.toml
	SourceUser        ConfigSource = "user"        // ~/.pegabatch/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found from the working directory up
	SourceEnvironment ConfigSource = "environment" // PEGABATCH_* env vars
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
	Secret     bool         `json:"secret,omitempty"`
}

var secretKeys = map[string]bool{
	"pegabot.api_key": true,
	"mail.password":   true,
}

// Settings lists every effective setting with its source, sorted by key.
// Secret values are masked.
func Settings() []SettingInfo {
	v := GetViper()
	loadMu.Lock()
	sources := ConfigSources
	loadMu.Unlock()

	keys := v.AllKeys()
	sort.Strings(keys)

	out := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		value := v.Get(key)
		if secretKeys[key] && v.GetString(key) != "" {
			value = "********"
		}
		out = append(out, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
			Secret:     secretKeys[key],
		})
	}
	return out
}

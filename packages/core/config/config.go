package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the statusprobe configuration file
type Config struct {
	EnvFile     string            `json:"envFile,omitempty" yaml:"envFile,omitempty"`
	Key         string            `json:"key,omitempty" yaml:"key,omitempty"`
	BaseURL     string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	APIPrefix   string            `json:"apiPrefix,omitempty" yaml:"apiPrefix,omitempty"`
	ClientName  string            `json:"clientName,omitempty" yaml:"clientName,omitempty"`
	Timeout     Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ValidateSSL *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	Proxy       string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Extra headers for every probe
	Output      string            `json:"output,omitempty" yaml:"output,omitempty"`
	OutputFile  string            `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
	Verbose     *bool             `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor     *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	ExitCode    *bool             `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	Notify      *NotifyConfig     `json:"notify,omitempty" yaml:"notify,omitempty"`
	Auth        *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig describes the OAuth2 server that issues bearer tokens for the
// probes.
type AuthConfig struct {
	// GrantType is client_credentials (the default) or password.
	GrantType    string   `json:"grantType,omitempty" yaml:"grantType,omitempty"`
	TokenURL     string   `json:"tokenURL,omitempty" yaml:"tokenURL,omitempty"`
	ClientID     string   `json:"clientID,omitempty" yaml:"clientID,omitempty"`
	ClientSecret string   `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Username     string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string   `json:"password,omitempty" yaml:"password,omitempty"`
}

// NotifyConfig holds the chat webhooks run results are posted to.
type NotifyConfig struct {
	Slack        string `json:"slack,omitempty" yaml:"slack,omitempty"`
	SlackChannel string `json:"slackChannel,omitempty" yaml:"slackChannel,omitempty"`
	Teams        string `json:"teams,omitempty" yaml:"teams,omitempty"`
	// On is always, failure, success or recovery.
	On string `json:"on,omitempty" yaml:"on,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
// Bare numbers are read as milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
		return nil
	case string:
		return d.parse(val)
	}
	return fmt.Errorf("invalid duration %s", string(data))
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if node.Tag == "!!int" {
		if err := node.Decode(&ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetExitCode reports whether the process exit code reflects the outcome
func (c *Config) GetExitCode() bool {
	return getBool(c.ExitCode, false)
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	".statusprobe.json",
	"statusprobe.json",
	".statusprobe.yaml",
	"statusprobe.yaml",
	".statusprobe.yml",
	"statusprobe.yml",
}

// LoadConfig loads configuration from the specified path or searches the
// working directory. The second result is the file that was read, empty when
// only defaults apply.
func LoadConfig(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := loadConfigFromFile(path)
		return cfg, path, err
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, string, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := loadConfigFromFile(configPath)
			return cfg, configPath, err
		}
	}

	return DefaultConfig(), "", nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.Key != "" {
		result.Key = other.Key
	}
	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.APIPrefix != "" {
		result.APIPrefix = other.APIPrefix
	}
	if other.ClientName != "" {
		result.ClientName = other.ClientName
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.ExitCode != nil {
		result.ExitCode = other.ExitCode
	}

	if other.Notify != nil {
		n := NotifyConfig{}
		if result.Notify != nil {
			n = *result.Notify
		}
		if other.Notify.Slack != "" {
			n.Slack = other.Notify.Slack
		}
		if other.Notify.SlackChannel != "" {
			n.SlackChannel = other.Notify.SlackChannel
		}
		if other.Notify.Teams != "" {
			n.Teams = other.Notify.Teams
		}
		if other.Notify.On != "" {
			n.On = other.Notify.On
		}
		result.Notify = &n
	}

	if other.Auth != nil {
		a := AuthConfig{}
		if result.Auth != nil {
			a = *result.Auth
		}
		mergeString(&a.GrantType, other.Auth.GrantType)
		mergeString(&a.TokenURL, other.Auth.TokenURL)
		mergeString(&a.ClientID, other.Auth.ClientID)
		mergeString(&a.ClientSecret, other.Auth.ClientSecret)
		mergeString(&a.Username, other.Auth.Username)
		mergeString(&a.Password, other.Auth.Password)
		if len(other.Auth.Scopes) > 0 {
			a.Scopes = other.Auth.Scopes
		}
		result.Auth = &a
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// SaveConfig writes the configuration, as YAML or JSON depending on the
// file extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

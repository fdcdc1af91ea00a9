// Package config provides YAML configuration parsing for the sync daemon.
//
// This package enables running the polling daemon as a standalone binary
// with a configuration file, as an alternative to passing every setting as
// a CLI flag.
//
// Example configuration:
//
//	auth_token: ${REINFER_TOKEN}
//	dataset_name: acme/support-emails
//	source_name: Zendesk
//	api_url: https://reinfer.io/api/voc
//	poll_interval: 1s
//	max_failures: 5
//
// Values support environment variable substitution with ${VAR} and
// ${VAR:-default} syntax, so secrets like the auth token can stay out of
// the file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL       = "https://reinfer.io/api/voc"
	defaultPollInterval = time.Second
	defaultMaxFailures  = 5

	// minPollInterval prevents accidental DoS of the backend with overly
	// aggressive polling.
	minPollInterval = 100 * time.Millisecond
)

// Config is the root configuration structure for the sync daemon.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// AuthToken authenticates every request to the backend.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	AuthToken string `yaml:"auth_token"`

	// DatasetName is the dataset comments are synced into, prefixed with
	// its owner, e.g. "acme/emails".
	DatasetName string `yaml:"dataset_name"`

	// SourceName labels the origin system of the comments, e.g. "Zendesk".
	SourceName string `yaml:"source_name"`

	// APIURL is the backend base URL. Defaults to the hosted platform.
	// Supports environment variable substitution.
	APIURL string `yaml:"api_url"`

	// PollInterval is the sleep between poll ticks.
	// Accepts duration strings like "1s", "500ms". Defaults to 1s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxFailures is how many consecutive failing ticks end the daemon.
	// Defaults to 5.
	MaxFailures int `yaml:"max_failures"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in AuthToken and APIURL. Defaults are
// applied for APIURL, PollInterval (1s) and MaxFailures (5).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// a second unmarshal into pointer fields distinguishes keys that are
	// absent from keys explicitly set to a zero value; only absent keys get
	// defaults, explicit zeros fall through to Validate
	var present struct {
		PollInterval *Duration `yaml:"poll_interval"`
		MaxFailures  *int      `yaml:"max_failures"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if present.PollInterval == nil {
		cfg.PollInterval = Duration(defaultPollInterval)
	}
	if present.MaxFailures == nil {
		cfg.MaxFailures = defaultMaxFailures
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.AuthToken)
	if err != nil {
		return fmt.Errorf("auth_token: %w", err)
	}
	c.AuthToken = expanded

	expanded, err = expandEnvVars(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	c.APIURL = expanded

	return c.Validate()
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("auth_token is required")
	}

	if c.DatasetName == "" {
		return fmt.Errorf("dataset_name is required")
	}
	if !strings.Contains(c.DatasetName, "/") {
		return fmt.Errorf("dataset_name must be prefixed with its owner, e.g. %q, got %q",
			"acme/emails", c.DatasetName)
	}

	if c.SourceName == "" {
		return fmt.Errorf("source_name is required")
	}

	parsedURL, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api_url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s",
			minPollInterval, c.PollInterval.Duration())
	}

	if c.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be positive, got %d", c.MaxFailures)
	}

	return nil
}

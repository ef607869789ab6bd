// Package config loads boardsync settings from .boardsync.yaml and the
// environment. Environment variables take precedence over file values.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/boardsync/boardsync/internal/github"
)

// DefaultConfigFile is the config file looked up in the current directory
// when no explicit path is given.
const DefaultConfigFile = ".boardsync.yaml"

// Environment variable names. The token falls back through EnvToken,
// EnvGitHubToken, and EnvGHToken, first non-empty wins.
const (
	EnvToken        = "BOARDSYNC_TOKEN"
	EnvGitHubToken  = "GITHUB_TOKEN"
	EnvGHToken      = "GH_TOKEN"
	EnvOwner        = "BOARDSYNC_OWNER"
	EnvRepo         = "BOARDSYNC_REPO"
	EnvProjectTitle = "BOARDSYNC_PROJECT_TITLE"
	EnvAPIURL       = "BOARDSYNC_API_URL"
	EnvGraphQLURL   = "BOARDSYNC_GRAPHQL_URL"
	EnvTimeout      = "BOARDSYNC_TIMEOUT"
	EnvMaxRetries   = "BOARDSYNC_MAX_RETRIES"
	EnvLogFile      = "BOARDSYNC_LOG_FILE"
	EnvLogLevel     = "BOARDSYNC_LOG_LEVEL"
)

// Config holds the resolved settings for a run.
type Config struct {
	Token        string
	Owner        string
	Repo         string
	ProjectTitle string
	APIURL       string
	GraphQLURL   string
	// Timeout bounds a single HTTP attempt, written in duration form
	// ("20s", "1m").
	Timeout    time.Duration
	MaxRetries int
	LogFile    string
	LogLevel   string
}

// Load reads configuration from the given file path, falling back to
// .boardsync.yaml in the current directory. An explicit path must exist; the
// default path is optional. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("api_url", github.DefaultAPIEndpoint)
	v.SetDefault("graphql_url", github.DefaultGraphQLEndpoint)
	v.SetDefault("timeout", github.DefaultTimeout.String())
	v.SetDefault("max_retries", github.DefaultMaxAttempts)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	cfg := &Config{
		Token:        v.GetString("token"),
		Owner:        v.GetString("owner"),
		Repo:         v.GetString("repo"),
		ProjectTitle: v.GetString("project_title"),
		APIURL:       v.GetString("api_url"),
		GraphQLURL:   v.GetString("graphql_url"),
		MaxRetries:   v.GetInt("max_retries"),
		LogFile:      v.GetString("log_file"),
		LogLevel:     v.GetString("log_level"),
	}

	timeout, err := time.ParseDuration(v.GetString("timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", v.GetString("timeout"), err)
	}
	cfg.Timeout = timeout

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over file values.
func applyEnvOverrides(cfg *Config) error {
	for _, key := range []string{EnvToken, EnvGitHubToken, EnvGHToken} {
		if value := os.Getenv(key); value != "" {
			cfg.Token = value
			break
		}
	}

	overrides := map[string]*string{
		EnvOwner:        &cfg.Owner,
		EnvRepo:         &cfg.Repo,
		EnvProjectTitle: &cfg.ProjectTitle,
		EnvAPIURL:       &cfg.APIURL,
		EnvGraphQLURL:   &cfg.GraphQLURL,
		EnvLogFile:      &cfg.LogFile,
		EnvLogLevel:     &cfg.LogLevel,
	}
	for key, field := range overrides {
		if value := os.Getenv(key); value != "" {
			*field = value
		}
	}

	if raw := os.Getenv(EnvTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, raw, err)
		}
		cfg.Timeout = timeout
	}
	if raw := os.Getenv(EnvMaxRetries); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid %s %q: must be a positive integer", EnvMaxRetries, raw)
		}
		cfg.MaxRetries = n
	}
	return nil
}

// ValidateRemote checks that everything needed to reach the API is present.
func (c *Config) ValidateRemote() error {
	if c.Token == "" {
		return fmt.Errorf("token is not configured. Set token in %s or the %s environment variable", DefaultConfigFile, EnvToken)
	}
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("owner and repo are not configured. Set them in %s or via %s / %s", DefaultConfigFile, EnvOwner, EnvRepo)
	}
	return nil
}

// MaskedToken returns a form of the token safe for display.
func (c *Config) MaskedToken() string {
	if c.Token == "" {
		return "(not set)"
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return c.Token[:4] + "****"
}

// Client builds a GitHub client from the resolved settings. Unset fields
// keep the client's defaults, so a hand-built Config works too.
func (c *Config) Client() *github.Client {
	client := github.NewClient(c.Token, c.Owner, c.Repo)
	if c.APIURL != "" {
		client = client.WithBaseURL(c.APIURL)
	}
	if c.GraphQLURL != "" {
		client = client.WithGraphQLURL(c.GraphQLURL)
	}
	if c.Timeout > 0 {
		client = client.WithHTTPClient(&http.Client{Timeout: c.Timeout})
	}
	if c.MaxRetries > 0 {
		client = client.WithMaxAttempts(c.MaxRetries)
	}
	return client
}

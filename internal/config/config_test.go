package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boardsync/boardsync/internal/github"
)

// clearEnv blanks every variable the loader reads so ambient shell state
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvToken, EnvGitHubToken, EnvGHToken,
		EnvOwner, EnvRepo, EnvProjectTitle,
		EnvAPIURL, EnvGraphQLURL, EnvTimeout, EnvMaxRetries,
		EnvLogFile, EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".boardsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIURL != github.DefaultAPIEndpoint {
		t.Errorf("APIURL = %q, want default endpoint", cfg.APIURL)
	}
	if cfg.GraphQLURL != github.DefaultGraphQLEndpoint {
		t.Errorf("GraphQLURL = %q, want default endpoint", cfg.GraphQLURL)
	}
	if cfg.Timeout != github.DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, github.DefaultTimeout)
	}
	if cfg.MaxRetries != github.DefaultMaxAttempts {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, github.DefaultMaxAttempts)
	}
	if cfg.Token != "" {
		t.Errorf("Token = %q, want empty", cfg.Token)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
token: ghp_filetoken
owner: acme
repo: widgets
project_title: Sprint Board
timeout: 45s
max_retries: 3
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "ghp_filetoken" {
		t.Errorf("Token = %q, want ghp_filetoken", cfg.Token)
	}
	if cfg.Owner != "acme" || cfg.Repo != "widgets" {
		t.Errorf("repo = %s/%s, want acme/widgets", cfg.Owner, cfg.Repo)
	}
	if cfg.ProjectTitle != "Sprint Board" {
		t.Errorf("ProjectTitle = %q, want Sprint Board", cfg.ProjectTitle)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing-file error for explicit path")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not-found message", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "token: file-token\nowner: file-owner\ntimeout: 10s\n")

	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvOwner, "env-owner")
	t.Setenv(EnvTimeout, "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", cfg.Token)
	}
	if cfg.Owner != "env-owner" {
		t.Errorf("Owner = %q, want env-owner", cfg.Owner)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
}

func TestTokenFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "boardsync token wins",
			env:  map[string]string{EnvToken: "a", EnvGitHubToken: "b", EnvGHToken: "c"},
			want: "a",
		},
		{
			name: "github token second",
			env:  map[string]string{EnvGitHubToken: "b", EnvGHToken: "c"},
			want: "b",
		},
		{
			name: "gh token last",
			env:  map[string]string{EnvGHToken: "c"},
			want: "c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Token != tt.want {
				t.Errorf("Token = %q, want %q", cfg.Token, tt.want)
			}
		})
	}
}

func TestLoadInvalidTimeout(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "timeout: banana\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want invalid-timeout error")
	}

	clearEnv(t)
	t.Setenv(EnvTimeout, "fast")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() error = nil, want invalid env timeout error")
	}
}

func TestLoadInvalidMaxRetries(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMaxRetries, "zero")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() error = nil, want invalid max-retries error")
	}

	clearEnv(t)
	t.Setenv(EnvMaxRetries, "0")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() error = nil, want positive-integer error")
	}
}

func TestValidateRemote(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing token",
			cfg:     Config{Owner: "acme", Repo: "widgets"},
			wantErr: "token",
		},
		{
			name:    "missing repo",
			cfg:     Config{Token: "t", Owner: "acme"},
			wantErr: "owner and repo",
		},
		{
			name: "complete",
			cfg:  Config{Token: "t", Owner: "acme", Repo: "widgets"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateRemote()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateRemote() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateRemote() error = %v, want to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMaskedToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "(not set)"},
		{"abc", "****"},
		{"ghp_", "****"},
		{"ghp_abcdef123456", "ghp_****"},
	}

	for _, tt := range tests {
		cfg := Config{Token: tt.token}
		if got := cfg.MaskedToken(); got != tt.want {
			t.Errorf("MaskedToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestClientFromConfig(t *testing.T) {
	cfg := Config{
		Token:      "t",
		Owner:      "acme",
		Repo:       "widgets",
		APIURL:     "https://ghe.example.com/api/v3",
		GraphQLURL: "https://ghe.example.com/api/graphql",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}

	client := cfg.Client()

	if client.BaseURL != cfg.APIURL {
		t.Errorf("BaseURL = %q, want %q", client.BaseURL, cfg.APIURL)
	}
	if client.GraphQLURL != cfg.GraphQLURL {
		t.Errorf("GraphQLURL = %q, want %q", client.GraphQLURL, cfg.GraphQLURL)
	}
	if client.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", client.MaxAttempts)
	}
	if client.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("HTTPClient.Timeout = %v, want 5s", client.HTTPClient.Timeout)
	}
}

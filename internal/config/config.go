package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAppName        = "poe"
	DefaultRepoConfigPath = ".github/poe/config.yaml"
	DefaultPort           = 8080
	DefaultSQLitePath     = "poe.db"

	DefaultReconcileInterval = 5 * time.Minute
)

type Config struct {
	GitHubToken    string          `yaml:"github_token"`
	GitHubApp      GitHubAppConfig `yaml:"github_app"`
	WebhookSecret  string          `yaml:"webhook_secret"`
	AppName        string          `yaml:"app_name"`
	RepoConfigPath string          `yaml:"repo_config_path"`
	Serve          ServeConfig     `yaml:"serve"`
	Database       DatabaseConfig  `yaml:"database"`
	Notify         NotifyConfig    `yaml:"notify"`
}

// GitHubAppConfig selects GitHub App installation auth, which creating check
// runs requires. Slug is looked up from the API when empty.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	Slug           string `yaml:"slug"`
}

func (a GitHubAppConfig) Enabled() bool {
	return a.AppID != 0
}

type ServeConfig struct {
	Port int `yaml:"port"`
	// ReconcileInterval is how often pending releases are re-evaluated.
	// A negative value disables reconciliation.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type DatabaseConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

func Default() *Config {
	return &Config{
		AppName:        DefaultAppName,
		RepoConfigPath: DefaultRepoConfigPath,
		Serve:          ServeConfig{Port: DefaultPort, ReconcileInterval: DefaultReconcileInterval},
		Database:       DatabaseConfig{SQLitePath: DefaultSQLitePath},
	}
}

// Load reads the yaml file at path over Default. A missing file is not an
// error. GITHUB_TOKEN, GITHUB_APP_ID, GITHUB_APP_PRIVATE_KEY_PATH and
// GITHUB_WEBHOOK_SECRET take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHubToken = token
	}
	if id := os.Getenv("GITHUB_APP_ID"); id != "" {
		appID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing GITHUB_APP_ID: %w", err)
		}
		cfg.GitHubApp.AppID = appID
	}
	if keyPath := os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH"); keyPath != "" {
		cfg.GitHubApp.PrivateKeyPath = keyPath
	}
	if secret := os.Getenv("GITHUB_WEBHOOK_SECRET"); secret != "" {
		cfg.WebhookSecret = secret
	}

	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores defaults a file cleared with an explicit empty value.
func (c *Config) fillDefaults() {
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.RepoConfigPath == "" {
		c.RepoConfigPath = DefaultRepoConfigPath
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = DefaultPort
	}
	if c.Serve.ReconcileInterval == 0 {
		c.Serve.ReconcileInterval = DefaultReconcileInterval
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = DefaultSQLitePath
	}
}

func (c *Config) Validate() error {
	if c.GitHubApp.Enabled() {
		if c.GitHubApp.PrivateKeyPath == "" {
			return errors.New("github_app.private_key_path is required with github_app.app_id")
		}
		return nil
	}
	if c.GitHubToken == "" {
		return errors.New("github_app or github_token is required (config file or GITHUB_APP_ID / GITHUB_TOKEN)")
	}
	return nil
}

package versioning

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Wildcard matches every check run or every approver.
const Wildcard = "*"

type Config struct {
	DefaultBranch           string          `yaml:"default_branch" json:"default_branch"`
	Versioning              VersionDefaults `yaml:"versioning" json:"versioning"`
	CreateMaintenanceBranch bool            `yaml:"create_maintenance_branch" json:"create_maintenance_branch"`
	ReleaseTrigger          ReleaseTrigger  `yaml:"release_trigger" json:"release_trigger"`
	Channels                []Channel       `yaml:"channels" json:"channels"`
}

type VersionDefaults struct {
	DefaultMajor int `yaml:"default_major" json:"default_major"`
	DefaultMinor int `yaml:"default_minor" json:"default_minor"`
	DefaultPatch int `yaml:"default_patch" json:"default_patch"`
}

type ReleaseTrigger struct {
	Enable         bool   `yaml:"enable" json:"enable"`
	Token          string `yaml:"token" json:"token"`
	BumpMajorToken string `yaml:"bump_major_token" json:"bump_major_token"`
}

type EnforceChecks struct {
	Workflows []string `yaml:"workflows" json:"workflows"`
}

type Approvals struct {
	RequiredApprovers []string `yaml:"required_approvers" json:"required_approvers"`
}

// Defaults returns the built-in configuration: next -> rc -> stable, starting at 0.0.0.
func Defaults() Config {
	return Config{
		DefaultBranch:           "main",
		CreateMaintenanceBranch: true,
		ReleaseTrigger: ReleaseTrigger{
			Enable:         false,
			Token:          "bump-version",
			BumpMajorToken: "bump-major",
		},
		Channels: []Channel{
			{
				Name:             "next",
				EnforceChecks:    EnforceChecks{Workflows: []string{}},
				Approvals:        Approvals{RequiredApprovers: []string{}},
				CreateRelease:    false,
				MarkAsPrerelease: true,
			},
			{
				Name:             "rc",
				EnforceChecks:    EnforceChecks{Workflows: []string{Wildcard}},
				Approvals:        Approvals{RequiredApprovers: []string{Wildcard}},
				CreateRelease:    true,
				MarkAsPrerelease: true,
			},
			{
				Name:             "stable",
				EnforceChecks:    EnforceChecks{Workflows: []string{Wildcard}},
				Approvals:        Approvals{RequiredApprovers: []string{Wildcard}},
				CreateRelease:    true,
				MarkAsPrerelease: false,
			},
		},
	}
}

// ParseConfig decodes a repository configuration file and lays its top-level
// keys over Defaults. Keys that are present replace the default value whole.
func ParseConfig(data []byte) (Config, error) {
	cfg := Defaults()

	var present map[string]yaml.Node
	if err := yaml.Unmarshal(data, &present); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	for key := range present {
		switch key {
		case "default_branch":
			cfg.DefaultBranch = override.DefaultBranch
		case "versioning":
			cfg.Versioning = override.Versioning
		case "create_maintenance_branch":
			cfg.CreateMaintenanceBranch = override.CreateMaintenanceBranch
		case "release_trigger":
			cfg.ReleaseTrigger = override.ReleaseTrigger
		case "channels":
			cfg.Channels = override.Channels
		}
	}

	if _, err := cfg.Registry(); err != nil {
		return Defaults(), err
	}

	return cfg, nil
}

func (c Config) Registry() (*Registry, error) {
	return NewRegistry(c.Channels, c.Versioning, c.ReleaseTrigger.BumpMajorToken)
}

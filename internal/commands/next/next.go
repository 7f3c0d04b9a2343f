package next

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/poe/internal/config"
	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/versioning"
)

var (
	configFile     string
	repoConfigFile string
	repoName       string
	ref            string
	tags           []string
	headSHA        string
	message        string
	asJSON         bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the version the next push would propose",
		Long: `Determine the next version from the existing tags and a head commit.

Tags come from GitHub with --repo or from repeated --tag flags.

Example:
  poe next --repo acme/widget --message "feat: new api"
  poe next --tag v1.2.0 --tag v1.3.0-next.2=abc123 --message "fix: typo"`,
		RunE: runNext,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")
	cmd.Flags().StringVar(&repoConfigFile, "repo-config", "", "Local repository config file (overrides the one in --repo)")
	cmd.Flags().StringVar(&repoName, "repo", "", "Repository as owner/name")
	cmd.Flags().StringVar(&ref, "ref", "", "Ref to read the repository config at (default branch if empty)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Existing tag as name or name=sha (repeatable)")
	cmd.Flags().StringVar(&headSHA, "sha", "HEAD", "Head commit SHA")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Head commit message")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full proposal as JSON")

	return cmd
}

func runNext(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if repoName == "" && len(tags) == 0 && repoConfigFile == "" {
		fmt.Fprintln(os.Stderr, "No --repo or --tag given, proposing from an empty history.")
	}

	known, err := parseTags(tags)
	if err != nil {
		return err
	}

	var repoCfg []byte
	if repoConfigFile != "" {
		repoCfg, err = os.ReadFile(repoConfigFile)
		if err != nil {
			return fmt.Errorf("reading repository config: %w", err)
		}
	}

	if repoName != "" {
		owner, name, ok := strings.Cut(repoName, "/")
		if !ok || owner == "" || name == "" {
			return fmt.Errorf("invalid --repo %q, want owner/name", repoName)
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ghClient := github.NewClient(ctx, cfg.GitHubToken)

		fmt.Fprintf(os.Stderr, "Fetching tags for %s...\n", repoName)
		ghTags, err := ghClient.ListTags(ctx, owner, name)
		if err != nil {
			return fmt.Errorf("fetching tags: %w", err)
		}
		for _, t := range ghTags {
			known = append(known, versioning.Tag{Name: t.Name, Commit: t.Commit.SHA})
		}

		if repoCfg == nil {
			repoCfg, err = ghClient.GetFileContents(ctx, owner, name, cfg.RepoConfigPath, ref)
			if err != nil && !errors.Is(err, github.ErrNotFound) {
				return fmt.Errorf("fetching repository config: %w", err)
			}
		}
	}

	repoConfig, err := loadRepoConfig(repoCfg)
	if err != nil {
		return err
	}

	nv, err := resolve(repoConfig, known, versioning.Commit{ID: headSHA, Message: message})
	if err != nil {
		return err
	}

	out, err := format(nv, asJSON)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// parseTags reads "name" or "name=sha" values.
func parseTags(values []string) ([]versioning.Tag, error) {
	result := make([]versioning.Tag, 0, len(values))
	for _, v := range values {
		name, sha, _ := strings.Cut(strings.TrimSpace(v), "=")
		if name == "" {
			return nil, fmt.Errorf("invalid --tag %q", v)
		}
		result = append(result, versioning.Tag{Name: name, Commit: sha})
	}
	return result, nil
}

func loadRepoConfig(data []byte) (versioning.Config, error) {
	if len(data) == 0 {
		return versioning.Defaults(), nil
	}
	cfg, err := versioning.ParseConfig(data)
	if err != nil {
		return versioning.Config{}, fmt.Errorf("invalid repository config: %w", err)
	}
	return cfg, nil
}

func resolve(cfg versioning.Config, known []versioning.Tag, head versioning.Commit) (versioning.NextVersion, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return versioning.NextVersion{}, err
	}
	return reg.DetermineNextVersion(known, head)
}

func format(nv versioning.NextVersion, asJSON bool) (string, error) {
	if !asJSON {
		return nv.Next, nil
	}
	data, err := json.MarshalIndent(nv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding proposal: %w", err)
	}
	return string(data), nil
}

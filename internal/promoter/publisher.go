package promoter

import (
	"context"
	"time"

	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
)

// publisher creates tags and releases through the GitHub API.
type publisher struct {
	gh      GitHub
	appName string
}

func (p publisher) CreateTag(ctx context.Context, repo release.Repo, tag, sha, message string) error {
	_, err := p.gh.CreateAnnotatedTag(ctx, repo.Owner, repo.Name, github.TagRequest{
		Tag:     tag,
		Message: message,
		Object:  sha,
		Type:    "commit",
		Tagger: github.Tagger{
			Name:  p.appName,
			Email: p.appName + "@users.noreply.github.com",
			Date:  time.Now().UTC(),
		},
	})
	return err
}

func (p publisher) CreateRelease(ctx context.Context, repo release.Repo, tag, body string, prerelease bool) error {
	_, err := p.gh.CreateRelease(ctx, repo.Owner, repo.Name, github.ReleaseRequest{
		TagName:    tag,
		Name:       tag,
		Body:       body,
		Prerelease: prerelease,
	})
	return err
}

package webhook

import (
	gh "github.com/google/go-github/v60/github"

	"github.com/user/poe/pkg/release"
	"github.com/user/poe/pkg/versioning"
)

// ToEvent converts a parsed webhook payload into a triggering event. Payloads
// the promoter does not act on yield false.
func ToEvent(payload any) (release.Event, bool) {
	switch e := payload.(type) {
	case *gh.PushEvent:
		owner := e.GetRepo().GetOwner().GetLogin()
		if owner == "" {
			owner = e.GetRepo().GetOwner().GetName()
		}
		return release.PushEvent{
			Repo: release.Repo{Owner: owner, Name: e.GetRepo().GetName()},
			Ref:  e.GetRef(),
			HeadCommit: versioning.Commit{
				ID:      e.GetHeadCommit().GetID(),
				Message: e.GetHeadCommit().GetMessage(),
			},
			Pusher: e.GetPusher().GetName(),
		}, true

	case *gh.CheckRunEvent:
		if e.GetAction() != "completed" {
			return nil, false
		}
		run := e.GetCheckRun()
		return release.CheckRunCompletedEvent{
			Repo:       repoOf(e.GetRepo()),
			CheckRunID: run.GetID(),
			Name:       run.GetName(),
			HeadSHA:    run.GetHeadSHA(),
			AppSlug:    run.GetApp().GetSlug(),
			Conclusion: run.GetConclusion(),
		}, true

	case *gh.IssueCommentEvent:
		if e.GetAction() != "created" {
			return nil, false
		}
		return release.CommentEvent{
			Repo:        repoOf(e.GetRepo()),
			IssueNumber: e.GetIssue().GetNumber(),
			Author:      e.GetComment().GetUser().GetLogin(),
			Body:        e.GetComment().GetBody(),
		}, true
	}
	return nil, false
}

func repoOf(r *gh.Repository) release.Repo {
	return release.Repo{Owner: r.GetOwner().GetLogin(), Name: r.GetName()}
}

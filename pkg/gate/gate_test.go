package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/poe/pkg/gate"
	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
	"github.com/user/poe/pkg/versioning"
)

var repo = release.Repo{Owner: "acme", Name: "widget"}

type fakeCheckRuns struct {
	runs []github.CheckRun
	err  error
	refs []string
}

func (f *fakeCheckRuns) ListCheckRuns(ctx context.Context, owner, name, ref string) ([]github.CheckRun, error) {
	f.refs = append(f.refs, ref)
	return f.runs, f.err
}

type fakeComments struct {
	comments []github.IssueComment
	err      error
}

func (f *fakeComments) GetIssueComments(ctx context.Context, owner, name string, number int) ([]github.IssueComment, error) {
	return f.comments, f.err
}

func namedConfig(workflows, approvers []string) versioning.Config {
	cfg := versioning.Defaults()
	cfg.Channels[1].EnforceChecks.Workflows = workflows
	cfg.Channels[1].Approvals.RequiredApprovers = approvers
	return cfg
}

func newRequest(next string, cfg versioning.Config) *release.Request {
	return release.NewRequest(repo, versioning.NextVersion{Next: next, HeadCommit: "abc123"}, cfg)
}

func run(name, status, conclusion string) github.CheckRun {
	return github.CheckRun{Name: name, Status: status, Conclusion: conclusion, App: github.App{Slug: "github-actions"}}
}

func ownRun(name, status string) github.CheckRun {
	return github.CheckRun{Name: name, Status: status, App: github.App{Slug: "poe-bot"}}
}

func TestChecks_Evaluate(t *testing.T) {
	type tc struct {
		name        string
		next        string
		cfg         versioning.Config
		runs        []github.CheckRun
		listErr     error
		wantOK      bool
		wantMessage string
	}

	cases := []tc{
		{
			name:        "channel without checks",
			next:        "v0.1.0-next.1",
			cfg:         versioning.Defaults(),
			wantOK:      true,
			wantMessage: "enforces no checks",
		},
		{
			name:   "wildcard all passed",
			next:   "v0.1.0-rc.1",
			cfg:    versioning.Defaults(),
			runs:   []github.CheckRun{run("build", "completed", "success"), run("lint", "completed", "skipped")},
			wantOK: true,
		},
		{
			name:        "wildcard ignores own check run",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{ownRun("poe: v0.1.0-rc.1", "in_progress"), run("build", "completed", "success")},
			wantOK:      true,
			wantMessage: "1 checks passed",
		},
		{
			name:        "wildcard with nothing reported",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{ownRun("poe: v0.1.0-rc.1", "in_progress")},
			wantOK:      false,
			wantMessage: "no checks reported",
		},
		{
			name:        "wildcard counts foreign run named like ours",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{run("poe: lint", "completed", "failure"), run("build", "completed", "success")},
			wantOK:      false,
			wantMessage: "checks failed: poe: lint",
		},
		{
			name:        "own run under another name",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{ownRun("release v0.1.0-rc.1", "in_progress"), run("build", "completed", "success")},
			wantOK:      true,
			wantMessage: "1 checks passed",
		},
		{
			name:        "in progress",
			next:        "v1.0.0",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{run("build", "in_progress", ""), run("test", "completed", "success")},
			wantOK:      false,
			wantMessage: "checks in progress: build",
		},
		{
			name:        "failed wins over in progress",
			next:        "v1.0.0",
			cfg:         versioning.Defaults(),
			runs:        []github.CheckRun{run("build", "in_progress", ""), run("test", "completed", "failure")},
			wantOK:      false,
			wantMessage: "checks failed: test",
		},
		{
			name:   "named checks present",
			next:   "v0.1.0-rc.1",
			cfg:    namedConfig([]string{"build"}, nil),
			runs:   []github.CheckRun{run("build", "completed", "success"), run("flaky", "completed", "failure")},
			wantOK: true,
		},
		{
			name:        "named check missing",
			next:        "v0.1.0-rc.1",
			cfg:         namedConfig([]string{"build", "e2e"}, nil),
			runs:        []github.CheckRun{run("build", "completed", "success")},
			wantOK:      false,
			wantMessage: "checks not reported: e2e",
		},
		{
			name:        "latest run wins",
			next:        "v0.1.0-rc.1",
			cfg:         namedConfig([]string{"build"}, nil),
			runs:        []github.CheckRun{run("build", "completed", "success"), run("build", "completed", "failure")},
			wantOK:      true,
			wantMessage: "1 checks passed",
		},
		{
			name:        "lister error",
			next:        "v1.0.0",
			cfg:         versioning.Defaults(),
			listErr:     errors.New("GitHub API error: 502"),
			wantOK:      false,
			wantMessage: "listing check runs: GitHub API error: 502",
		},
		{
			name:        "unknown channel",
			next:        "nightly",
			cfg:         versioning.Defaults(),
			wantOK:      false,
			wantMessage: "resolving channel",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lister := &fakeCheckRuns{runs: c.runs, err: c.listErr}
			g := gate.NewChecks(lister, "poe-bot")

			resp := g.Evaluate(context.Background(), release.PushEvent{Repo: repo}, newRequest(c.next, c.cfg))

			require.Equal(t, gate.ChecksID, resp.ID)
			require.Equal(t, c.wantOK, resp.OK, resp.Message)
			if c.wantMessage != "" {
				require.Contains(t, resp.Message, c.wantMessage)
			}
		})
	}
}

func TestChecks_Evaluate_ListsHeadCommit(t *testing.T) {
	lister := &fakeCheckRuns{runs: []github.CheckRun{run("build", "completed", "success")}}
	g := gate.NewChecks(lister, "poe-bot")

	g.Evaluate(context.Background(), release.PushEvent{Repo: repo}, newRequest("v1.0.0", versioning.Defaults()))

	require.Equal(t, []string{"abc123"}, lister.refs)
}

func approval(login string) github.IssueComment {
	return github.IssueComment{Body: "LGTM\n/poe:approve", User: github.User{Login: login}}
}

func TestApprovals_Evaluate(t *testing.T) {
	type tc struct {
		name        string
		next        string
		cfg         versioning.Config
		issue       int
		comments    []github.IssueComment
		listErr     error
		event       release.Event
		wantOK      bool
		wantMessage string
	}

	cases := []tc{
		{
			name:   "channel without approvers",
			next:   "v0.1.0-next.3",
			cfg:    versioning.Defaults(),
			wantOK: true,
		},
		{
			name:        "no issue yet",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			wantOK:      false,
			wantMessage: "no approval issue",
		},
		{
			name:     "wildcard any approver",
			next:     "v0.1.0-rc.1",
			cfg:      versioning.Defaults(),
			issue:    7,
			comments: []github.IssueComment{{Body: "nice", User: github.User{Login: "bob"}}, approval("alice")},
			wantOK:   true,
		},
		{
			name:        "wildcard without approval",
			next:        "v1.0.0",
			cfg:         versioning.Defaults(),
			issue:       7,
			comments:    []github.IssueComment{{Body: "please approve /poe:approve later", User: github.User{Login: "bob"}}},
			wantOK:      false,
			wantMessage: "waiting for an approval on #7",
		},
		{
			name:     "named approvers all present",
			next:     "v0.1.0-rc.1",
			cfg:      namedConfig(nil, []string{"alice", "Bob"}),
			issue:    7,
			comments: []github.IssueComment{approval("bob"), approval("alice")},
			wantOK:   true,
		},
		{
			name:        "named approver missing",
			next:        "v0.1.0-rc.1",
			cfg:         namedConfig(nil, []string{"alice", "bob"}),
			issue:       7,
			comments:    []github.IssueComment{approval("alice"), approval("carol")},
			wantOK:      false,
			wantMessage: "waiting for approval from bob",
		},
		{
			name:   "triggering comment counts",
			next:   "v0.1.0-rc.1",
			cfg:    namedConfig(nil, []string{"alice"}),
			issue:  7,
			event:  release.CommentEvent{Repo: repo, IssueNumber: 7, Author: "alice", Body: "/poe:approve"},
			wantOK: true,
		},
		{
			name:        "comment on another issue ignored",
			next:        "v0.1.0-rc.1",
			cfg:         namedConfig(nil, []string{"alice"}),
			issue:       7,
			event:       release.CommentEvent{Repo: repo, IssueNumber: 8, Author: "alice", Body: "/poe:approve"},
			wantOK:      false,
			wantMessage: "alice",
		},
		{
			name:        "lister error",
			next:        "v0.1.0-rc.1",
			cfg:         versioning.Defaults(),
			issue:       7,
			listErr:     errors.New("GitHub API error: 500"),
			wantOK:      false,
			wantMessage: "listing approval comments",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := gate.NewApprovals(&fakeComments{comments: c.comments, err: c.listErr})
			req := newRequest(c.next, c.cfg)
			req.IssueNumber = c.issue

			ev := c.event
			if ev == nil {
				ev = release.PushEvent{Repo: repo}
			}

			resp := g.Evaluate(context.Background(), ev, req)

			require.Equal(t, gate.ApprovalsID, resp.ID)
			require.Equal(t, c.wantOK, resp.OK, resp.Message)
			if c.wantMessage != "" {
				require.Contains(t, resp.Message, c.wantMessage)
			}
		})
	}
}

func TestIsApproval(t *testing.T) {
	require.True(t, gate.IsApproval("/poe:approve"))
	require.True(t, gate.IsApproval("ship it\n  /poe:approve  \n"))
	require.False(t, gate.IsApproval("/poe:approved"))
	require.False(t, gate.IsApproval("I will /poe:approve tomorrow"))
}

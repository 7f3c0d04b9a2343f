package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
)

const ChecksID = "checks"

type CheckRunLister interface {
	ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]github.CheckRun, error)
}

// Checks passes once every check run the candidate's channel enforces has
// completed successfully on the candidate commit.
type Checks struct {
	lister  CheckRunLister
	appSlug string
}

// NewChecks builds a checks gate. Check runs created by the GitHub App with
// appSlug belong to the promoter itself and are never counted.
func NewChecks(lister CheckRunLister, appSlug string) *Checks {
	return &Checks{lister: lister, appSlug: appSlug}
}

func (g *Checks) ID() string {
	return ChecksID
}

func (g *Checks) Evaluate(ctx context.Context, ev release.Event, req *release.Request) release.GateResponse {
	channel, err := req.Channel()
	if err != nil {
		return g.fail("resolving channel: %v", err)
	}

	required := channel.EnforceChecks.Workflows
	if len(required) == 0 {
		return release.GateResponse{ID: ChecksID, OK: true, Message: fmt.Sprintf("channel %s enforces no checks", channel.Name)}
	}

	runs, err := g.lister.ListCheckRuns(ctx, req.Repo.Owner, req.Repo.Name, req.Next.HeadCommit)
	if err != nil {
		return g.fail("listing check runs: %v", err)
	}

	byName := make(map[string]github.CheckRun)
	for _, run := range runs {
		if g.isOwn(run) {
			continue
		}
		// The listing returns the most recent run first.
		if _, seen := byName[run.Name]; !seen {
			byName[run.Name] = run
		}
	}

	var names []string
	if channel.RequiresAllChecks() {
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return g.fail("no checks reported for %s", req.Next.HeadCommit)
		}
	} else {
		names = required
	}

	var missing, running, failed []string
	for _, name := range names {
		run, ok := byName[name]
		switch {
		case !ok:
			missing = append(missing, name)
		case run.Status != "completed":
			running = append(running, name)
		case !passed(run.Conclusion):
			failed = append(failed, name)
		}
	}

	switch {
	case len(failed) > 0:
		return g.fail("checks failed: %s", strings.Join(failed, ", "))
	case len(running) > 0:
		return g.fail("checks in progress: %s", strings.Join(running, ", "))
	case len(missing) > 0:
		return g.fail("checks not reported: %s", strings.Join(missing, ", "))
	}

	return release.GateResponse{ID: ChecksID, OK: true, Message: fmt.Sprintf("%d checks passed", len(names))}
}

func (g *Checks) isOwn(run github.CheckRun) bool {
	return g.appSlug != "" && run.App.Slug == g.appSlug
}

func (g *Checks) fail(format string, args ...any) release.GateResponse {
	return release.GateResponse{ID: ChecksID, OK: false, Message: fmt.Sprintf(format, args...)}
}

func passed(conclusion string) bool {
	switch conclusion {
	case "success", "neutral", "skipped":
		return true
	}
	return false
}

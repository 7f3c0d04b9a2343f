package promoter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/user/poe/pkg/gate"
	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
)

// CheckRunName names the check run that carries a request for version.
func CheckRunName(appName, version string) string {
	return appName + ": " + version
}

// isOwnCheckRun reports whether ev comes from a check run our GitHub App
// created. The run name plays no part.
func (p *Promoter) isOwnCheckRun(ev release.CheckRunCompletedEvent) bool {
	return p.opts.AppSlug != "" && ev.AppSlug == p.opts.AppSlug
}

func checkRunRequest(appName string, req *release.Request, encoded string) github.CheckRunRequest {
	run := github.CheckRunRequest{
		Name:    CheckRunName(appName, req.Next.Next),
		HeadSHA: req.Next.HeadCommit,
		Status:  "in_progress",
		Output: &github.CheckRunOutput{
			Title:   "Release " + req.Next.Next,
			Summary: checkRunSummary(req),
			Text:    encoded,
		},
	}
	switch {
	case req.Completed:
		run.Status = "completed"
		run.Conclusion = "success"
	case req.Superseded:
		run.Status = "completed"
		run.Conclusion = "neutral"
	}
	return run
}

func checkRunSummary(req *release.Request) string {
	var b strings.Builder
	switch {
	case req.Completed:
		fmt.Fprintf(&b, "Release %s was published.\n", req.Next.Next)
	case req.Superseded:
		fmt.Fprintf(&b, "Release %s was superseded by a newer commit.\n", req.Next.Next)
	case len(req.Results) == 0:
		fmt.Fprintf(&b, "Release %s is being enqueued.\n", req.Next.Next)
	default:
		fmt.Fprintf(&b, "Release %s is %s.\n", req.Next.Next, req.State)
	}

	if len(req.Results) == 0 {
		return b.String()
	}

	ids := make([]string, 0, len(req.Results))
	for id := range req.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("\n| Gate | Status | Details |\n| --- | --- | --- |\n")
	for _, id := range ids {
		resp := req.Results[id]
		status := "waiting"
		if resp.OK {
			status = "passed"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", id, status, resp.Message)
	}
	return b.String()
}

func approvalIssue(req *release.Request, channel string, approvers []string, anyApprover bool) github.IssueRequest {
	who := "any collaborator"
	if !anyApprover {
		mentions := make([]string, len(approvers))
		for i, a := range approvers {
			mentions[i] = "@" + a
		}
		who = strings.Join(mentions, ", ")
	}

	body := fmt.Sprintf("Release **%s** of %s is ready for the `%s` channel once approved.\n\n"+
		"Changes: %s\n\n"+
		"Required approval from: %s\n\n"+
		"Comment `%s` to approve this release.\n",
		req.Next.Next, req.Repo.FullName(), channel, req.CompareURL(), who, gate.ApproveCommand)

	return github.IssueRequest{
		Title:  fmt.Sprintf("Release %s awaits approval", req.Next.Next),
		Body:   body,
		Labels: []string{"release"},
	}
}

package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
)

const (
	ApprovalsID = "approvals"

	// ApproveCommand is the comment body that records an approval.
	ApproveCommand = "/poe:approve"
)

type CommentLister interface {
	GetIssueComments(ctx context.Context, owner, repo string, number int) ([]github.IssueComment, error)
}

// Approvals passes once the channel's required approvers have commented the
// approve command on the request's approval issue.
type Approvals struct {
	lister CommentLister
}

func NewApprovals(lister CommentLister) *Approvals {
	return &Approvals{lister: lister}
}

func (g *Approvals) ID() string {
	return ApprovalsID
}

func (g *Approvals) Evaluate(ctx context.Context, ev release.Event, req *release.Request) release.GateResponse {
	channel, err := req.Channel()
	if err != nil {
		return g.fail("resolving channel: %v", err)
	}

	required := channel.Approvals.RequiredApprovers
	if len(required) == 0 {
		return release.GateResponse{ID: ApprovalsID, OK: true, Message: fmt.Sprintf("channel %s requires no approval", channel.Name)}
	}

	if req.IssueNumber == 0 {
		return g.fail("no approval issue for %s", req.Next.Next)
	}

	comments, err := g.lister.GetIssueComments(ctx, req.Repo.Owner, req.Repo.Name, req.IssueNumber)
	if err != nil {
		return g.fail("listing approval comments: %v", err)
	}

	approvers := make(map[string]bool)
	for _, comment := range comments {
		if IsApproval(comment.Body) {
			approvers[strings.ToLower(comment.User.Login)] = true
		}
	}
	// The triggering comment may not be listed yet.
	if c, ok := ev.(release.CommentEvent); ok && c.IssueNumber == req.IssueNumber && IsApproval(c.Body) {
		approvers[strings.ToLower(c.Author)] = true
	}

	if channel.AcceptsAnyApprover() {
		if len(approvers) == 0 {
			return g.fail("waiting for an approval on #%d", req.IssueNumber)
		}
		return release.GateResponse{ID: ApprovalsID, OK: true, Message: "approved"}
	}

	var waiting []string
	for _, login := range required {
		if !approvers[strings.ToLower(login)] {
			waiting = append(waiting, login)
		}
	}
	if len(waiting) > 0 {
		return g.fail("waiting for approval from %s", strings.Join(waiting, ", "))
	}
	return release.GateResponse{ID: ApprovalsID, OK: true, Message: "approved by " + strings.Join(required, ", ")}
}

func (g *Approvals) fail(format string, args ...any) release.GateResponse {
	return release.GateResponse{ID: ApprovalsID, OK: false, Message: fmt.Sprintf(format, args...)}
}

// IsApproval reports whether a comment body carries the approve command on a
// line of its own.
func IsApproval(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == ApproveCommand {
			return true
		}
	}
	return false
}

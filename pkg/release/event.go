package release

import "github.com/user/poe/pkg/versioning"

// Event is a triggering event. The concrete types are PushEvent,
// CheckRunCompletedEvent, CommentEvent and ReconcileEvent.
type Event interface {
	Repository() Repo
	isEvent()
}

type PushEvent struct {
	Repo       Repo
	Ref        string
	HeadCommit versioning.Commit
	Pusher     string
}

type CheckRunCompletedEvent struct {
	Repo       Repo
	CheckRunID int64
	Name       string
	HeadSHA    string
	AppSlug    string
	Conclusion string
}

type CommentEvent struct {
	Repo        Repo
	IssueNumber int
	Author      string
	Body        string
}

// ReconcileEvent re-evaluates a pending request without an external trigger.
type ReconcileEvent struct {
	Repo Repo
}

func (e PushEvent) Repository() Repo              { return e.Repo }
func (e CheckRunCompletedEvent) Repository() Repo { return e.Repo }
func (e CommentEvent) Repository() Repo           { return e.Repo }
func (e ReconcileEvent) Repository() Repo         { return e.Repo }

func (PushEvent) isEvent()              {}
func (CheckRunCompletedEvent) isEvent() {}
func (CommentEvent) isEvent()           {}
func (ReconcileEvent) isEvent()         {}

package promoter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/user/poe/internal/logger"
	"github.com/user/poe/internal/store"
	"github.com/user/poe/pkg/gate"
	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/release"
	"github.com/user/poe/pkg/versioning"
)

// GitHub is the part of the GitHub API the promoter drives. *github.Client
// implements it.
type GitHub interface {
	gate.CheckRunLister
	gate.CommentLister
	ListTags(ctx context.Context, owner, repo string) ([]github.Tag, error)
	GetFileContents(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	CreateCheckRun(ctx context.Context, owner, repo string, run github.CheckRunRequest) (*github.CheckRun, error)
	UpdateCheckRun(ctx context.Context, owner, repo string, id int64, run github.CheckRunRequest) (*github.CheckRun, error)
	CreateAnnotatedTag(ctx context.Context, owner, repo string, tag github.TagRequest) (*github.TagObject, error)
	CreateRef(ctx context.Context, owner, repo, ref, sha string) (*github.Ref, error)
	CreateRelease(ctx context.Context, owner, repo string, rel github.ReleaseRequest) (*github.Release, error)
	CreateIssue(ctx context.Context, owner, repo string, issue github.IssueRequest) (*github.Issue, error)
}

// Store persists release requests between events. *store.Service implements it.
type Store interface {
	Save(ctx context.Context, req *release.Request) error
	Get(ctx context.Context, id string) (*release.Request, error)
	FindByIssue(ctx context.Context, repo release.Repo, number int) (*release.Request, error)
	FindByCheckRun(ctx context.Context, repo release.Repo, id int64) (*release.Request, error)
	FindByVersion(ctx context.Context, repo release.Repo, version string) (*release.Request, error)
	ListPendingByHeadSHA(ctx context.Context, repo release.Repo, sha string) ([]*release.Request, error)
	ListIncomplete(ctx context.Context) ([]*release.Request, error)
	RecordHistory(ctx context.Context, releaseID, action, actor string, details map[string]any) error
}

type Options struct {
	AppName        string
	// AppSlug identifies the GitHub App that creates the promoter's check
	// runs. Without it no completed check run is treated as our own.
	AppSlug        string
	RepoConfigPath string
}

// Promoter turns triggering events into release requests and drives them
// through the gate pipeline.
type Promoter struct {
	gh          GitHub
	store       Store
	processor   *release.Processor
	opts        Options
	locks       *keyedMutex
	log         zerolog.Logger
	onPublished []func(ctx context.Context, req *release.Request)
}

func New(gh GitHub, st Store, opts Options) *Promoter {
	p := &Promoter{
		gh:    gh,
		store: st,
		opts:  opts,
		locks: newKeyedMutex(),
		log:   logger.With("promoter"),
	}

	pipeline := release.NewPipeline(
		gate.NewChecks(gh, opts.AppSlug),
		gate.NewApprovals(gh),
	)
	p.processor = release.NewProcessor(pipeline, publisher{gh: gh, appName: opts.AppName})
	p.processor.SetTransitionCallback(p.handleTransition)
	p.processor.SetPublishedCallback(p.handlePublished)

	return p
}

// OnPublished registers fn to run after a release was published.
func (p *Promoter) OnPublished(fn func(ctx context.Context, req *release.Request)) {
	p.onPublished = append(p.onPublished, fn)
}

// Dispatch routes ev to its handler. The returned tasks complete once each
// affected request has been evaluated.
func (p *Promoter) Dispatch(ctx context.Context, ev release.Event) ([]*release.Task, error) {
	switch e := ev.(type) {
	case release.PushEvent:
		return p.HandlePush(ctx, e)
	case release.CheckRunCompletedEvent:
		return p.HandleCheckRunCompleted(ctx, e)
	case release.CommentEvent:
		return p.HandleComment(ctx, e)
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
}

// HandlePush proposes the next version for a push to the default branch.
func (p *Promoter) HandlePush(ctx context.Context, ev release.PushEvent) ([]*release.Task, error) {
	log := p.log.With().Str("repo", ev.Repo.FullName()).Str("ref", ev.Ref).Logger()

	if ev.HeadCommit.ID == "" {
		log.Debug().Msg("Ignoring push without head commit")
		return nil, nil
	}

	cfg := p.loadConfig(ctx, ev.Repo, ev.HeadCommit.ID)
	if ev.Ref != "refs/heads/"+cfg.DefaultBranch {
		log.Debug().Str("default_branch", cfg.DefaultBranch).Msg("Ignoring push outside the default branch")
		return nil, nil
	}
	if cfg.ReleaseTrigger.Enable && !strings.Contains(ev.HeadCommit.Message, cfg.ReleaseTrigger.Token) {
		log.Debug().Str("token", cfg.ReleaseTrigger.Token).Msg("Ignoring push without release trigger")
		return nil, nil
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	tags, err := p.listTags(ctx, ev.Repo)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if tag.Commit == ev.HeadCommit.ID {
			log.Debug().Str("tag", tag.Name).Msg("Ignoring push of an already tagged commit")
			return nil, nil
		}
	}

	next, err := reg.DetermineNextVersion(tags, ev.HeadCommit)
	if err != nil {
		return nil, fmt.Errorf("determining next version: %w", err)
	}

	log.Info().Str("next", next.Next).Str("baseline", next.Baseline).Msg("Proposing release")

	task, err := p.propose(ctx, ev, release.NewRequest(ev.Repo, next, cfg))
	if err != nil || task == nil {
		return nil, err
	}
	return []*release.Task{task}, nil
}

// HandleCheckRunCompleted re-evaluates pending requests when a foreign check
// run completes and promotes a request whose own check run succeeded.
func (p *Promoter) HandleCheckRunCompleted(ctx context.Context, ev release.CheckRunCompletedEvent) ([]*release.Task, error) {
	if p.isOwnCheckRun(ev) {
		if ev.Conclusion != "success" {
			return nil, nil
		}
		task, err := p.promote(ctx, ev)
		if err != nil || task == nil {
			return nil, err
		}
		return []*release.Task{task}, nil
	}

	pending, err := p.store.ListPendingByHeadSHA(ctx, ev.Repo, ev.HeadSHA)
	if err != nil {
		return nil, fmt.Errorf("listing pending releases: %w", err)
	}

	var tasks []*release.Task
	for _, req := range pending {
		task, err := p.resume(ctx, ev, req)
		if err != nil {
			p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to resume release")
			continue
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// HandleComment re-evaluates the request behind an approval issue when the
// comment carries the approve command.
func (p *Promoter) HandleComment(ctx context.Context, ev release.CommentEvent) ([]*release.Task, error) {
	if !gate.IsApproval(ev.Body) {
		return nil, nil
	}

	req, err := p.store.FindByIssue(ctx, ev.Repo, ev.IssueNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.log.Info().Str("release", req.Next.Next).Str("author", ev.Author).Msg("Approval received")

	task, err := p.resume(ctx, ev, req)
	if err != nil || task == nil {
		return nil, err
	}
	return []*release.Task{task}, nil
}

// Reconcile re-evaluates every unpublished request, picking up gate changes
// whose webhook deliveries were missed.
func (p *Promoter) Reconcile(ctx context.Context) ([]*release.Task, error) {
	pending, err := p.store.ListIncomplete(ctx)
	if err != nil {
		return nil, err
	}

	var tasks []*release.Task
	for _, req := range pending {
		task, err := p.resume(ctx, release.ReconcileEvent{Repo: req.Repo}, req)
		if err != nil {
			p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to reconcile release")
			continue
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// promote proposes the next channel's candidate for the stored request behind
// a successful own check run. The run's output is never trusted.
func (p *Promoter) promote(ctx context.Context, ev release.CheckRunCompletedEvent) (*release.Task, error) {
	log := p.log.With().Str("repo", ev.Repo.FullName()).Int64("check_run", ev.CheckRunID).Logger()

	published, err := p.store.FindByCheckRun(ctx, ev.Repo, ev.CheckRunID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Msg("Ignoring check run without a stored release")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !published.Completed {
		log.Debug().Str("release", published.Next.Next).Msg("Ignoring check run of an unpublished release")
		return nil, nil
	}
	if ev.HeadSHA != "" && ev.HeadSHA != published.Next.HeadCommit {
		log.Warn().Str("head_sha", ev.HeadSHA).Str("release", published.Next.Next).Msg("Ignoring check run on a different commit")
		return nil, nil
	}

	reg, err := published.Registry()
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	tags, err := p.listTags(ctx, ev.Repo)
	if err != nil {
		return nil, err
	}

	candidate, err := reg.Promote(published.Next.Next, tags)
	if errors.Is(err, versioning.ErrAlreadyStable) || errors.Is(err, versioning.ErrAlreadyPromoted) {
		p.log.Debug().Err(err).Msg("Nothing to promote")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("promoting %s: %w", published.Next.Next, err)
	}

	p.log.Info().Str("from", published.Next.Next).Str("to", candidate).Msg("Promoting release")

	next := versioning.NextVersion{
		Next:       candidate,
		HeadCommit: published.Next.HeadCommit,
		Baseline:   published.Next.Baseline,
	}
	return p.propose(ctx, ev, release.NewRequest(ev.Repo, next, published.Config))
}

// propose starts req unless a request for the same version and commit
// already exists, in which case that one is resumed.
func (p *Promoter) propose(ctx context.Context, ev release.Event, req *release.Request) (*release.Task, error) {
	unlock := p.locks.lock(lockKey(req.Repo, req.Next.Next))

	existing, err := p.store.FindByVersion(ctx, req.Repo, req.Next.Next)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		unlock()
		return nil, err
	case existing.Completed:
		unlock()
		p.log.Debug().Str("release", existing.Next.Next).Msg("Release already published")
		return nil, nil
	case existing.Next.HeadCommit == req.Next.HeadCommit:
		req = existing
	default:
		if err := p.supersede(ctx, existing, req.Next.HeadCommit); err != nil {
			unlock()
			return nil, err
		}
	}

	return p.run(ctx, ev, req, unlock), nil
}

// supersede retires stale, an unpublished request for the same version on an
// older commit. Callers hold the version lock.
func (p *Promoter) supersede(ctx context.Context, stale *release.Request, head string) error {
	stale.Superseded = true
	if err := p.store.Save(ctx, stale); err != nil {
		return fmt.Errorf("superseding release %s: %w", stale.ID, err)
	}

	p.log.Info().
		Str("release", stale.Next.Next).
		Str("old_head", stale.Next.HeadCommit).
		Str("new_head", head).
		Msg("Release superseded")

	err := p.store.RecordHistory(ctx, stale.ID, "superseded", p.opts.AppName, map[string]any{
		"version":  stale.Next.Next,
		"head_sha": head,
	})
	if err != nil {
		p.log.Error().Err(err).Str("release", stale.ID).Msg("Failed to record history")
	}

	if stale.CheckRunID != 0 {
		p.syncCheckRun(ctx, stale)
	}
	return nil
}

// resume reloads stale under its lock and runs the fresh copy.
func (p *Promoter) resume(ctx context.Context, ev release.Event, stale *release.Request) (*release.Task, error) {
	unlock := p.locks.lock(lockKey(stale.Repo, stale.Next.Next))

	req, err := p.store.Get(ctx, stale.ID)
	if err != nil {
		unlock()
		return nil, err
	}
	if req.Completed || req.Superseded {
		unlock()
		return nil, nil
	}

	return p.run(ctx, ev, req, unlock), nil
}

// run prepares the request's issue and check run and dispatches it. unlock is
// released once the task is done.
func (p *Promoter) run(ctx context.Context, ev release.Event, req *release.Request, unlock func()) *release.Task {
	p.ensureApprovalIssue(ctx, req)
	if req.CheckRunID == 0 {
		p.syncCheckRun(ctx, req)
	}
	if err := p.store.Save(ctx, req); err != nil {
		p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to save release")
	}

	task := p.processor.Dispatch(ctx, ev, req)
	go func() {
		<-task.Done()
		unlock()
	}()
	return task
}

func (p *Promoter) ensureApprovalIssue(ctx context.Context, req *release.Request) {
	if req.IssueNumber != 0 {
		return
	}
	channel, err := req.Channel()
	if err != nil || len(channel.Approvals.RequiredApprovers) == 0 {
		return
	}

	issue, err := p.gh.CreateIssue(ctx, req.Repo.Owner, req.Repo.Name,
		approvalIssue(req, channel.Name, channel.Approvals.RequiredApprovers, channel.AcceptsAnyApprover()))
	if err != nil {
		p.log.Warn().Err(err).Str("release", req.Next.Next).Msg("Failed to create approval issue")
		return
	}
	req.IssueNumber = issue.Number
}

// syncCheckRun writes the encoded request into its check run, creating the
// check run on first use.
func (p *Promoter) syncCheckRun(ctx context.Context, req *release.Request) {
	encoded, err := release.Encode(req)
	if err != nil {
		p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to encode release")
		return
	}
	run := checkRunRequest(p.opts.AppName, req, encoded)

	if req.CheckRunID == 0 {
		created, err := p.gh.CreateCheckRun(ctx, req.Repo.Owner, req.Repo.Name, run)
		if err != nil {
			p.log.Warn().Err(err).Str("release", req.Next.Next).Msg("Failed to create check run")
			return
		}
		req.CheckRunID = created.ID
		return
	}

	// The head SHA of an existing check run cannot change.
	run.HeadSHA = ""
	if _, err := p.gh.UpdateCheckRun(ctx, req.Repo.Owner, req.Repo.Name, req.CheckRunID, run); err != nil {
		p.log.Warn().Err(err).Str("release", req.Next.Next).Msg("Failed to update check run")
	}
}

func (p *Promoter) handleTransition(ctx context.Context, req *release.Request, from, to release.State) {
	p.log.Debug().Str("release", req.Next.Next).Str("from", string(from)).Str("to", string(to)).Msg("Release transition")

	err := p.store.RecordHistory(ctx, req.ID, fmt.Sprintf("%s->%s", from, to), p.opts.AppName, map[string]any{
		"version":  req.Next.Next,
		"attempts": req.Attempts,
	})
	if err != nil {
		p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to record history")
	}

	if to == release.StatePending || to == release.StatePublished {
		p.syncCheckRun(ctx, req)
	}
	if err := p.store.Save(ctx, req); err != nil {
		p.log.Error().Err(err).Str("release", req.ID).Msg("Failed to save release")
	}
}

func (p *Promoter) handlePublished(ctx context.Context, req *release.Request) {
	p.log.Info().Str("repo", req.Repo.FullName()).Str("release", req.Next.Next).Msg("Release published")

	p.createMaintenanceBranch(ctx, req)

	for _, fn := range p.onPublished {
		fn(ctx, req)
	}
}

func (p *Promoter) createMaintenanceBranch(ctx context.Context, req *release.Request) {
	if !req.Config.CreateMaintenanceBranch {
		return
	}
	reg, err := req.Registry()
	if err != nil {
		return
	}
	channel, err := reg.ForVersion(req.Next.Next)
	if err != nil || channel.Name != reg.Stable().Name {
		return
	}

	branch, err := reg.ReleaseBranch(req.Next.Next)
	if err != nil {
		p.log.Warn().Err(err).Str("release", req.Next.Next).Msg("Failed to name maintenance branch")
		return
	}
	if _, err := p.gh.CreateRef(ctx, req.Repo.Owner, req.Repo.Name, "refs/heads/"+branch, req.Next.HeadCommit); err != nil {
		p.log.Warn().Err(err).Str("branch", branch).Msg("Failed to create maintenance branch")
	}
}

// loadConfig reads the repository configuration at ref. A missing or invalid
// file yields the built-in defaults.
func (p *Promoter) loadConfig(ctx context.Context, repo release.Repo, ref string) versioning.Config {
	data, err := p.gh.GetFileContents(ctx, repo.Owner, repo.Name, p.opts.RepoConfigPath, ref)
	if errors.Is(err, github.ErrNotFound) {
		p.log.Debug().Str("repo", repo.FullName()).Msg("No repository configuration, using defaults")
		return versioning.Defaults()
	}
	if err != nil {
		p.log.Warn().Err(err).Str("repo", repo.FullName()).Msg("Failed to load repository configuration, using defaults")
		return versioning.Defaults()
	}

	cfg, err := versioning.ParseConfig(data)
	if err != nil {
		p.log.Warn().Err(err).Str("repo", repo.FullName()).Msg("Invalid repository configuration, using defaults")
	}
	return cfg
}

func (p *Promoter) listTags(ctx context.Context, repo release.Repo) ([]versioning.Tag, error) {
	ghTags, err := p.gh.ListTags(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	tags := make([]versioning.Tag, len(ghTags))
	for i, t := range ghTags {
		tags[i] = versioning.Tag{Name: t.Name, Commit: t.Commit.SHA}
	}
	return tags, nil
}

func lockKey(repo release.Repo, version string) string {
	return repo.FullName() + "@" + version
}

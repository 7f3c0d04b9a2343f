package promoter_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/poe/pkg/github"
)

const appSlug = "poe-bot"

// fakeGitHub is an in-memory repository that records every write.
type fakeGitHub struct {
	mu sync.Mutex

	config    []byte
	tags      []github.Tag
	checkRuns []github.CheckRun
	comments  []github.IssueComment

	createdRuns []github.CheckRunRequest
	updatedRuns map[int64][]github.CheckRunRequest
	createdTags []github.TagRequest
	releases    []github.ReleaseRequest
	issues      []github.IssueRequest
	refs        []string
	nextID      int64
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{updatedRuns: make(map[int64][]github.CheckRunRequest)}
}

func (f *fakeGitHub) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]github.CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.CheckRun(nil), f.checkRuns...), nil
}

func (f *fakeGitHub) GetIssueComments(ctx context.Context, owner, repo string, number int) ([]github.IssueComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.IssueComment(nil), f.comments...), nil
}

func (f *fakeGitHub) ListTags(ctx context.Context, owner, repo string) ([]github.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.Tag(nil), f.tags...), nil
}

func (f *fakeGitHub) GetFileContents(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.config == nil {
		return nil, fmt.Errorf("GitHub API error: 404: %w", github.ErrNotFound)
	}
	return f.config, nil
}

func (f *fakeGitHub) CreateCheckRun(ctx context.Context, owner, repo string, run github.CheckRunRequest) (*github.CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.createdRuns = append(f.createdRuns, run)
	return &github.CheckRun{ID: f.nextID, Name: run.Name, HeadSHA: run.HeadSHA, App: github.App{Slug: appSlug}}, nil
}

func (f *fakeGitHub) UpdateCheckRun(ctx context.Context, owner, repo string, id int64, run github.CheckRunRequest) (*github.CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedRuns[id] = append(f.updatedRuns[id], run)
	return &github.CheckRun{ID: id, Name: run.Name}, nil
}

func (f *fakeGitHub) CreateAnnotatedTag(ctx context.Context, owner, repo string, tag github.TagRequest) (*github.TagObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdTags = append(f.createdTags, tag)
	f.tags = append(f.tags, github.Tag{Name: tag.Tag, Commit: github.TagCommit{SHA: tag.Object}})
	return &github.TagObject{SHA: "tag-" + tag.Tag, Tag: tag.Tag}, nil
}

func (f *fakeGitHub) CreateRef(ctx context.Context, owner, repo, ref, sha string) (*github.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref+"@"+sha)
	return &github.Ref{Ref: ref}, nil
}

func (f *fakeGitHub) CreateRelease(ctx context.Context, owner, repo string, rel github.ReleaseRequest) (*github.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, rel)
	return &github.Release{TagName: rel.TagName, Prerelease: rel.Prerelease}, nil
}

func (f *fakeGitHub) CreateIssue(ctx context.Context, owner, repo string, issue github.IssueRequest) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, issue)
	return &github.Issue{Number: len(f.issues), Title: issue.Title}, nil
}

func (f *fakeGitHub) setCheckRuns(runs ...github.CheckRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkRuns = runs
}

func (f *fakeGitHub) addComment(login, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, github.IssueComment{Body: body, User: github.User{Login: login}})
}

// lastRun returns the most recent check run payload written for id.
func (f *fakeGitHub) lastRun(id int64) github.CheckRunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if updates := f.updatedRuns[id]; len(updates) > 0 {
		return updates[len(updates)-1]
	}
	return f.createdRuns[id-1]
}

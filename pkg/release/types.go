package release

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/poe/pkg/versioning"
)

type State string

const (
	StateCreated    State = "created"
	StateEvaluating State = "evaluating"
	StateReady      State = "ready"
	StatePublished  State = "published"
	StatePending    State = "pending"
)

type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

type GateResponse struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Request tracks one release candidate from proposal to publication.
type Request struct {
	ID          string                  `json:"id"`
	Repo        Repo                    `json:"repo"`
	Next        versioning.NextVersion  `json:"next"`
	Config      versioning.Config       `json:"config"`
	Results     map[string]GateResponse `json:"results"`
	State       State                   `json:"state"`
	Completed   bool                    `json:"completed"`
	Superseded  bool                    `json:"superseded,omitempty"`
	IssueNumber int                     `json:"issue_number,omitempty"`
	CheckRunID  int64                   `json:"check_run_id,omitempty"`
	Attempts    int                     `json:"attempts"`
	CreatedAt   int64                   `json:"created_at"`
}

func NewRequest(repo Repo, next versioning.NextVersion, cfg versioning.Config) *Request {
	return &Request{
		ID:        uuid.New().String(),
		Repo:      repo,
		Next:      next,
		Config:    cfg,
		Results:   make(map[string]GateResponse),
		State:     StateCreated,
		CreatedAt: time.Now().Unix(),
	}
}

func (r *Request) Registry() (*versioning.Registry, error) {
	return r.Config.Registry()
}

// Channel resolves the channel the candidate version is published to.
func (r *Request) Channel() (versioning.Channel, error) {
	reg, err := r.Registry()
	if err != nil {
		return versioning.Channel{}, fmt.Errorf("building registry: %w", err)
	}
	return reg.ForVersion(r.Next.Next)
}

// CompareURL links the changes between the baseline and the candidate. With
// no baseline the comparison starts from a year back on the default branch.
func (r *Request) CompareURL() string {
	previous := r.Next.Baseline
	if previous == "" {
		branch := r.Config.DefaultBranch
		if branch == "" {
			branch = "main"
		}
		previous = branch + "@{1year}"
	}
	return fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s", r.Repo.Owner, r.Repo.Name, previous, r.Next.Next)
}

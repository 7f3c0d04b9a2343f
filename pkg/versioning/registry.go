package versioning

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptyRegistry    = errors.New("channel registry is empty")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrMalformedVersion = errors.New("malformed version")
)

var stableShapeRegex = regexp.MustCompile(`^(v)?\d+\.\d+\.\d+(-\w+)?`)

type Channel struct {
	Name             string        `yaml:"name" json:"name"`
	Rank             int           `yaml:"-" json:"-"`
	EnforceChecks    EnforceChecks `yaml:"enforce_checks" json:"enforce_checks"`
	Approvals        Approvals     `yaml:"approvals" json:"approvals"`
	CreateRelease    bool          `yaml:"create_release" json:"create_release"`
	MarkAsPrerelease bool          `yaml:"mark_as_prerelease" json:"mark_as_prerelease"`
}

// RequiresAllChecks reports whether every check run on the candidate must pass.
func (c Channel) RequiresAllChecks() bool {
	return containsWildcard(c.EnforceChecks.Workflows)
}

// AcceptsAnyApprover reports whether a single approval from anyone is enough.
func (c Channel) AcceptsAnyApprover() bool {
	return containsWildcard(c.Approvals.RequiredApprovers)
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if v == Wildcard || strings.EqualFold(v, "all") {
			return true
		}
	}
	return false
}

// Registry is the ordered list of channels, least stable first. The last
// channel is the stable one.
type Registry struct {
	channels       []Channel
	defaults       VersionDefaults
	bumpMajorToken string
}

func NewRegistry(channels []Channel, defaults VersionDefaults, bumpMajorToken string) (*Registry, error) {
	if len(channels) == 0 {
		return nil, ErrEmptyRegistry
	}

	seen := make(map[string]struct{}, len(channels))
	ranked := make([]Channel, len(channels))
	for i, ch := range channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("channel at position %d has no name", i)
		}
		if _, dup := seen[ch.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		ch.Rank = i
		ranked[i] = ch
	}

	return &Registry{
		channels:       ranked,
		defaults:       defaults,
		bumpMajorToken: bumpMajorToken,
	}, nil
}

func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

func (r *Registry) First() Channel {
	return r.channels[0]
}

func (r *Registry) Stable() Channel {
	return r.channels[len(r.channels)-1]
}

func (r *Registry) Defaults() VersionDefaults {
	return r.defaults
}

func (r *Registry) BumpMajorToken() string {
	return r.bumpMajorToken
}

func (r *Registry) ByName(name string) (Channel, bool) {
	for _, ch := range r.channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// Previous returns the channel promoted into name, or false when name is the
// first channel or is not registered.
func (r *Registry) Previous(name string) (Channel, bool) {
	ch, ok := r.ByName(name)
	if !ok || ch.Rank == 0 {
		return Channel{}, false
	}
	return r.channels[ch.Rank-1], true
}

// Rank returns the registry position of name, or -1 when it is unknown.
func (r *Registry) Rank(name string) int {
	if ch, ok := r.ByName(name); ok {
		return ch.Rank
	}
	return -1
}

// ForVersion resolves the channel a tag belongs to. Channel names are matched
// as substrings in registry order; a bare release shape falls back to stable.
func (r *Registry) ForVersion(tag string) (Channel, error) {
	for _, ch := range r.channels {
		if strings.Contains(tag, ch.Name) {
			return ch, nil
		}
	}
	if stableShapeRegex.MatchString(tag) {
		return r.Stable(), nil
	}
	return Channel{}, fmt.Errorf("%w: no channel found for version %q", ErrUnknownChannel, tag)
}

package versioning

import (
	"fmt"
	"strings"
)

// NextVersion is the proposal produced for a triggering push.
type NextVersion struct {
	Next        string  `json:"next"`
	HeadCommit  string  `json:"head_commit"`
	PreviousSHA *string `json:"previous_sha"`
	// Baseline is the tag the bump started from; empty for the first release.
	Baseline string `json:"baseline,omitempty"`
}

// DetermineNextVersion proposes the next version for head given every known
// tag. Tags that do not parse against the registry are ignored.
func (r *Registry) DetermineNextVersion(tags []Tag, head Commit) (NextVersion, error) {
	stableName := r.Stable().Name
	firstName := r.First().Name

	var stableTrack, buildTrack []Tag
	for _, tag := range tags {
		if !IsSemver(tag.Name) {
			continue
		}
		if _, err := r.Parse(tag.Name); err != nil {
			continue
		}
		if strings.Contains(tag.Name, stableName) || IsExact(tag.Name) {
			stableTrack = append(stableTrack, tag)
		}
		if strings.Contains(tag.Name, firstName) {
			buildTrack = append(buildTrack, tag)
		}
	}

	if len(stableTrack) == 0 && len(buildTrack) == 0 {
		return NextVersion{
			Next:       r.InitialVersion(),
			HeadCommit: head.ID,
		}, nil
	}

	var latestStable, latestBuild string
	if len(stableTrack) > 0 {
		latestStable = r.SortTags(stableTrack)[0].Name
	}
	if len(buildTrack) > 0 {
		latestBuild = r.SortTags(buildTrack)[0].Name
	}

	baseline := latestStable
	bump := func(tag string) (string, error) { return tag, nil }

	if r.Compare(latestStable, latestBuild) > 0 {
		baseline = latestBuild
		bump = r.BumpMinor
	}

	if r.bumpMajorToken != "" && strings.Contains(head.Message, r.bumpMajorToken) {
		bump = r.BumpMajor
	}

	next, err := bump(baseline)
	if err != nil {
		return NextVersion{}, fmt.Errorf("bumping %s: %w", baseline, err)
	}

	next, err = r.BumpBuild(next)
	if err != nil {
		return NextVersion{}, fmt.Errorf("bumping build of %s: %w", next, err)
	}

	return NextVersion{
		Next:       next,
		HeadCommit: head.ID,
		Baseline:   baseline,
	}, nil
}

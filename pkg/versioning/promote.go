package versioning

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStable   = errors.New("version is already on the stable channel")
	ErrAlreadyPromoted = errors.New("promoted version already tagged")
)

// NextChannel returns the channel name promotes into, or false when name is
// the stable channel or is not registered.
func (r *Registry) NextChannel(name string) (Channel, bool) {
	ch, ok := r.ByName(name)
	if !ok || ch.Rank == len(r.channels)-1 {
		return Channel{}, false
	}
	return r.channels[ch.Rank+1], true
}

// Promote proposes the candidate that carries tag one channel closer to
// stable. Channel builds continue after the highest existing build for the
// same major.minor.patch; the stable channel gets the bare release tag.
func (r *Registry) Promote(tag string, existing []Tag) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}

	target, ok := r.NextChannel(tokens.Channel)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAlreadyStable, tag)
	}

	next := Tokens{
		Major:   tokens.Major,
		Minor:   tokens.Minor,
		Patch:   tokens.Patch,
		Build:   NoBuild,
		Channel: target.Name,
	}

	if target.Name != r.Stable().Name {
		next.Build = 1
		for _, t := range existing {
			parsed, err := r.Parse(t.Name)
			if err != nil || parsed.Channel != target.Name || parsed.Build < 0 {
				continue
			}
			if parsed.Major == next.Major && parsed.Minor == next.Minor && parsed.Patch == next.Patch && parsed.Build >= next.Build {
				next.Build = parsed.Build + 1
			}
		}
		return next.String(), nil
	}

	candidate := next.String()
	for _, t := range existing {
		if t.Name == candidate {
			return "", fmt.Errorf("%w: %s", ErrAlreadyPromoted, candidate)
		}
	}
	return candidate, nil
}

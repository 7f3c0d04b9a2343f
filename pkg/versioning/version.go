package versioning

import (
	"fmt"
	"regexp"
	"strconv"
)

// NoBuild marks a version without a -channel.build suffix.
const NoBuild = -1

var (
	tokensRegex = regexp.MustCompile(`^(v)?(\d+)\.(\d+)\.(\d+)(-(\w+)\.(\d+))?`)
	semverRegex = regexp.MustCompile(`^(v?\d+\.\d+\.\d+)(-\w+)?(\.\d+)?(.*)?`)
	exactRegex  = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)
	suffixRegex = regexp.MustCompile(`(?i)-\w+(\.\d+)?(.*)?`)
)

// Tag is a version tag as reported by the hosting platform.
type Tag struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type Tokens struct {
	Major   int
	Minor   int
	Patch   int
	Build   int
	Channel string
}

// String renders the canonical tag. The -channel.build suffix is omitted only
// when there is no build number.
func (t Tokens) String() string {
	if t.Build < 0 {
		return fmt.Sprintf("v%d.%d.%d", t.Major, t.Minor, t.Patch)
	}
	return fmt.Sprintf("v%d.%d.%d-%s.%d", t.Major, t.Minor, t.Patch, t.Channel, t.Build)
}

// IsSemver reports whether name is shaped like a semantic version tag.
func IsSemver(name string) bool {
	return semverRegex.MatchString(name)
}

// IsExact reports whether name is a bare major.minor.patch release tag.
func IsExact(name string) bool {
	return exactRegex.MatchString(name)
}

// Clean strips the channel, build and anything after them.
func Clean(name string) string {
	return suffixRegex.ReplaceAllString(name, "")
}

// Parse extracts version tokens from a tag. A tag without a channel suffix
// belongs to the stable channel.
func (r *Registry) Parse(tag string) (Tokens, error) {
	m := tokensRegex.FindStringSubmatch(tag)
	if m == nil {
		return Tokens{}, fmt.Errorf("%w: %q", ErrMalformedVersion, tag)
	}

	nums := make([]int, 3)
	for i, s := range m[2:5] {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Tokens{}, fmt.Errorf("%w: %q: %v", ErrMalformedVersion, tag, err)
		}
		nums[i] = n
	}

	tokens := Tokens{
		Major:   nums[0],
		Minor:   nums[1],
		Patch:   nums[2],
		Build:   NoBuild,
		Channel: r.Stable().Name,
	}

	if m[6] != "" {
		if _, ok := r.ByName(m[6]); !ok {
			return Tokens{}, fmt.Errorf("%w: %q in %q", ErrUnknownChannel, m[6], tag)
		}
		build, err := strconv.Atoi(m[7])
		if err != nil {
			return Tokens{}, fmt.Errorf("%w: %q: %v", ErrMalformedVersion, tag, err)
		}
		tokens.Channel = m[6]
		tokens.Build = build
	}

	return tokens, nil
}

func (r *Registry) InitialVersion() string {
	return Tokens{
		Major:   r.defaults.DefaultMajor,
		Minor:   r.defaults.DefaultMinor,
		Patch:   r.defaults.DefaultPatch,
		Build:   1,
		Channel: r.First().Name,
	}.String()
}

// SetChannel moves a tag onto another registered channel, keeping its numbers.
func (r *Registry) SetChannel(tag, channel string) (string, error) {
	if _, ok := r.ByName(channel); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	tokens.Channel = channel
	return tokens.String(), nil
}

// ReleaseBranch names the maintenance branch for a tag: stable-1.2 for the
// stable channel, rc-1.2.3 for the others.
func (r *Registry) ReleaseBranch(tag string) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	if tokens.Channel == r.Stable().Name {
		return fmt.Sprintf("%s-%d.%d", tokens.Channel, tokens.Major, tokens.Minor), nil
	}
	return fmt.Sprintf("%s-%d.%d.%d", tokens.Channel, tokens.Major, tokens.Minor, tokens.Patch), nil
}

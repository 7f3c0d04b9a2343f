package versioning

import "sort"

// Compare orders two tags, returning -1 when a outranks b, 1 when b outranks
// a and 0 when they are equal. An empty or unparseable tag is treated as
// missing and loses to any present tag.
//
// Precedence: major, minor, patch, channel rank, build. A tag without a build
// number ranks below the same version carrying one.
func (r *Registry) Compare(a, b string) int {
	at, aErr := r.parseOptional(a)
	bt, bErr := r.parseOptional(b)

	switch {
	case aErr != nil && bErr != nil:
		return 0
	case bErr != nil:
		return -1
	case aErr != nil:
		return 1
	}

	if c := cmpInt(at.Major, bt.Major); c != 0 {
		return c
	}
	if c := cmpInt(at.Minor, bt.Minor); c != 0 {
		return c
	}
	if c := cmpInt(at.Patch, bt.Patch); c != 0 {
		return c
	}
	if c := cmpInt(r.Rank(at.Channel), r.Rank(bt.Channel)); c != 0 {
		return c
	}
	return cmpInt(at.Build, bt.Build)
}

func (r *Registry) parseOptional(tag string) (Tokens, error) {
	if tag == "" {
		return Tokens{}, ErrMalformedVersion
	}
	return r.Parse(tag)
}

// cmpInt uses the inverted sign convention of Compare: larger wins.
func cmpInt(a, b int) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// SortTags returns the tags ordered from the highest ranked to the lowest.
// The input slice is left untouched.
func (r *Registry) SortTags(tags []Tag) []Tag {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool {
		return r.Compare(sorted[i].Name, sorted[j].Name) < 0
	})
	return sorted
}

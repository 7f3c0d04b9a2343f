package versioning

// BumpBuild increments the build number. A tag without one starts from 0.
func (r *Registry) BumpBuild(tag string) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	if tokens.Build == NoBuild {
		tokens.Build = 0
	}
	tokens.Build++
	return tokens.String(), nil
}

// BumpPatch increments the patch number and restarts promotion from the first
// channel.
func (r *Registry) BumpPatch(tag string) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	tokens.Patch++
	tokens.Build = 0
	tokens.Channel = r.First().Name
	return tokens.String(), nil
}

func (r *Registry) BumpMinor(tag string) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	tokens.Minor++
	tokens.Patch = r.defaults.DefaultPatch
	tokens.Build = 0
	tokens.Channel = r.First().Name
	return tokens.String(), nil
}

func (r *Registry) BumpMajor(tag string) (string, error) {
	tokens, err := r.Parse(tag)
	if err != nil {
		return "", err
	}
	tokens.Major++
	tokens.Minor = r.defaults.DefaultMinor
	tokens.Patch = r.defaults.DefaultPatch
	tokens.Build = 0
	tokens.Channel = r.First().Name
	return tokens.String(), nil
}

package versioning_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/poe/pkg/versioning"
)

func defaultRegistry(t *testing.T) *versioning.Registry {
	reg, err := versioning.Defaults().Registry()
	require.NoError(t, err)
	return reg
}

func TestRegistry_Parse_Success(t *testing.T) {
	type tc struct {
		name string
		tag  string
		want versioning.Tokens
	}

	cases := []tc{
		{
			name: "channel and build",
			tag:  "v1.2.3-rc.4",
			want: versioning.Tokens{Major: 1, Minor: 2, Patch: 3, Build: 4, Channel: "rc"},
		},
		{
			name: "bare stable tag",
			tag:  "v2.0.0",
			want: versioning.Tokens{Major: 2, Minor: 0, Patch: 0, Build: versioning.NoBuild, Channel: "stable"},
		},
		{
			name: "without v prefix",
			tag:  "0.1.9-next.12",
			want: versioning.Tokens{Major: 0, Minor: 1, Patch: 9, Build: 12, Channel: "next"},
		},
		{
			name: "channel without build is stable",
			tag:  "v1.0.0-rc",
			want: versioning.Tokens{Major: 1, Minor: 0, Patch: 0, Build: versioning.NoBuild, Channel: "stable"},
		},
		{
			name: "explicit stable channel",
			tag:  "v3.1.0-stable.2",
			want: versioning.Tokens{Major: 3, Minor: 1, Patch: 0, Build: 2, Channel: "stable"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reg := defaultRegistry(t)

			got, err := reg.Parse(c.tag)

			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestRegistry_Parse_Errors(t *testing.T) {
	type tc struct {
		name    string
		tag     string
		wantErr error
	}

	cases := []tc{
		{name: "empty", tag: "", wantErr: versioning.ErrMalformedVersion},
		{name: "not a version", tag: "release-candidate", wantErr: versioning.ErrMalformedVersion},
		{name: "two components", tag: "v1.2", wantErr: versioning.ErrMalformedVersion},
		{name: "unknown channel", tag: "v1.2.3-beta.1", wantErr: versioning.ErrUnknownChannel},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reg := defaultRegistry(t)

			_, err := reg.Parse(c.tag)

			require.ErrorIs(t, err, c.wantErr)
		})
	}
}

func TestTokens_String_RoundTrip(t *testing.T) {
	reg := defaultRegistry(t)

	for _, tag := range []string{"v1.2.3-rc.4", "v0.0.0-next.0", "v10.20.30-stable.7"} {
		tokens, err := reg.Parse(tag)
		require.NoError(t, err)
		require.Equal(t, tag, tokens.String())
	}
}

func TestTokens_String_NoBuildOmitsSuffix(t *testing.T) {
	reg := defaultRegistry(t)

	tokens, err := reg.Parse("v1.2.3")
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", tokens.String())

	tokens.Build = 0
	require.Equal(t, "v1.2.3-stable.0", tokens.String())
}

func TestIsSemver_IsExact(t *testing.T) {
	type tc struct {
		name       string
		tag        string
		wantSemver bool
		wantExact  bool
	}

	cases := []tc{
		{name: "bare", tag: "v1.2.3", wantSemver: true, wantExact: true},
		{name: "no prefix", tag: "1.2.3", wantSemver: true, wantExact: true},
		{name: "channel build", tag: "v1.2.3-rc.1", wantSemver: true, wantExact: false},
		{name: "garbage", tag: "latest", wantSemver: false, wantExact: false},
		{name: "trailing text", tag: "v1.2.3-hotfix", wantSemver: true, wantExact: false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.wantSemver, versioning.IsSemver(c.tag))
			require.Equal(t, c.wantExact, versioning.IsExact(c.tag))
		})
	}
}

func TestClean(t *testing.T) {
	require.Equal(t, "v1.2.3", versioning.Clean("v1.2.3-rc.4"))
	require.Equal(t, "v1.2.3", versioning.Clean("v1.2.3"))
}

func TestRegistry_ReleaseBranch(t *testing.T) {
	reg := defaultRegistry(t)

	branch, err := reg.ReleaseBranch("v1.4.0")
	require.NoError(t, err)
	require.Equal(t, "stable-1.4", branch)

	branch, err = reg.ReleaseBranch("v1.4.2-rc.3")
	require.NoError(t, err)
	require.Equal(t, "rc-1.4.2", branch)
}

func TestRegistry_SetChannel(t *testing.T) {
	reg := defaultRegistry(t)

	tag, err := reg.SetChannel("v1.4.2-next.3", "rc")
	require.NoError(t, err)
	require.Equal(t, "v1.4.2-rc.3", tag)

	_, err = reg.SetChannel("v1.4.2-next.3", "beta")
	require.ErrorIs(t, err, versioning.ErrUnknownChannel)
}

package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v60/github"
)

const defaultBaseURL = "https://api.github.com"

// AppTransport authenticates each request as the GitHub App installation of
// the repository in its path. Requests outside /repos/ carry the App JWT.
type AppTransport struct {
	apps *ghinstallation.AppsTransport
	api  *gh.Client

	mu            sync.Mutex
	installations map[string]int64
	transports    map[int64]*ghinstallation.Transport
}

// NewAppTransport signs with privateKey, a PEM encoded RSA key of appID. An
// empty baseURL means api.github.com.
func NewAppTransport(base http.RoundTripper, appID int64, privateKey []byte, baseURL string) (*AppTransport, error) {
	apps, err := ghinstallation.NewAppsTransport(base, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("loading app private key: %w", err)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apps.BaseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(apps.BaseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	api := gh.NewClient(&http.Client{Transport: apps})
	api.BaseURL = u

	return &AppTransport{
		apps:          apps,
		api:           api,
		installations: make(map[string]int64),
		transports:    make(map[int64]*ghinstallation.Transport),
	}, nil
}

// NewAppClient returns a Client that acts as the App installation of every
// repository it touches.
func NewAppClient(tr *AppTransport) *Client {
	return NewClientWithHTTP("", &http.Client{Transport: tr})
}

func (t *AppTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	owner, repo, ok := repoFromPath(req.URL.Path)
	if !ok {
		return t.apps.RoundTrip(req)
	}

	inst, err := t.installation(req.Context(), owner, repo)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return inst.RoundTrip(req)
}

// AppSlug returns the slug of the authenticated App. Check runs the App
// creates report it as their app.slug.
func (t *AppTransport) AppSlug(ctx context.Context) (string, error) {
	app, _, err := t.api.Apps.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("getting app: %w", err)
	}
	return app.GetSlug(), nil
}

// installation returns the token transport for owner/repo, looking the
// installation up once per repository.
func (t *AppTransport) installation(ctx context.Context, owner, repo string) (*ghinstallation.Transport, error) {
	key := owner + "/" + repo

	t.mu.Lock()
	id, ok := t.installations[key]
	t.mu.Unlock()

	if !ok {
		inst, _, err := t.api.Apps.FindRepositoryInstallation(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("finding installation for %s: %w", key, err)
		}
		id = inst.GetID()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.installations[key] = id
	tr, ok := t.transports[id]
	if !ok {
		tr = ghinstallation.NewFromAppsTransport(t.apps, id)
		t.transports[id] = tr
	}
	return tr, nil
}

// repoFromPath extracts owner and repo from a /repos/{owner}/{repo}/... path.
func repoFromPath(path string) (owner, repo string, ok bool) {
	_, rest, found := strings.Cut(path, "/repos/")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

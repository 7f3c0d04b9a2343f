package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

//go:generate mockgen -destination=mocks/http_doer_mock.go -package=mocks github.com/user/poe/pkg/github HTTPDoer

var ErrNotFound = errors.New("not found")

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	token      string
	httpClient HTTPDoer
	baseURL    string
}

// NewClient authenticates every request through an oauth2 static token source.
func NewClient(ctx context.Context, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithHTTP sends the token as a bearer header on a caller supplied doer.
func NewClientWithHTTP(token string, httpClient HTTPDoer) *Client {
	return &Client{
		token:      token,
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and decodes a 2xx JSON body into out when out is not nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GitHub API error: %d: %w", resp.StatusCode, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GitHub API error: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) ListTags(ctx context.Context, owner, repo string) ([]Tag, error) {
	var allTags []Tag
	page := 1

	for {
		url := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=100&page=%d", c.baseURL, owner, repo, page)
		req, err := c.newRequest(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var tags []Tag
		if err := c.do(req, &tags); err != nil {
			return nil, err
		}

		if len(tags) == 0 {
			break
		}

		allTags = append(allTags, tags...)

		if len(tags) < 100 {
			break
		}
		page++
	}

	return allTags, nil
}

func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]CheckRun, error) {
	var allRuns []CheckRun
	page := 1

	for {
		url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/check-runs?per_page=100&page=%d", c.baseURL, owner, repo, ref, page)
		req, err := c.newRequest(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var result CheckRunsResponse
		if err := c.do(req, &result); err != nil {
			return nil, err
		}

		if len(result.CheckRuns) == 0 {
			break
		}

		allRuns = append(allRuns, result.CheckRuns...)

		if len(result.CheckRuns) < 100 || len(allRuns) >= result.TotalCount {
			break
		}
		page++
	}

	return allRuns, nil
}

func (c *Client) CreateCheckRun(ctx context.Context, owner, repo string, run CheckRunRequest) (*CheckRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, owner, repo)
	req, err := c.newRequest(ctx, http.MethodPost, url, run)
	if err != nil {
		return nil, err
	}

	var result CheckRun
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateCheckRun(ctx context.Context, owner, repo string, id int64, run CheckRunRequest) (*CheckRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.baseURL, owner, repo, id)
	req, err := c.newRequest(ctx, http.MethodPatch, url, run)
	if err != nil {
		return nil, err
	}

	var result CheckRun
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateAnnotatedTag creates a tag object for sha and the refs/tags ref
// pointing at it.
func (c *Client) CreateAnnotatedTag(ctx context.Context, owner, repo string, tag TagRequest) (*TagObject, error) {
	if tag.Type == "" {
		tag.Type = "commit"
	}

	url := fmt.Sprintf("%s/repos/%s/%s/git/tags", c.baseURL, owner, repo)
	req, err := c.newRequest(ctx, http.MethodPost, url, tag)
	if err != nil {
		return nil, err
	}

	var object TagObject
	if err := c.do(req, &object); err != nil {
		return nil, fmt.Errorf("creating tag object: %w", err)
	}

	if _, err := c.CreateRef(ctx, owner, repo, "refs/tags/"+tag.Tag, object.SHA); err != nil {
		return nil, err
	}
	return &object, nil
}

func (c *Client) CreateRef(ctx context.Context, owner, repo, ref, sha string) (*Ref, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/refs", c.baseURL, owner, repo)
	req, err := c.newRequest(ctx, http.MethodPost, url, map[string]string{"ref": ref, "sha": sha})
	if err != nil {
		return nil, err
	}

	var result Ref
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("creating ref %s: %w", ref, err)
	}
	return &result, nil
}

func (c *Client) CreateRelease(ctx context.Context, owner, repo string, release ReleaseRequest) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo)
	req, err := c.newRequest(ctx, http.MethodPost, url, release)
	if err != nil {
		return nil, err
	}

	var result Release
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CreateIssue(ctx context.Context, owner, repo string, issue IssueRequest) (*Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, owner, repo)
	req, err := c.newRequest(ctx, http.MethodPost, url, issue)
	if err != nil {
		return nil, err
	}

	var result Issue
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetIssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error) {
	var allComments []IssueComment
	page := 1

	for {
		url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100&page=%d", c.baseURL, owner, repo, number, page)
		req, err := c.newRequest(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var comments []IssueComment
		if err := c.do(req, &comments); err != nil {
			return nil, err
		}

		if len(comments) == 0 {
			break
		}

		allComments = append(allComments, comments...)

		if len(comments) < 100 {
			break
		}
		page++
	}

	return allComments, nil
}

// GetFileContents returns the decoded content of path at ref. A missing file
// yields an error wrapping ErrNotFound.
func (c *Client) GetFileContents(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, strings.TrimPrefix(path, "/"))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var file FileContent
	if err := c.do(req, &file); err != nil {
		return nil, err
	}

	if file.Type != "" && file.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", path, file.Type)
	}
	if file.Encoding != "base64" {
		return []byte(file.Content), nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return data, nil
}

package github_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/github/mocks"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewClient_Success(t *testing.T) {
	client := github.NewClient(context.Background(), "test-token")

	require.NotNil(t, client)
}

func TestClient_ListTags_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	responseBody := `[
		{"name": "v1.0.0", "commit": {"sha": "aaa"}},
		{"name": "v1.1.0-next.2", "commit": {"sha": "bbb"}}
	]`

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/tags?per_page=100&page=1", req.URL.String())
			require.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			return jsonResponse(200, responseBody), nil
		})

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	tags, err := client.ListTags(context.Background(), "acme", "widget")

	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, "v1.0.0", tags[0].Name)
	require.Equal(t, "bbb", tags[1].Commit.SHA)
}

func TestClient_ListTags_Paginates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var fullPage []string
	for i := 0; i < 100; i++ {
		fullPage = append(fullPage, fmt.Sprintf(`{"name": "v0.0.%d", "commit": {"sha": "s%d"}}`, i, i))
	}

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	gomock.InOrder(
		mockHTTP.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.String(), "page=1")
			return jsonResponse(200, "["+strings.Join(fullPage, ",")+"]"), nil
		}),
		mockHTTP.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.String(), "page=2")
			return jsonResponse(200, `[{"name": "v9.9.9", "commit": {"sha": "last"}}]`), nil
		}),
	)

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	tags, err := client.ListTags(context.Background(), "acme", "widget")

	require.NoError(t, err)
	require.Len(t, tags, 101)
	require.Equal(t, "v9.9.9", tags[100].Name)
}

func TestClient_ListTags_APIError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(500, `{"message": "boom"}`), nil)

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	tags, err := client.ListTags(context.Background(), "acme", "widget")

	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Nil(t, tags)
}

func TestClient_ListCheckRuns_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	responseBody := `{
		"total_count": 2,
		"check_runs": [
			{"id": 1, "name": "build", "status": "completed", "conclusion": "success", "app": {"slug": "github-actions"}},
			{"id": 2, "name": "test", "status": "in_progress", "conclusion": null, "app": {"slug": "github-actions"}}
		]
	}`

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/commits/abc123/check-runs?per_page=100&page=1", req.URL.String())
			return jsonResponse(200, responseBody), nil
		})

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	runs, err := client.ListCheckRuns(context.Background(), "acme", "widget", "abc123")

	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "success", runs[0].Conclusion)
	require.Equal(t, "in_progress", runs[1].Status)
	require.Empty(t, runs[1].Conclusion)
}

func TestClient_CreateCheckRun_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodPost, req.Method)
			require.Equal(t, "https://api.github.com/repos/acme/widget/check-runs", req.URL.String())
			require.Equal(t, "application/json", req.Header.Get("Content-Type"))

			body, _ := io.ReadAll(req.Body)
			require.Contains(t, string(body), `"name":"poe: v1.0.0-rc.1"`)
			require.Contains(t, string(body), `"status":"in_progress"`)
			require.NotContains(t, string(body), "conclusion")

			return jsonResponse(201, `{"id": 99, "name": "poe: v1.0.0-rc.1"}`), nil
		})

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	run, err := client.CreateCheckRun(context.Background(), "acme", "widget", github.CheckRunRequest{
		Name:    "poe: v1.0.0-rc.1",
		HeadSHA: "abc123",
		Status:  "in_progress",
		Output:  &github.CheckRunOutput{Title: "Release v1.0.0-rc.1", Summary: "pending"},
	})

	require.NoError(t, err)
	require.Equal(t, int64(99), run.ID)
}

func TestClient_CreateAnnotatedTag_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	gomock.InOrder(
		mockHTTP.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/git/tags", req.URL.String())
			body, _ := io.ReadAll(req.Body)
			require.Contains(t, string(body), `"type":"commit"`)
			require.Contains(t, string(body), `"object":"abc123"`)
			return jsonResponse(201, `{"sha": "tagsha", "tag": "v1.0.0-rc.1"}`), nil
		}),
		mockHTTP.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/git/refs", req.URL.String())
			body, _ := io.ReadAll(req.Body)
			require.Contains(t, string(body), `"ref":"refs/tags/v1.0.0-rc.1"`)
			require.Contains(t, string(body), `"sha":"tagsha"`)
			return jsonResponse(201, `{"ref": "refs/tags/v1.0.0-rc.1"}`), nil
		}),
	)

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	tag, err := client.CreateAnnotatedTag(context.Background(), "acme", "widget", github.TagRequest{
		Tag:     "v1.0.0-rc.1",
		Message: "v1.0.0-rc.1",
		Object:  "abc123",
	})

	require.NoError(t, err)
	require.Equal(t, "tagsha", tag.SHA)
}

func TestClient_CreateAnnotatedTag_RefExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	gomock.InOrder(
		mockHTTP.EXPECT().Do(gomock.Any()).Return(jsonResponse(201, `{"sha": "tagsha"}`), nil),
		mockHTTP.EXPECT().Do(gomock.Any()).Return(jsonResponse(422, `{"message": "Reference already exists"}`), nil),
	)

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	_, err := client.CreateAnnotatedTag(context.Background(), "acme", "widget", github.TagRequest{Tag: "v1.0.0", Object: "abc123"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
}

func TestClient_CreateRelease_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/releases", req.URL.String())
			body, _ := io.ReadAll(req.Body)
			require.Contains(t, string(body), `"prerelease":true`)
			return jsonResponse(201, `{"id": 5, "tag_name": "v1.0.0-rc.1", "prerelease": true}`), nil
		})

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	rel, err := client.CreateRelease(context.Background(), "acme", "widget", github.ReleaseRequest{
		TagName:    "v1.0.0-rc.1",
		Body:       "notes",
		Prerelease: true,
	})

	require.NoError(t, err)
	require.True(t, rel.Prerelease)
}

func TestClient_GetIssueComments_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockHTTP := mocks.NewMockHTTPDoer(ctrl)
	mockHTTP.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.github.com/repos/acme/widget/issues/12/comments?per_page=100&page=1", req.URL.String())
			return jsonResponse(200, `[{"id": 1, "body": "/poe:approve", "user": {"login": "octocat"}}]`), nil
		})

	client := github.NewClientWithHTTP("test-token", mockHTTP)
	comments, err := client.GetIssueComments(context.Background(), "acme", "widget", 12)

	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "octocat", comments[0].User.Login)
}

func TestClient_GetFileContents(t *testing.T) {
	type tc struct {
		name       string
		status     int
		body       string
		want       string
		wantErr    bool
		wantNotFnd bool
	}

	encoded := base64.StdEncoding.EncodeToString([]byte("channels:\n  - name: next\n"))

	cases := []tc{
		{
			name:   "base64 file",
			status: 200,
			body:   fmt.Sprintf(`{"type": "file", "encoding": "base64", "content": "%s\n"}`, encoded),
			want:   "channels:\n  - name: next\n",
		},
		{
			name:       "missing file",
			status:     404,
			body:       `{"message": "Not Found"}`,
			wantErr:    true,
			wantNotFnd: true,
		},
		{
			name:    "directory",
			status:  200,
			body:    `{"type": "dir"}`,
			wantErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockHTTP := mocks.NewMockHTTPDoer(ctrl)
			mockHTTP.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) {
					require.Equal(t, "https://api.github.com/repos/acme/widget/contents/.github/poe/config.yaml?ref=abc123", req.URL.String())
					return jsonResponse(c.status, c.body), nil
				})

			client := github.NewClientWithHTTP("test-token", mockHTTP)
			data, err := client.GetFileContents(context.Background(), "acme", "widget", ".github/poe/config.yaml", "abc123")

			if c.wantErr {
				require.Error(t, err)
				if c.wantNotFnd {
					require.ErrorIs(t, err, github.ErrNotFound)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, string(data))
		})
	}
}

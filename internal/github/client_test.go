package github

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeGitHub struct {
	mu       sync.Mutex
	requests []recordedRequest
	files    []ChangedFile
	contents map[string]string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				require.NoError(t, json.Unmarshal(raw, &rec.Body))
			}
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{
			"number": 7, "title": "Add parser", "state": "open",
			"head": map[string]string{"ref": "feature", "sha": "abc123"},
			"base": map[string]string{"ref": "main", "sha": "def456"},
			"user": map[string]string{"login": "octo"},
		})
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, f.files)
	})
	mux.HandleFunc("GET /repos/acme/widgets/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		content, ok := f.contents[r.PathValue("path")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, map[string]string{
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]int{"id": 1})
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]int{"id": 2})
	})
	mux.HandleFunc("POST /repos/acme/widgets/statuses/{sha}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, []any{})
	})
	mux.HandleFunc("DELETE /repos/acme/widgets/issues/7/labels/{label}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"name": "widgets", "full_name": "acme/widgets", "language": "Go", "default_branch": "main", "stargazers_count": 12})
	})
	return mux
}

func (f *fakeGitHub) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, fake *fakeGitHub) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient("secret-token", "acme/widgets", WithBaseURL(srv.URL))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "acme/widgets")
	assert.Error(t, err)

	for _, repo := range []string{"", "acme", "/widgets", "acme/", "a/b/c"} {
		_, err := NewClient("tok", repo)
		assert.Error(t, err, repo)
	}

	c, err := NewClient("tok", "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", c.Repository())
}

func TestClient_ChangedFiles(t *testing.T) {
	fake := &fakeGitHub{
		files: []ChangedFile{
			{Filename: "parser/parse.go", Status: FileAdded, Additions: 40, Changes: 40},
			{Filename: "old.go", Status: FileRemoved, Deletions: 10, Changes: 10},
			{Filename: "missing.go", Status: FileModified},
		},
		contents: map[string]string{"parser/parse.go": "package parser\n"},
	}
	c := newTestClient(t, fake)

	files, err := c.ChangedFiles(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "package parser\n", files[0].Content)
	assert.Empty(t, files[1].Content, "removed files are not fetched")
	assert.Empty(t, files[2].Content, "fetch failures leave content empty")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var contentReqs []recordedRequest
	for _, r := range fake.requests {
		if strings.Contains(r.Path, "/contents/") {
			contentReqs = append(contentReqs, r)
		}
		assert.Equal(t, "Bearer secret-token", r.Auth)
	}
	require.Len(t, contentReqs, 2)
	assert.Equal(t, "ref=abc123", contentReqs[0].Query)
}

func TestClient_PullRequest(t *testing.T) {
	c := newTestClient(t, &fakeGitHub{})

	pr, err := c.PullRequest(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Add parser", pr.Title)
	assert.Equal(t, "octo", pr.Author())
	assert.Equal(t, "abc123", pr.HeadSHA())
	assert.Equal(t, "main", pr.Base.Ref)
}

func TestClient_Writes(t *testing.T) {
	fake := &fakeGitHub{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	require.NoError(t, c.PostComment(ctx, 7, "## Review"))
	assert.Equal(t, "## Review", fake.last().Body["body"])

	require.NoError(t, c.CreateReview(ctx, 7, "lgtm", ""))
	assert.Equal(t, ReviewComment, fake.last().Body["event"])
	assert.Error(t, c.CreateReview(ctx, 7, "x", "MERGE"))

	require.NoError(t, c.SetCommitStatus(ctx, 7, "completed", strings.Repeat("d", 200), ""))
	status := fake.last()
	assert.Equal(t, "/repos/acme/widgets/statuses/abc123", status.Path)
	assert.Equal(t, "success", status.Body["state"])
	assert.Equal(t, DefaultStatusContext, status.Body["context"])
	assert.Len(t, status.Body["description"], 140)

	require.NoError(t, c.AddLabel(ctx, 7, "ai-reviewed"))
	assert.Equal(t, []any{"ai-reviewed"}, fake.last().Body["labels"])

	require.NoError(t, c.RemoveLabel(ctx, 7, "needs review"))
	assert.Equal(t, http.MethodDelete, fake.last().Method)
}

func TestClient_RepositoryInfo(t *testing.T) {
	c := newTestClient(t, &fakeGitHub{})

	info, err := c.RepositoryInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", info.FullName)
	assert.Equal(t, 12, info.StargazersCount)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, &fakeGitHub{})

	_, err := c.FileContent(context.Background(), "nope.go", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.Message)
	assert.Equal(t, http.MethodGet, apiErr.Method)
}

func TestStatusState(t *testing.T) {
	tests := map[string]string{
		"pending":   "pending",
		"running":   "pending",
		"success":   "success",
		"completed": "success",
		"failed":    "failure",
		"error":     "error",
		"bogus":     "pending",
	}
	for in, want := range tests {
		assert.Equal(t, want, statusState(in), in)
	}
}

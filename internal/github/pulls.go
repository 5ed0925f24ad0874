package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// File statuses reported by GitHub.
const (
	FileAdded    = "added"
	FileModified = "modified"
	FileRemoved  = "removed"
	FileRenamed  = "renamed"
)

// ChangedFile is one file touched by a pull request.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`

	// Content is the file at the PR head. Empty for removed files or when
	// the content could not be fetched.
	Content string `json:"-"`
}

type branchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type user struct {
	Login string `json:"login"`
}

// PullRequest is the subset of PR fields used in reports.
type PullRequest struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	State        string    `json:"state"`
	Base         branchRef `json:"base"`
	Head         branchRef `json:"head"`
	User         user      `json:"user"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Commits      int       `json:"commits"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	ChangedFiles int       `json:"changed_files"`
}

// Author returns the login of the PR author.
func (p *PullRequest) Author() string { return p.User.Login }

// HeadSHA returns the head commit.
func (p *PullRequest) HeadSHA() string { return p.Head.SHA }

// PullRequest fetches pull request number.
func (c *Client) PullRequest(ctx context.Context, number int) (*PullRequest, error) {
	var pr PullRequest
	if err := c.do(ctx, http.MethodGet, c.repoPath("/pulls/%d", number), nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ChangedFiles lists the files of pull request number and fetches the
// head content of every file that was not removed. Files whose content
// cannot be fetched are returned without content.
func (c *Client) ChangedFiles(ctx context.Context, number int) ([]ChangedFile, error) {
	pr, err := c.PullRequest(ctx, number)
	if err != nil {
		return nil, err
	}

	var files []ChangedFile
	for page := 1; ; page++ {
		var batch []ChangedFile
		path := c.repoPath("/pulls/%d/files?per_page=%d&page=%d", number, perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, err
		}
		files = append(files, batch...)
		if len(batch) < perPage {
			break
		}
	}

	for i := range files {
		if files[i].Status == FileRemoved {
			continue
		}
		content, err := c.FileContent(ctx, files[i].Filename, pr.HeadSHA())
		if err != nil {
			c.logger.Warn("could not fetch file content", "file", files[i].Filename, "error", err)
			continue
		}
		files[i].Content = content
	}

	c.logger.Info("fetched changed files", "pr", number, "files", len(files))
	return files, nil
}

// FileContent returns the content of path at ref. An empty ref uses the
// default branch.
func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	p := c.repoPath("/contents/%s", strings.Join(segments, "/"))
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}

	var payload struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return "", err
	}
	return decodeContent(payload.Encoding, payload.Content)
}

// PostComment adds an issue comment to pull request number.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	err := c.do(ctx, http.MethodPost, c.repoPath("/issues/%d/comments", number), map[string]string{"body": body}, nil)
	if err != nil {
		return err
	}
	c.logger.Info("posted comment", "pr", number)
	return nil
}

// Review events.
const (
	ReviewComment        = "COMMENT"
	ReviewApprove        = "APPROVE"
	ReviewRequestChanges = "REQUEST_CHANGES"
)

// CreateReview submits a review with the given event.
func (c *Client) CreateReview(ctx context.Context, number int, body, event string) error {
	switch event {
	case "":
		event = ReviewComment
	case ReviewComment, ReviewApprove, ReviewRequestChanges:
	default:
		return fmt.Errorf("github: unsupported review event %q", event)
	}
	payload := map[string]string{"body": body, "event": event}
	if err := c.do(ctx, http.MethodPost, c.repoPath("/pulls/%d/reviews", number), payload, nil); err != nil {
		return err
	}
	c.logger.Info("created review", "pr", number, "event", event)
	return nil
}

// DefaultStatusContext names the commit status set by the bot.
const DefaultStatusContext = "multi-llm-pipeline"

// statusState maps pipeline states onto GitHub commit status states.
func statusState(state string) string {
	switch state {
	case "success", "completed":
		return "success"
	case "failed", "failure":
		return "failure"
	case "error":
		return "error"
	default:
		return "pending"
	}
}

// SetCommitStatus sets a status on the head commit of pull request number.
// state accepts pipeline states (running, completed, failed) as well as
// GitHub's own.
func (c *Client) SetCommitStatus(ctx context.Context, number int, state, description, statusContext string) error {
	pr, err := c.PullRequest(ctx, number)
	if err != nil {
		return err
	}
	if statusContext == "" {
		statusContext = DefaultStatusContext
	}
	// GitHub rejects descriptions over 140 characters.
	if len(description) > 140 {
		description = description[:137] + "..."
	}
	payload := map[string]string{
		"state":       statusState(state),
		"description": description,
		"context":     statusContext,
	}
	if err := c.do(ctx, http.MethodPost, c.repoPath("/statuses/%s", pr.HeadSHA()), payload, nil); err != nil {
		return err
	}
	c.logger.Info("updated commit status", "pr", number, "state", payload["state"])
	return nil
}

// AddLabel adds label to pull request number.
func (c *Client) AddLabel(ctx context.Context, number int, label string) error {
	payload := map[string][]string{"labels": {label}}
	return c.do(ctx, http.MethodPost, c.repoPath("/issues/%d/labels", number), payload, nil)
}

// RemoveLabel removes label from pull request number.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	return c.do(ctx, http.MethodDelete, c.repoPath("/issues/%d/labels/%s", number, url.PathEscape(label)), nil, nil)
}

// RepositoryInfo is the subset of repository fields used in reports.
type RepositoryInfo struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	DefaultBranch   string    `json:"default_branch"`
	Private         bool      `json:"private"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Size            int       `json:"size"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
}

// RepositoryInfo fetches repository metadata.
func (c *Client) RepositoryInfo(ctx context.Context) (*RepositoryInfo, error) {
	var info RepositoryInfo
	if err := c.do(ctx, http.MethodGet, c.repoPath(""), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

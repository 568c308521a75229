package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"verepo/internal/repourl"
)

const defaultAPIBase = "https://api.github.com"

// Client talks to the GitHub REST API for the two things Verepo needs: the
// latest commit of a repository and its tarball snapshot.
type Client struct {
	httpClient *http.Client
	apiBase    string
	token      string
	userAgent  string
}

type Option func(*Client)

// WithAPIBase points the client at a different API host. Tests use this
// with httptest servers.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimSuffix(base, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(token, userAgent string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiBase:    defaultAPIBase,
		token:      token,
		userAgent:  userAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// ResolveLatestCommit returns the SHA of the most recent commit of the
// repository identified by key ("owner/name"), or "" if it cannot be
// determined. Failures are deliberately soft: commit freshness is an
// optimization, and "unknown" is treated upstream as "assume unchanged".
func (c *Client) ResolveLatestCommit(ctx context.Context, key string) string {
	owner, name := repourl.Split(key)
	url := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=1", c.apiBase, owner, name)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return ""
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[verepo] commit lookup failed for %s: %v", key, err)
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[verepo] commit lookup for %s returned %d", key, resp.StatusCode)
		return ""
	}

	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&commits); err != nil {
		return ""
	}
	if len(commits) == 0 {
		return ""
	}
	return commits[0].SHA
}

// DownloadTarball opens a stream of the repository's tar.gz snapshot at the
// default branch head, following redirects. The returned size is the
// Content-Length header, or -1 when the server did not send one; callers
// must treat it as advisory and enforce their own byte budget on the
// stream. The caller owns closing the body.
func (c *Client) DownloadTarball(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	owner, name := repourl.Split(key)
	url := fmt.Sprintf("%s/repos/%s/%s/tarball", c.apiBase, owner, name)

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download tarball for %s: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("tarball request for %s returned %d", key, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// Package hub implements the remote hub client (spec.md §4.3): model
// discovery, repository tree listing, and ranged/resumable file
// transfer. Grounded on the teacher's two hub clients —
// web-console/backend/pkg/huggingface/client.go for the discovery
// shape (SearchModels/GetModelInfo/endpoint construction) and
// pkg/hfutil/hub/{download,utils,errors}.go for the lower-level
// transfer/retry/error machinery — merged into one client scoped to
// what this depot actually needs.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/logging"
)

const defaultEndpoint = "https://huggingface.co"

// Client is a thin HTTP client against a Hugging-Face-shaped hub API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	retry      RetryPolicy
	logger     logging.Interface
}

// Option configures a Client.
type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func WithLogger(l logging.Interface) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Client against the given endpoint (empty string uses
// the default Hugging Face endpoint).
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   defaultEndpoint,
		retry:      DefaultRetryPolicy(),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// FindModel fetches metadata for a single repository.
func (c *Client) FindModel(ctx context.Context, repoID string) (*ModelMeta, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s", c.endpoint, escapeRepoID(repoID))

	var meta ModelMeta
	err := c.doJSON(ctx, endpoint, repoID, &meta)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListModels searches for repositories matching filter, used for
// discovery (spec.md §4.3).
func (c *Client) ListModels(ctx context.Context, filter ListFilter, opts ListOptions) ([]ModelMeta, error) {
	endpoint := fmt.Sprintf("%s/api/models", c.endpoint)

	q := url.Values{}
	if filter.Query != "" {
		q.Set("search", filter.Query)
	}
	tags := filter.Tags
	if len(tags) == 0 {
		tags = filter.Type.TagSet()
	}
	for _, t := range tags {
		q.Add("filter", t)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	switch opts.Direction {
	case "desc":
		q.Set("direction", "-1")
	case "asc":
		q.Set("direction", "1")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	q.Set("limit", strconv.Itoa(limit))

	endpoint = endpoint + "?" + q.Encode()

	var results []ModelMeta
	if err := c.doJSON(ctx, endpoint, "", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetRepositoryFileSizes returns a path→size map for a repository's
// files, preferring the LFS-reported size over the plain Git blob size
// (spec.md §4.3). The file list is the siblings list of the FindModel
// metadata response; the hub's tree endpoint is not queried, so a file
// listed there without a size maps to 0.
func (c *Client) GetRepositoryFileSizes(ctx context.Context, repoID string) (map[string]int64, error) {
	meta, err := c.FindModel(ctx, repoID)
	if err != nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(meta.Siblings))
	for _, s := range meta.Siblings {
		size := s.Size
		if s.LFS != nil && s.LFS.Size > 0 {
			size = s.LFS.Size
		}
		sizes[s.Filename] = size
	}
	return sizes, nil
}

// Head issues a HEAD request against a repository file and returns
// its size and last-modified time.
func (c *Client) Head(ctx context.Context, repoID, path string) (FileHead, error) {
	endpoint := c.resolveURL(repoID, path)

	var head FileHead
	err := c.withRetryErr(ctx, func(attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return false, err
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		if retry, err := c.classifyResponse(resp, repoID); err != nil {
			return retry, err
		}

		head.Size = resp.ContentLength
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				head.LastModified = t
			}
		}
		return false, nil
	})
	return head, err
}

// DownloadRange opens a streaming GET against a repository file,
// starting at startByte when startByte > 0 (spec.md §4.5.5).
func (c *Client) DownloadRange(ctx context.Context, repoID, path string, startByte int64) (*FileStream, error) {
	endpoint := c.resolveURL(repoID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "building download request", err)
	}
	c.authorize(req)
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "requesting file stream", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, apperrors.AuthRequired(repoID)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, apperrors.New(apperrors.KindModelSourceNotFound, fmt.Sprintf("repository %q or file %q not found", repoID, path))
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		kind := apperrors.KindTransient
		if !retryableStatus(resp.StatusCode) {
			kind = apperrors.KindModelLoadFailure
		}
		return nil, apperrors.New(kind, fmt.Sprintf("download request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var lastModified time.Time
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			lastModified = t
		}
	}

	return &FileStream{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		LastModified:  lastModified,
	}, nil
}

func (c *Client) resolveURL(repoID, path string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", c.endpoint, escapeRepoID(repoID), escapeFilePath(path))
}

// doJSON performs a retried GET and decodes a JSON body.
func (c *Client) doJSON(ctx context.Context, endpoint, repoID string, out interface{}) error {
	return c.withRetryErr(ctx, func(attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false, err
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		if retry, err := c.classifyResponse(resp, repoID); err != nil {
			return retry, err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, apperrors.Wrap(apperrors.KindTransient, "decoding hub response", err)
		}
		return false, nil
	})
}

// classifyResponse maps a non-2xx status into a typed apperror and
// reports whether the caller should retry.
func (c *Client) classifyResponse(resp *http.Response, repoID string) (retry bool, err error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return false, apperrors.AuthRequired(repoID)
	case http.StatusForbidden:
		return false, apperrors.New(apperrors.KindForbidden, fmt.Sprintf("access to %q is forbidden", repoID))
	case http.StatusNotFound:
		return false, apperrors.New(apperrors.KindModelSourceNotFound, fmt.Sprintf("repository %q not found", repoID))
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("hub request failed with status %d: %s", resp.StatusCode, string(body))
	if retryableStatus(resp.StatusCode) {
		return true, apperrors.New(apperrors.KindTransient, msg)
	}
	return false, apperrors.New(apperrors.KindModelLoadFailure, msg)
}

// withRetryErr runs fn under the client's retry policy; fn reports
// whether a returned error should be retried.
func (c *Client) withRetryErr(ctx context.Context, fn func(attempt int) (retry bool, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		retry, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		if kind, ok := apperrors.ErrorKind(err); ok {
			switch kind {
			case apperrors.KindAuthRequired, apperrors.KindForbidden, apperrors.KindModelSourceNotFound:
				return err
			}
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		delay := c.retry.Backoff(attempt)
		c.logger.WithField("attempt", attempt).WithField("delay", delay).WithError(err).Debug("retrying hub request")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return apperrors.Wrap(apperrors.KindTransient, fmt.Sprintf("hub request failed after %d attempts", c.retry.MaxAttempts), lastErr)
}

func escapeRepoID(repoID string) string {
	return escapeFilePath(repoID)
}

// escapeFilePath escapes each path component separately so forward
// slashes in repo ids / nested file paths survive.
func escapeFilePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

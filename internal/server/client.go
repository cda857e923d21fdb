package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on addr, given
// either as host:port or as a full URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 35 * time.Minute},
	}
}

// Status returns the agent statuses.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAgent toggles and/or re-cadences one class.
func (c *Client) UpdateAgent(ctx context.Context, class types.JobClass, upd AgentUpdate) (*scheduler.Status, error) {
	var out scheduler.Status
	if err := c.do(ctx, http.MethodPut, "/api/agents/"+url.PathEscape(string(class)), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitJob starts a manual job and returns immediately.
func (c *Client) SubmitJob(ctx context.Context, l types.Locale, class types.JobClass) (*scheduler.Running, error) {
	var out scheduler.Running
	req := JobRequest{Language: string(l), Type: string(class)}
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunJob runs a manual job and waits for the resulting item.
func (c *Client) RunJob(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	var out types.HistoryItem
	req := JobRequest{Language: string(l), Type: string(class)}
	if err := c.do(ctx, http.MethodPost, "/api/jobs?wait=true", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists kits matching f.
func (c *Client) History(ctx context.Context, f history.Filter) ([]types.HistoryItem, error) {
	q := url.Values{}
	if f.Language != "" {
		q.Set("lang", string(f.Language))
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []types.HistoryItem
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Item fetches one kit.
func (c *Client) Item(ctx context.Context, id string) (*types.HistoryItem, error) {
	var out types.HistoryItem
	if err := c.do(ctx, http.MethodGet, itemPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sheet fetches the text sheet of one kit.
func (c *Client) Sheet(ctx context.Context, id string) (string, error) {
	var buf bytes.Buffer
	if err := c.stream(ctx, itemPath(id, "/sheet"), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarkDownloaded flags one kit as taken.
func (c *Client) MarkDownloaded(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, itemPath(id, "/downloaded"), nil, nil)
}

// DeleteItem removes one kit and its media.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath(id, ""), nil, nil)
}

func itemPath(id, suffix string) string {
	return "/api/history/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s (is the daemon running?)", method, path)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func (c *Client) stream(ctx context.Context, path string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s (is the daemon running?)", path)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return errors.Wrap(err, "read response")
}

// checkResponse turns a non-2xx response into an *APIError marked with the
// matching sentinel, so callers can test for scheduler.ErrBusy and friends.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	var err error = &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	switch resp.StatusCode {
	case http.StatusConflict:
		err = errors.Mark(err, scheduler.ErrBusy)
	case http.StatusNotFound:
		err = errors.Mark(err, history.ErrNotFound)
	}
	return err
}

// Package restapi is the thin client for the external order REST API: list
// snapshots per viewer and status updates.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-sync/internal/events"

	"go.uber.org/zap"
)

const defaultMaxBody = 4 << 20

var (
	ErrUnknownViewer = errors.New("restapi: no order listing for viewer")
	ErrTooLarge      = errors.New("restapi: response body too large")
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	base    string
	token   string
	http    *http.Client
	log     *zap.Logger
	maxBody int64
}

func New(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		maxBody: defaultMaxBody,
	}
}

// WithMaxBody overrides the response size limit.
func (c *Client) WithMaxBody(n int64) *Client {
	c.maxBody = n
	return c
}

// SnapshotPath is the listing route for viewer.
func SnapshotPath(v events.Viewer) (string, error) {
	switch v.Kind {
	case events.ViewerUser:
		return "/orders/my", nil
	case events.ViewerVendor:
		return "/orders/vendor", nil
	case events.ViewerAdmin:
		return "/orders", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownViewer, v.Kind)
}

// Snapshot returns the raw listing body. Shape checks are the caller's job.
func (c *Client) Snapshot(ctx context.Context, v events.Viewer) ([]byte, error) {
	path, err := SnapshotPath(v)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) UpdateStatus(ctx context.Context, orderID, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if int64(len(raw)) > c.maxBody {
		c.log.Error("order api response over limit",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int64("limit", c.maxBody),
		)
		return nil, fmt.Errorf("%s %s: %w (limit %d bytes)", method, path, ErrTooLarge, c.maxBody)
	}
	c.log.Debug("order api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

// Package client calls the reindex action endpoint over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

type Client struct {
	endpoint string
	http     *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the action endpoint at endpoint. Deadlines come
// from the contexts passed to each call.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ContentTypes(ctx context.Context) ([]string, error) {
	var resp protocol.TypesResponse
	if err := c.do(ctx, protocol.Request{Action: protocol.ActionGetContentTypes}, &resp); err != nil {
		return nil, err
	}
	return resp.ContentTypes, resp.Err(protocol.ActionGetContentTypes)
}

func (c *Client) RemoveOldContent(ctx context.Context, contentType string) error {
	return c.status(ctx, protocol.Request{Action: protocol.ActionRemoveOldContent, Type: contentType})
}

// ContentList returns the ids of contentType. Ids that arrive alongside an
// application error are returned together with it.
func (c *Client) ContentList(ctx context.Context, contentType string) ([]string, error) {
	var resp protocol.ListResponse
	if err := c.do(ctx, protocol.Request{Action: protocol.ActionGetContentList, Type: contentType}, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.ContentList))
	for _, item := range resp.ContentList {
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}
	return ids, resp.Err(protocol.ActionGetContentList)
}

func (c *Client) Index(ctx context.Context, contentType, id string) error {
	var resp protocol.IndexResponse
	if err := c.do(ctx, protocol.Request{Action: protocol.ActionIndex, Type: contentType, ID: id}, &resp); err != nil {
		return err
	}
	return resp.Err()
}

func (c *Client) ContentComplete(ctx context.Context, contentType string) error {
	return c.status(ctx, protocol.Request{Action: protocol.ActionContentComplete, Type: contentType})
}

func (c *Client) Complete(ctx context.Context) error {
	return c.status(ctx, protocol.Request{Action: protocol.ActionComplete})
}

func (c *Client) status(ctx context.Context, req protocol.Request) error {
	var resp protocol.Status
	if err := c.do(ctx, req, &resp); err != nil {
		return err
	}
	return resp.Err(req.Action)
}

// do posts req and decodes the JSON reply into out. Every failure to get a
// decodable 2xx reply is a *protocol.TransportError.
func (c *Client) do(ctx context.Context, req protocol.Request, out any) error {
	fail := func(err error) error {
		return &protocol.TransportError{Action: req.Action, Timeout: isTimeout(ctx, err), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(req.Form().Encode()))
	if err != nil {
		return fail(err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if runID := logger.RunID(ctx); runID != "" {
		httpReq.Header.Set(protocol.RunIDHeader, runID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fail(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

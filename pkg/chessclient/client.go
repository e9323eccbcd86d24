// Package chessclient is a Go client for the chess-sync HTTP API, with a
// websocket event feed and an advisory local mirror of game state.
package chessclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/chess-sync/pkg/chessdto"
)

// HeaderProvider allows injecting per-request headers, such as the
// Authorization bearer or X-User-Id.
type HeaderProvider func() map[string]string

// BearerToken returns a provider for a fixed token.
func BearerToken(token string) HeaderProvider {
	return func() map[string]string { return map[string]string{"Authorization": "Bearer " + token} }
}

// UserHeader returns a provider for servers that trust X-User-Id.
func UserHeader(userID string) HeaderProvider {
	return func() map[string]string { return map[string]string{"X-User-Id": userID} }
}

// APIError is a non-2xx answer. Reason is empty for infrastructure errors.
type APIError struct {
	Status                int
	Reason                string
	Message               string
	Retryable             bool
	AuthoritativePly      *int
	AuthoritativePosition string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("chess api: status=%d reason=%s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("chess api: status=%d: %s", e.Status, e.Message)
}

// ReasonOf returns the rejection code of err, or "".
func ReasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry sets the attempt count for idempotent reads.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func gamePath(id string, suffix string) string {
	return "/api/games/" + url.PathEscape(id) + suffix
}

func (c *Client) CreateGame(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.Game, error) {
	var g chessdto.Game
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games", req, &g, false); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Game(ctx context.Context, id string) (*chessdto.Game, error) {
	var g chessdto.Game
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, ""), nil, &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Sync(ctx context.Context, id string) (*chessdto.SyncResponse, error) {
	var s chessdto.SyncResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, "/sync"), nil, &s, true); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) LegalMoves(ctx context.Context, id, square string) ([]string, error) {
	var out chessdto.LegalMovesResponse
	path := gamePath(id, "/legal") + "?square=" + url.QueryEscape(square)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Destinations, nil
}

// SubmitMove posts a move. Rejections come back as *APIError; an OutOfSync
// rejection carries the authoritative ply and position.
func (c *Client) SubmitMove(ctx context.Context, id string, req chessdto.SubmitMoveRequest) (*chessdto.MoveResponse, error) {
	var resp chessdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "/moves"), req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) PlayBot(ctx context.Context, id string) (*chessdto.MoveResponse, error) {
	var resp chessdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "/bot-move"), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Join(ctx context.Context, id string) (*chessdto.Game, error) {
	return c.gameAction(ctx, id, "/join")
}

func (c *Client) Resign(ctx context.Context, id string) (*chessdto.Game, error) {
	return c.gameAction(ctx, id, "/resign")
}

func (c *Client) OfferDraw(ctx context.Context, id string) (*chessdto.Game, error) {
	return c.gameAction(ctx, id, "/draw")
}

func (c *Client) ClaimTimeout(ctx context.Context, id string) (*chessdto.Game, error) {
	return c.gameAction(ctx, id, "/timeout")
}

func (c *Client) Abort(ctx context.Context, id string) (*chessdto.Game, error) {
	return c.gameAction(ctx, id, "/abort")
}

func (c *Client) gameAction(ctx context.Context, id, suffix string) (*chessdto.Game, error) {
	var g chessdto.Game
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, suffix), nil, &g, false); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			apiErr := decodeAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
		} else {
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var mr chessdto.MoveResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		apiErr.Message = truncate(string(body), 512)
		return apiErr
	}
	apiErr.Reason = mr.Code
	apiErr.Message = mr.Message
	apiErr.Retryable = mr.Retryable
	apiErr.AuthoritativePly = mr.AuthoritativePly
	apiErr.AuthoritativePosition = mr.AuthoritativePosition
	return apiErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/cmars/mazewar/api"
)

// Queue is the match queue service.
type Queue interface {
	Pop(ctx context.Context, n int) (*api.PopResponse, error)
	AddResult(ctx context.Context, result *api.GameResult) error
}

// Engines reaches engine instances by base URL.
type Engines interface {
	RunGame(ctx context.Context, engineURL, offenseURL, defenseURL, seed string) error
	Status(ctx context.Context, engineURL string) (*api.Status, error)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

type httpClient struct {
	client *http.Client
	header http.Header
}

func (c *httpClient) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return render.DecodeJSON(resp.Body, out)
}

// QueueClient talks to the queue service's internal match endpoints. The
// key is sent as the Authorization header as is.
type QueueClient struct {
	baseURL string
	conn    httpClient
}

func NewQueueClient(serverAddress, key string, timeout time.Duration) *QueueClient {
	return &QueueClient{
		baseURL: strings.TrimRight(serverAddress, "/") + "/internal/match",
		conn: httpClient{
			client: &http.Client{Timeout: timeout},
			header: http.Header{"Authorization": {key}},
		},
	}
}

var _ Queue = (*QueueClient)(nil)

func (q *QueueClient) Pop(ctx context.Context, n int) (*api.PopResponse, error) {
	var resp api.PopResponse
	u := q.baseURL + "/pop?" + url.Values{"n": {strconv.Itoa(n)}}.Encode()
	if err := q.conn.do(ctx, http.MethodPost, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to pop matches: %w", err)
	}
	return &resp, nil
}

func (q *QueueClient) AddResult(ctx context.Context, result *api.GameResult) error {
	if err := q.conn.do(ctx, http.MethodPost, q.baseURL+"/add_result", result, nil); err != nil {
		return fmt.Errorf("failed to add result for match %s: %w", result.ID, err)
	}
	return nil
}

// EngineClient talks to engine instances.
type EngineClient struct {
	conn httpClient
}

func NewEngineClient(timeout time.Duration) *EngineClient {
	return &EngineClient{conn: httpClient{client: &http.Client{Timeout: timeout}}}
}

var _ Engines = (*EngineClient)(nil)

func (e *EngineClient) RunGame(ctx context.Context, engineURL, offenseURL, defenseURL, seed string) error {
	q := url.Values{
		"offense_url": {offenseURL},
		"defense_url": {defenseURL},
		"seed":        {seed},
	}
	var resp api.RunGameResponse
	if err := e.conn.do(ctx, http.MethodPost, engineURL+"/run_game?"+q.Encode(), nil, &resp); err != nil {
		return fmt.Errorf("failed to start game on %s: %w", engineURL, err)
	}
	return nil
}

func (e *EngineClient) Status(ctx context.Context, engineURL string) (*api.Status, error) {
	var st api.Status
	if err := e.conn.do(ctx, http.MethodGet, engineURL+"/status", nil, &st); err != nil {
		return nil, fmt.Errorf("failed to get status from %s: %w", engineURL, err)
	}
	return &st, nil
}

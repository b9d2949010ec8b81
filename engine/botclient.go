package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/cmars/mazewar/api"
)

// Bot is the engine's view of a bot service.
type Bot interface {
	Start(ctx context.Context, req *api.StartRequest) error
	NextOffense(ctx context.Context, view string) (api.OffenseMove, error)
	NextDefense(ctx context.Context, view string) (api.DefenseMove, error)
	End(ctx context.Context) error
}

// BotClient talks to a bot over HTTP.
type BotClient struct {
	baseURL string
	client  *http.Client
}

func NewBotClient(baseURL string, timeout time.Duration) *BotClient {
	return &BotClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *BotClient) Start(ctx context.Context, req *api.StartRequest) error {
	return b.post(ctx, "/start", req, nil)
}

func (b *BotClient) NextOffense(ctx context.Context, view string) (api.OffenseMove, error) {
	var resp api.OffenseMoveResponse
	if err := b.post(ctx, "/next_move", &api.NextMoveRequest{Map: view}, &resp); err != nil {
		return api.OffenseSkip, err
	}
	move, err := resp.Parse()
	if err != nil {
		return api.OffenseSkip, &BotError{Kind: KindParse, Op: "next_move", Err: err}
	}
	return move, nil
}

func (b *BotClient) NextDefense(ctx context.Context, view string) (api.DefenseMove, error) {
	var resp api.DefenseMoveResponse
	if err := b.post(ctx, "/next_move", &api.NextMoveRequest{Map: view}, &resp); err != nil {
		return api.DefenseMove{}, err
	}
	move, err := resp.Parse()
	if err != nil {
		return api.DefenseMove{}, &BotError{Kind: KindParse, Op: "next_move", Err: err}
	}
	return move, nil
}

func (b *BotClient) End(ctx context.Context) error {
	return b.post(ctx, "/end_game", struct{}{}, nil)
}

func (b *BotClient) post(ctx context.Context, path string, body, out interface{}) error {
	op := strings.TrimPrefix(path, "/")
	payload, err := json.Marshal(body)
	if err != nil {
		return &BotError{Kind: KindParse, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &BotError{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return &BotError{Kind: transportKind(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &BotError{Kind: KindStatus, Op: op,
			Err: fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := render.DecodeJSON(resp.Body, out); err != nil {
		return &BotError{Kind: KindParse, Op: op, Err: err}
	}
	return nil
}

func transportKind(err error) ErrorKind {
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		return KindTimeout
	}
	return KindTransport
}

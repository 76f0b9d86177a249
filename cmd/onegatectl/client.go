package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/onegate/internal/gate"
	"github.com/go-resty/resty/v2"
)

var ErrDaemonUnavailable = errors.New("onegatectl: daemon unavailable")

// daemonClient talks to the onegated HTTP surface.
type daemonClient struct {
	http *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

// ReadyStatus mirrors GET /ready.
type ReadyStatus struct {
	Ready       bool   `json:"ready"`
	Mounted     bool   `json:"mounted"`
	WalletReady bool   `json:"wallet_ready"`
	Uptime      string `json:"uptime"`
	Service     string `json:"service"`
	Version     string `json:"version"`
}

func newDaemonClient(baseURL, token string, timeout time.Duration) *daemonClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second)
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}
	client.AddRetryCondition(retryCondition)
	return &daemonClient{http: client}
}

// retryCondition retries transport errors only.
func retryCondition(r *resty.Response, err error) bool {
	return err != nil || r == nil
}

func (c *daemonClient) Open(ctx context.Context, link string) (gate.LinkAccepted, error) {
	var out gate.LinkAccepted
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gate.LinkRequest{URL: link}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/links")
	if err != nil {
		return gate.LinkAccepted{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return gate.LinkAccepted{}, statusError("open", resp, apiErr)
	}
	return out, nil
}

func (c *daemonClient) Normalize(ctx context.Context, link string) (gate.NormalizeResponse, error) {
	var out gate.NormalizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gate.LinkRequest{URL: link}).
		SetResult(&out).
		SetError(&out).
		Post("/links/normalize")
	if err != nil {
		return gate.NormalizeResponse{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusUnprocessableEntity:
		return out, nil
	default:
		return gate.NormalizeResponse{}, statusError("normalize", resp, apiError{Error: out.Error})
	}
}

func (c *daemonClient) Ready(ctx context.Context) (ReadyStatus, error) {
	var out ReadyStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/ready")
	if err != nil {
		return ReadyStatus{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusServiceUnavailable:
		return out, nil
	default:
		return ReadyStatus{}, statusError("ready", resp, apiError{})
	}
}

func (c *daemonClient) Recent(ctx context.Context, limit int) ([]gate.LinkReport, error) {
	var out struct {
		Links []gate.LinkReport `json:"links"`
	}
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		SetError(&apiErr).
		Get("/links/recent")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("recent", resp, apiErr)
	}
	return out.Links, nil
}

func statusError(op string, resp *resty.Response, apiErr apiError) error {
	msg := strings.TrimSpace(apiErr.Error)
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("onegatectl: %s: status %d: %s", op, resp.StatusCode(), msg)
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// FunctionClient posts turn notifications to a cloud-function style HTTP
// endpoint as {"data":{"opponentId":...}}.
type FunctionClient struct {
	url  string
	http *fasthttp.Client

	timeout time.Duration
}

type Option func(*FunctionClient)

func WithTimeout(d time.Duration) Option {
	return func(c *FunctionClient) { c.timeout = d }
}

func NewFunctionClient(functionURL string, opts ...Option) (*FunctionClient, error) {
	if strings.TrimSpace(functionURL) == "" {
		return nil, fmt.Errorf("notification function URL required")
	}
	c := &FunctionClient{
		url:     strings.TrimSpace(functionURL),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type turnPayload struct {
	Data struct {
		OpponentID string `json:"opponentId"`
	} `json:"data"`
}

func (c *FunctionClient) SendTurnNotification(ctx context.Context, opponentID string) error {
	opponentID = strings.TrimSpace(opponentID)
	if opponentID == "" {
		return nil
	}

	var p turnPayload
	p.Data.OpponentID = opponentID
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.url)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return fmt.Errorf("notification function error: status=%d", status)
	}
	return nil
}

func (c *FunctionClient) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

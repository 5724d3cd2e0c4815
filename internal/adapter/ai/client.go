// Package ai adapts the external text-completion service and the deck
// extraction built on top of it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/introweave/matchpipe/internal/adapter/observability"
	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
)

// Client implements domain.CompletionClient against an OpenRouter-compatible
// chat completions API. Transport-level failures are retried with
// exponential backoff; the pipeline above treats the call as a single
// fallible suspension point.
type Client struct {
	cfg config.Config
	hc  *http.Client
	br  *breaker
}

// New constructs a completion client with the configured timeout. Outbound
// provider calls are traced via otelhttp.
func New(cfg config.Config) *Client {
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   cfg.CompletionTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		br: newBreaker(5, 30*time.Second),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one prompt and returns the raw completion text.
func (c *Client) Complete(ctx domain.Context, prompt string) (string, error) {
	if c.cfg.OpenRouterAPIKey == "" {
		return "", fmt.Errorf("%w: OPENROUTER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if !c.br.allow() {
		return "", fmt.Errorf("%w: completion provider circuit open", domain.ErrUpstreamTimeout)
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.BackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	var out string
	op := func() error {
		var err error
		out, err = c.complete(ctx, prompt)
		return err
	}
	start := time.Now()
	err := backoff.Retry(op, backoff.WithContext(expo, ctx))
	observability.AIRequestDuration.WithLabelValues("openrouter", "complete").Observe(time.Since(start).Seconds())
	observability.AIRequestsTotal.WithLabelValues("openrouter", "complete").Inc()
	if err != nil {
		c.br.recordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: completion: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=ai.complete: %w", err)
	}
	c.br.recordSuccess()
	return out, nil
}

func (c *Client) complete(ctx domain.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.CompletionModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenRouterBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		slog.Warn("completion provider retryable failure", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("provider status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("provider status %d: %s", resp.StatusCode, string(raw[:min(len(raw), 256)])))
	}
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if cr.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("provider error: %s", cr.Error.Message))
	}
	if len(cr.Choices) == 0 {
		return "", backoff.Permanent(errors.New("no choices in response"))
	}
	return cr.Choices[0].Message.Content, nil
}

// Package client provides the authenticated outbound HTTP wrapper Mission
// Control uses to call every external collaborator, plus a typed client
// per collaborator. Every call attaches the service bearer token and
// retries a bounded number of times with jittered exponential backoff on
// transient failures, mirroring the retry discipline used elsewhere in
// the pack for outbound calls to an unreliable remote service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
)

// maxAttempts bounds the total number of attempts BaseClient makes (the
// first call plus up to three retries) on transient failures before giving
// up and surfacing CollaboratorUnavailable.
const maxAttempts = 4

// BaseClient is the shared HTTP plumbing every typed collaborator client
// embeds: bearer-token injection, JSON encode/decode, and bounded retry.
type BaseClient struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewBaseClient builds a BaseClient for a collaborator named name, reachable
// at baseURL, authenticating with the given service bearer token.
func NewBaseClient(name, baseURL, token string, timeout time.Duration, log *logger.Logger) *BaseClient {
	return &BaseClient{
		name:       name,
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Do sends a JSON request to path and decodes a JSON response into out (if
// non-nil), retrying transient failures with exponential backoff. A
// non-2xx response with status >= 500 or a network error is treated as
// transient; 4xx responses are not retried.
func (c *BaseClient) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.InternalError("failed to marshal request body", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 3 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := b.NextBackOff()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return errors.CollaboratorTransient(c.name, ctx.Err())
			}
		}

		status, respBody, err := c.doOnce(ctx, method, path, payload)
		if err != nil {
			lastErr = err
			c.log.Warn("collaborator call failed, retrying",
				zap.String("collaborator", c.name), zap.String("path", path),
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if status >= 500 {
			lastErr = fmt.Errorf("status %d", status)
			c.log.Warn("collaborator returned 5xx, retrying",
				zap.String("collaborator", c.name), zap.String("path", path),
				zap.Int("status", status), zap.Int("attempt", attempt+1))
			continue
		}

		if status >= 400 {
			return errors.CollaboratorInvariantViolation(c.name, fmt.Sprintf("status %d calling %s", status, path))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return errors.CollaboratorInvariantViolation(c.name, fmt.Sprintf("malformed response body: %v", err))
			}
		}
		return nil
	}

	return errors.Wrap(errors.CollaboratorUnavailable(c.name), lastErr.Error())
}

func (c *BaseClient) doOnce(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

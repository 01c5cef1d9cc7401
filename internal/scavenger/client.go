// Package scavenger talks to the Scavenger Mine HTTP API.
package scavenger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/scavtools/scavminer/internal/challenge"
	"github.com/scavtools/scavminer/internal/miner"
	"github.com/scavtools/scavminer/internal/store"
)

// RejectionError is a definitive answer from the service: the request
// arrived and was turned down. The message body drives the caller's
// duplicate / invalid-nonce / failed classification. Transport problems
// are returned as ordinary errors instead.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

// Client is a thin wrapper over the two endpoints the miner needs.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given API base, e.g.
// "https://mine.defensio.io/api".
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		logger:  logger.Named("api"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type challengeResponse struct {
	Challenge challenge.Challenge `json:"challenge"`
}

// FetchChallenge returns the service's current challenge.
func (c *Client) FetchChallenge(ctx context.Context) (challenge.Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/challenge", nil)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("build challenge request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("fetch challenge: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("read challenge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return challenge.Challenge{}, fmt.Errorf("challenge endpoint returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded challengeResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return challenge.Challenge{}, fmt.Errorf("decode challenge response: %w", err)
	}
	if decoded.Challenge.ID == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge response missing challenge_id")
	}
	return decoded.Challenge, nil
}

type submitResponse struct {
	Receipt *store.Receipt `json:"crypto_receipt"`
}

// SubmitSolution posts a found nonce. A receipt means success; a
// *RejectionError means the service said no; any other error is a
// transport failure the caller should treat as retryable.
func (c *Client) SubmitSolution(ctx context.Context, wallet, challengeID string, nonce uint64) (*store.Receipt, error) {
	url := fmt.Sprintf("%s/solution/%s/%s/%s", c.baseURL, wallet, challengeID, miner.NonceHex(nonce))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit solution: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.logger.Warn("submission rejected", zap.String("challenge_id", challengeID), zap.String("error", msg))
		return nil, &RejectionError{Message: msg}
	}

	var decoded submitResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return nil, &RejectionError{Message: fmt.Sprintf("failed to parse response: %v", err)}
	}
	if decoded.Receipt == nil {
		// A nominal success without a receipt proves nothing.
		return nil, &RejectionError{Message: "API returned success but no crypto_receipt"}
	}
	return decoded.Receipt, nil
}

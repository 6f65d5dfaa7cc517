// Package client is a thin HTTP client for the decision service. It backs
// the operator subcommands and provides the gate a remote workflow process
// uses to block on human approval.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stepward/stepward/pkg/schema"
)

// PendingDecision is one entry from the pending list.
type PendingDecision struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Config configures a Client.
type Config struct {
	// BaseURL is the decision service root, e.g. "http://localhost:8422".
	BaseURL string
	// HTTPClient overrides the transport. The default carries no request
	// timeout: Decide blocks server-side for the full decision wait bound.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the decision service API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "decision service base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

// Decide requests human approval and blocks until the service answers.
// A 200 response carries the verdict; 408 means the wait bound elapsed.
// Decide implements the engine's decision gate over HTTP.
func (c *Client) Decide(ctx context.Context, message string) (schema.DecisionOutcome, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/human-decision", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"decision request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Approved bool `json:"approved"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeExecution,
				"malformed decision response: %s", err.Error()).WithCause(err)
		}
		if out.Approved {
			return schema.OutcomeApproved, nil
		}
		return schema.OutcomeRejected, nil
	case http.StatusRequestTimeout:
		return schema.OutcomeTimedOut, nil
	default:
		return "", unexpectedStatus(resp)
	}
}

// ListPending fetches the decisions awaiting a human, in request order.
func (c *Client) ListPending(ctx context.Context) ([]PendingDecision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/pending-decisions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"pending list request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}

	var out struct {
		PendingDecisions []PendingDecision `json:"pending_decisions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"malformed pending list response: %s", err.Error()).WithCause(err)
	}
	return out.PendingDecisions, nil
}

// Submit resolves a pending decision. Returns the service's status line.
func (c *Client) Submit(ctx context.Context, decisionID string, approved bool) (string, error) {
	body, err := json.Marshal(map[string]any{
		"decision_id": decisionID,
		"approved":    approved,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/submit-decision", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"submit request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeExecution,
				"malformed submit response: %s", err.Error()).WithCause(err)
		}
		return out.Status, nil
	case http.StatusNotFound:
		return "", schema.NewErrorf(schema.ErrCodeNotFound,
			"decision %s not found", decisionID)
	default:
		return "", unexpectedStatus(resp)
	}
}

// unexpectedStatus folds a non-contract response into a structured error,
// carrying the service's error body when it has one.
func unexpectedStatus(resp *http.Response) error {
	detail := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 1024)); err == nil {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			detail = ": " + body.Error
		}
	}
	return schema.NewErrorf(schema.ErrCodeExecution,
		"decision service returned %d%s", resp.StatusCode, detail)
}

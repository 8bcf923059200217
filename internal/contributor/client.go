package contributor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theblitlabs/sentinel/internal/core/models"
)

// CreateSessionParams is the request body for opening a session.
type CreateSessionParams struct {
	Name              string          `json:"name"`
	Architecture      json.RawMessage `json:"architecture"`
	TotalRounds       int             `json:"total_rounds,omitempty"`
	MinContributors   int             `json:"min_contributors,omitempty"`
	AccuracyThreshold float64         `json:"accuracy_threshold,omitempty"`
}

// CreatedSession is the creation response. It is the only response that
// carries the session data key.
type CreatedSession struct {
	models.Session
	DataKey string `json:"data_key"`
}

// Client talks to the aggregation server's HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client against the given base URL, which should include
// the API prefix (e.g. "http://localhost:8080/api/v1").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*CreatedSession, error) {
	var session CreatedSession
	if err := c.do(ctx, http.MethodPost, "/sessions", params, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%s", sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SubmitContribution(ctx context.Context, sessionID uuid.UUID, submission *Submission) (*models.Contribution, error) {
	var contribution models.Contribution
	path := fmt.Sprintf("/sessions/%s/contributions", sessionID)
	if err := c.do(ctx, http.MethodPost, path, submission, &contribution); err != nil {
		return nil, err
	}
	return &contribution, nil
}

func (c *Client) TriggerAggregation(ctx context.Context, sessionID uuid.UUID, roundNumber int) (*models.AggregationResult, error) {
	var result models.AggregationResult
	path := fmt.Sprintf("/sessions/%s/rounds/%d/aggregate", sessionID, roundNumber)
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

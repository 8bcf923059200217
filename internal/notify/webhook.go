package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theblitlabs/sentinel/internal/core/config"
	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/internal/core/ports"
	"github.com/theblitlabs/sentinel/internal/telemetry"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// WebhookMessage is the envelope delivered to the reward collaborator.
type WebhookMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RoundCompletedPayload summarizes one finished round for downstream reward
// and reputation systems. Outcomes carry the per-contribution verdicts so the
// collaborator can pay accepted contributors and skip excluded ones.
type RoundCompletedPayload struct {
	SessionID        string                       `json:"session_id"`
	SessionName      string                       `json:"session_name"`
	SessionStatus    models.SessionStatus         `json:"session_status"`
	RoundNumber      int                          `json:"round_number"`
	ModelHash        string                       `json:"model_hash"`
	Accuracy         float64                      `json:"accuracy"`
	ContributorCount int                          `json:"contributor_count"`
	CheckpointCID    string                       `json:"checkpoint_cid,omitempty"`
	ResultTx         string                       `json:"result_tx,omitempty"`
	Outcomes         []models.ContributionOutcome `json:"outcomes"`
	CompletedAt      *time.Time                   `json:"completed_at,omitempty"`
}

// WebhookNotifier delivers round completion events over HTTP with linear
// retry backoff.
type WebhookNotifier struct {
	url     string
	retries int
	client  *http.Client
}

var _ ports.RoundNotifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:     cfg.WebhookURL,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) NotifyRoundCompleted(ctx context.Context, session *models.Session, round *models.Round, result *models.AggregationResult) error {
	log := logger.WithComponent("notify")

	payload := RoundCompletedPayload{
		SessionID:        session.ID.String(),
		SessionName:      session.Name,
		SessionStatus:    session.Status,
		RoundNumber:      round.RoundNumber,
		ModelHash:        result.ModelHash,
		Accuracy:         result.Accuracy,
		ContributorCount: result.ContributorCount,
		CheckpointCID:    round.CheckpointCID,
		ResultTx:         round.ResultTx,
		Outcomes:         result.Outcomes,
		CompletedAt:      round.CompletedAt,
	}

	body, err := json.Marshal(WebhookMessage{Type: "round_completed", Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.retries; attempt++ {
		start := time.Now()
		err := n.post(ctx, body)
		if err == nil {
			telemetry.RecordWebhook("round_completed", "delivered", time.Since(start))
			log.Info().
				Str("session_id", payload.SessionID).
				Int("round_number", payload.RoundNumber).
				Int("attempt", attempt).
				Msg("Round completion delivered")
			return nil
		}

		telemetry.RecordWebhook("round_completed", "failed", time.Since(start))
		lastErr = err
		log.Warn().Err(err).
			Str("session_id", payload.SessionID).
			Int("attempt", attempt).
			Msg("Webhook delivery failed")

		if attempt < n.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", n.retries, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook responded with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

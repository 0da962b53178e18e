package notify

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// VerdictInput contains data for a pause/reject verdict notification.
type VerdictInput struct {
	IdentityID string
	Label      string
	Verdict    string // "pause" or "reject"
	Phase      string
	Phi        float64
	Reason     string
}

// DialecticOutcomeInput contains data for a dialectic resolution/failure
// notification.
type DialecticOutcomeInput struct {
	SessionID string
	Topic     string
	Outcome   string // "resolved" or "failed"
	Summary   string
}

// Service delivers governance notifications to Slack.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new notification service. Returns nil if Token or
// Channel is empty — governance keeps running, it just stops announcing.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing against a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyVerdict announces a pause/reject verdict. Fail-open: errors are
// logged, never returned — a dropped Slack message must never block
// governance decisions.
func (s *Service) NotifyVerdict(ctx context.Context, input VerdictInput) {
	if s == nil {
		return
	}
	if input.Verdict != "pause" && input.Verdict != "reject" {
		return
	}

	blocks := BuildVerdictMessage(input.IdentityID, input.Label, input.Verdict, input.Phase, input.Reason, input.Phi, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("failed to send verdict notification",
			"identity_id", input.IdentityID, "verdict", input.Verdict, "error", err)
	}
}

// NotifyDialecticOutcome announces a dialectic review resolution or failure.
// Fail-open, same as NotifyVerdict.
func (s *Service) NotifyDialecticOutcome(ctx context.Context, input DialecticOutcomeInput) {
	if s == nil {
		return
	}

	blocks := BuildDialecticMessage(input.SessionID, input.Topic, input.Outcome, input.Summary, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("failed to send dialectic outcome notification",
			"session_id", input.SessionID, "outcome", input.Outcome, "error", err)
	}
}

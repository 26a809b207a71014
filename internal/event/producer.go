package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hickoryhq/hickory/internal/domain"
	pkgkafka "github.com/hickoryhq/hickory/pkg/kafka"
	"github.com/hickoryhq/hickory/pkg/logger"
)

// Kafka topic constants for authentication events.
const (
	TopicLoginSucceeded     = "hickory.auth.login_succeeded"
	TopicTokenReuseDetected = "hickory.auth.token_reuse_detected"
	TopicTwoFactorEnabled   = "hickory.auth.two_factor_enabled"
	TopicTwoFactorDisabled  = "hickory.auth.two_factor_disabled"
	TopicSessionsRevoked    = "hickory.auth.sessions_revoked"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// LoginSucceededData is the payload for an auth.login_succeeded event.
type LoginSucceededData struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Method     string    `json:"method"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// TokenReuseDetectedData is the payload for an auth.token_reuse_detected event.
type TokenReuseDetectedData struct {
	UserID        string `json:"user_id"`
	TokenID       string `json:"token_id"`
	RevokedTokens int64  `json:"revoked_tokens"`
}

// TwoFactorChangedData is the payload for the two-factor enabled and disabled events.
type TwoFactorChangedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SessionsRevokedData is the payload for an auth.sessions_revoked event.
type SessionsRevokedData struct {
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
	RevokedTokens int64  `json:"revoked_tokens"`
}

// Publisher is the part of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes authentication events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishLoginSucceeded publishes an auth.login_succeeded event. method is
// "password", "totp" or "backup_code".
func (p *Producer) PublishLoginSucceeded(ctx context.Context, user *domain.User, method string, at time.Time) error {
	return p.publish(ctx, TopicLoginSucceeded, user.ID, LoginSucceededData{
		UserID:     user.ID,
		Email:      user.Email,
		Method:     method,
		LoggedInAt: at,
	})
}

// PublishTokenReuseDetected publishes an auth.token_reuse_detected event.
func (p *Producer) PublishTokenReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error {
	return p.publish(ctx, TopicTokenReuseDetected, userID, TokenReuseDetectedData{
		UserID:        userID,
		TokenID:       tokenID,
		RevokedTokens: revoked,
	})
}

// PublishTwoFactorEnabled publishes an auth.two_factor_enabled event.
func (p *Producer) PublishTwoFactorEnabled(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicTwoFactorEnabled, user.ID, TwoFactorChangedData{UserID: user.ID, Email: user.Email})
}

// PublishTwoFactorDisabled publishes an auth.two_factor_disabled event.
func (p *Producer) PublishTwoFactorDisabled(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicTwoFactorDisabled, user.ID, TwoFactorChangedData{UserID: user.ID, Email: user.Email})
}

// PublishSessionsRevoked publishes an auth.sessions_revoked event.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, userID, reason string, revoked int64) error {
	return p.publish(ctx, TopicSessionsRevoked, userID, SessionsRevokedData{
		UserID:        userID,
		Reason:        reason,
		RevokedTokens: revoked,
	})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published auth event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}

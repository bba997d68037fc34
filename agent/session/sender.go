package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/a2aengine/config"
	"github.com/BaSui01/a2aengine/internal/pool"
	"github.com/BaSui01/a2aengine/internal/tlsutil"
	"github.com/BaSui01/a2aengine/types"
)

// PushNotificationSender delivers a terminal task to a registered webhook.
type PushNotificationSender interface {
	Send(ctx context.Context, cfg *types.PushNotificationConfig, task *types.Task) error
}

// NotificationTokenHeader carries the token the client registered with the config.
const NotificationTokenHeader = "X-A2A-Notification-Token"

// bearerScheme is the authentication scheme that requests a signed token.
const bearerScheme = "Bearer"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// DeliveryError reports a webhook that answered with a non-2xx status.
type DeliveryError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %s returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// WebhookSenderConfig configures WebhookSender.
type WebhookSenderConfig struct {
	// Client defaults to a TLS-hardened client with Timeout.
	Client *http.Client

	// Timeout bounds each request.
	Timeout time.Duration

	// RateLimit is the outbound request rate per second; zero disables limiting.
	RateLimit float64
	Burst     int

	// SigningKey signs an HS256 bearer token for configs listing the Bearer
	// scheme. Empty falls back to the config's own credentials.
	SigningKey string

	// Issuer is the iss claim of signed tokens.
	Issuer string
}

// WebhookSenderConfigFrom builds the sender config from the notification section.
func WebhookSenderConfigFrom(cfg config.NotificationConfig) WebhookSenderConfig {
	return WebhookSenderConfig{
		Timeout:    cfg.SendTimeout,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
		SigningKey: cfg.SigningKey,
		Issuer:     "a2aengine",
	}
}

// WebhookSender posts the task as JSON to the config URL.
type WebhookSender struct {
	client     *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	signingKey []byte
	issuer     string

	logger *zap.Logger
	now    func() time.Time
}

var _ PushNotificationSender = (*WebhookSender)(nil)

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(cfg WebhookSenderConfig, opts ...Option) *WebhookSender {
	o := buildOptions(opts)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = tlsutil.WebhookClient(timeout)
	}

	limit, burst := rateLimit(cfg.RateLimit, cfg.Burst)

	return &WebhookSender{
		client:     client,
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, burst),
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		logger:     o.logger.With(zap.String("component", "webhook_sender")),
		now:        o.now,
	}
}

// SetRateLimit changes the outbound rate while sends are in flight.
// perSecond <= 0 disables limiting.
func (s *WebhookSender) SetRateLimit(perSecond float64, burst int) {
	limit, burst := rateLimit(perSecond, burst)
	s.limiter.SetBurst(burst)
	s.limiter.SetLimit(limit)
}

func rateLimit(perSecond float64, burst int) (rate.Limit, int) {
	if perSecond <= 0 {
		return rate.Inf, 0
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.Limit(perSecond), burst
}

// Send delivers task to cfg.URL. Any non-2xx answer is a *DeliveryError.
func (s *WebhookSender) Send(ctx context.Context, cfg *types.PushNotificationConfig, task *types.Task) error {
	if cfg == nil || cfg.URL == "" {
		return fmt.Errorf("push notification config has no url")
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	buf := pool.BufferPool.Get()
	defer pool.BufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(task); err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "a2aengine-push-notifier")
	if cfg.Token != "" {
		req.Header.Set(NotificationTokenHeader, cfg.Token)
	}
	if err := s.authorize(req, cfg, task); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{URL: cfg.URL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("notification delivered",
		zap.String("task_id", task.ID),
		zap.String("config_id", cfg.ID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

func (s *WebhookSender) authorize(req *http.Request, cfg *types.PushNotificationConfig, task *types.Task) error {
	if !cfg.Authentication.HasScheme(bearerScheme) {
		return nil
	}

	if len(s.signingKey) == 0 {
		if cfg.Authentication.Credentials != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.Authentication.Credentials)
		}
		return nil
	}

	token, err := s.signToken(cfg, task)
	if err != nil {
		return fmt.Errorf("failed to sign notification token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// notificationClaims are the claims of a signed notification token.
type notificationClaims struct {
	TaskID   string `json:"task_id"`
	ConfigID string `json:"config_id,omitempty"`
	jwt.RegisteredClaims
}

func (s *WebhookSender) signToken(cfg *types.PushNotificationConfig, task *types.Task) (string, error) {
	now := s.now()
	claims := notificationClaims{
		TaskID:   task.ID,
		ConfigID: cfg.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   task.ID,
			Audience:  jwt.ClaimStrings{cfg.URL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

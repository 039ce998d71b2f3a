// Package analytics forwards conversion events to the Meta Conversions API.
// Every call is best-effort from the caller's point of view: handlers wrap
// these methods so a Meta outage never fails a registration or payment.
package analytics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/config"
	"github.com/fairdinkum/course-backend/internal/models"
)

// UserData identifies the user an event belongs to. Email and phone are
// SHA-256 hashed before leaving the process.
type UserData struct {
	Email           string
	Phone           string
	ClientUserAgent string
}

// Client calls the Meta Conversions API over HTTP with a bounded timeout.
type Client struct {
	pixelID       string
	accessToken   string
	testEventCode string
	baseURL       string
	http          *http.Client
	logger        *zap.Logger
}

// NewClient creates a Conversions API client. With empty credentials the
// client is disabled and every send is a logged no-op.
func NewClient(cfg config.Meta, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		pixelID:       cfg.PixelID,
		accessToken:   cfg.AccessToken,
		testEventCode: cfg.TestEventCode,
		baseURL:       fmt.Sprintf("https://graph.facebook.com/%s/%s/events", cfg.APIVersion, cfg.PixelID),
		http:          &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// SetBaseURL overrides the API endpoint; used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type event struct {
	EventName      string                 `json:"event_name"`
	EventTime      int64                  `json:"event_time"`
	ActionSource   string                 `json:"action_source"`
	UserData       map[string]interface{} `json:"user_data"`
	EventID        string                 `json:"event_id"`
	EventSourceURL string                 `json:"event_source_url,omitempty"`
	CustomData     map[string]interface{} `json:"custom_data,omitempty"`
}

type payload struct {
	Data          []event `json:"data"`
	AccessToken   string  `json:"access_token"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

// CompleteRegistration sends a CompleteRegistration event tagged with the
// registration type, keyed by registration id for deduplication.
func (c *Client) CompleteRegistration(ctx context.Context, user UserData, registrationID, registrationType, sourceURL string) error {
	contentName := "AI Automation Mastery Course"
	if registrationType == models.TypeLivestream {
		contentName = "AI Tax Automation Livestream"
	}
	eventID := ""
	if registrationID != "" {
		eventID = "registration_" + registrationID
	}
	return c.send(ctx, "CompleteRegistration", user, eventID, sourceURL, map[string]interface{}{
		"registration_type": registrationType,
		"content_name":      contentName,
		"content_category":  registrationType,
	})
}

// Purchase sends a Purchase event with value and currency, keyed by order id
// for deduplication.
func (c *Client) Purchase(ctx context.Context, user UserData, value float64, currency, orderID, sourceURL string) error {
	eventID := ""
	if orderID != "" {
		eventID = "purchase_" + orderID
	}
	return c.send(ctx, "Purchase", user, eventID, sourceURL, map[string]interface{}{
		"currency": currency,
		"value":    value,
	})
}

func (c *Client) send(ctx context.Context, eventName string, user UserData, eventID, sourceURL string, customData map[string]interface{}) error {
	if c.pixelID == "" || c.accessToken == "" {
		c.logger.Debug("meta conversions disabled, dropping event", zap.String("event", eventName))
		return nil
	}
	if eventID == "" {
		eventID = uuid.New().String()
	}

	userData := map[string]interface{}{}
	if user.Email != "" {
		userData["em"] = []string{hashData(user.Email)}
	}
	if user.Phone != "" {
		userData["ph"] = []string{hashData(user.Phone)}
	}
	if user.ClientUserAgent != "" {
		userData["client_user_agent"] = user.ClientUserAgent
	}

	body, err := json.Marshal(payload{
		Data: []event{{
			EventName:      eventName,
			EventTime:      time.Now().Unix(),
			ActionSource:   "website",
			UserData:       userData,
			EventID:        eventID,
			EventSourceURL: sourceURL,
			CustomData:     customData,
		}},
		AccessToken:   c.accessToken,
		TestEventCode: c.testEventCode,
	})
	if err != nil {
		return fmt.Errorf("marshal conversions payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s event: %w", eventName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("conversions api status %d: %s", resp.StatusCode, string(b))
	}

	c.logger.Info("conversions event sent",
		zap.String("event", eventName),
		zap.String("event_id", eventID),
	)
	return nil
}

// hashData lower-cases and SHA-256 hashes a value per Meta's user-data
// privacy requirements.
func hashData(v string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}

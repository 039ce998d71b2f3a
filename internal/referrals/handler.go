// Package referrals records referral-code click events for campaign
// attribution. Events are append-only audit records.
package referrals

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/pkg/response"
)

const (
	maxFieldLen     = 100
	maxUserAgentLen = 200
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RecordRequest is the body for POST /referrals/events.
type RecordRequest struct {
	EventName    string `json:"event_name"`
	ReferralCode string `json:"referral_code"`
}

// Handler handles referral event endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a referrals handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Record handles POST /referrals/events.
func (h *Handler) Record(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid_request", "invalid JSON in request body")
		return
	}
	if req.EventName == "" || req.ReferralCode == "" {
		response.BadRequest(c, "missing_required_field", "event_name and referral_code are required")
		return
	}
	if len(req.EventName) > maxFieldLen || len(req.ReferralCode) > maxFieldLen {
		response.BadRequest(c, "field_too_long", "Field values too long")
		return
	}
	if !codePattern.MatchString(req.ReferralCode) {
		response.BadRequest(c, "invalid_referral_code", "Invalid referral code format")
		return
	}

	userAgent := truncate(c.GetHeader("User-Agent"), maxUserAgentLen)

	ev := &models.ReferralEvent{
		EventID:      uuid.New().String(),
		EventName:    req.EventName,
		ReferralCode: req.ReferralCode,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		UserAgent:    userAgent,
		SourceIP:     c.ClientIP(),
	}
	if err := h.store.Put(c.Request.Context(), ev); err != nil {
		h.logger.Error("record referral event failed", zap.Error(err),
			zap.String("referral_code", req.ReferralCode))
		response.Internal(c)
		return
	}

	h.logger.Info("referral event recorded",
		zap.String("event_id", ev.EventID),
		zap.String("referral_code", ev.ReferralCode))
	response.OK(c, gin.H{
		"message":  "Referral event recorded successfully",
		"event_id": ev.EventID,
	})
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ListByCode handles GET /referrals/:code/events (admin).
func (h *Handler) ListByCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" || len(code) > maxFieldLen || !codePattern.MatchString(code) {
		response.BadRequest(c, "invalid_referral_code", "Invalid referral code format")
		return
	}
	events, err := h.store.ListByCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("list referral events failed", zap.Error(err), zap.String("referral_code", code))
		response.Internal(c)
		return
	}
	response.OK(c, gin.H{"referral_code": code, "events": events})
}

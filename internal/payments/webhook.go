// Package payments reconciles asynchronous Stripe payment notifications
// with previously created registration records.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/internal/analytics"
	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/internal/registrations"
	"github.com/fairdinkum/course-backend/pkg/besteffort"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// Notifier sends payment email. Implemented by the SES mailer.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, name, email, registrationID string, amount float64) error
	SendAdminPaymentNotice(ctx context.Context, name, email, registrationID, sessionID string, amount float64) error
}

// EventSink forwards purchase analytics events.
type EventSink interface {
	Purchase(ctx context.Context, user analytics.UserData, value float64, currency, orderID, sourceURL string) error
}

// Deduper remembers Stripe event ids so provider retries of an
// already-processed notification are acknowledged without reprocessing.
// An event id is marked only after the payment is committed; a failed
// delivery must stay retryable.
type Deduper interface {
	// Seen reports whether the event id was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records the event id as processed.
	Mark(ctx context.Context, eventID string) error
}

// WebhookHandler receives signed checkout.session.completed notifications
// and transitions the matching registration from pending to paid.
type WebhookHandler struct {
	store         registrations.Store
	mail          Notifier
	events        EventSink
	dedup         Deduper // nil disables event-id dedup
	secret        string
	defaultCourse string
	logger        *zap.Logger
}

// NewWebhookHandler creates a Stripe webhook handler.
func NewWebhookHandler(store registrations.Store, mail Notifier, events EventSink, dedup Deduper, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		store:         store,
		mail:          mail,
		events:        events,
		dedup:         dedup,
		secret:        webhookSecret,
		defaultCourse: models.DefaultCourseID,
		logger:        logger,
	}
}

// HandleWebhook handles POST /webhooks/stripe. The signature is verified
// before anything in the payload is trusted; no mutation happens on
// verification failure.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "invalid_payload", "Invalid payload")
		return
	}

	// The endpoint may be pinned to a different Stripe API version than the
	// library; the version mismatch check would reject every legitimate
	// notification in that case.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			h.logger.Warn("webhook signature verification failed", zap.Error(err))
			response.BadRequest(c, "invalid_signature", "Invalid signature")
			return
		}
		h.logger.Warn("webhook payload rejected", zap.Error(err))
		response.BadRequest(c, "invalid_payload", "Invalid payload")
		return
	}

	if event.Type != "checkout.session.completed" {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	if h.dedup != nil {
		seen, err := h.dedup.Seen(ctx, event.ID)
		if err != nil {
			// Dedup is an optimization; resolution by registration_id is
			// already idempotent, so keep processing.
			h.logger.Warn("webhook dedup unavailable", zap.Error(err), zap.String("event_id", event.ID))
		} else if seen {
			h.logger.Info("duplicate webhook event skipped", zap.String("event_id", event.ID))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	if event.Data == nil {
		h.logger.Warn("webhook event carries no data", zap.String("event_id", event.ID))
		response.BadRequest(c, "invalid_payload", "Invalid payload")
		return
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Warn("webhook session payload malformed", zap.Error(err), zap.String("event_id", event.ID))
		response.BadRequest(c, "invalid_payload", "Invalid payload")
		return
	}

	rec, err := h.resolve(ctx, &session)
	if err != nil {
		h.logger.Error("registration resolution failed", zap.Error(err), zap.String("event_id", event.ID))
		response.Internal(c)
		return
	}
	if rec == nil {
		h.logger.Warn("no registration found for payment",
			zap.String("event_id", event.ID),
			zap.String("client_reference_id", session.ClientReferenceID))
		response.NotFound(c, "registration_not_found", "No registration found for this payment")
		return
	}

	details := models.PaymentDetails{
		Amount:          float64(session.AmountTotal) / 100, // minor to major units
		Currency:        strings.ToUpper(string(session.Currency)),
		StripeSessionID: session.ID,
		PaymentDate:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.MarkPaid(ctx, rec.CourseID, rec.Email, details); err != nil {
		h.logger.Error("mark paid failed", zap.Error(err),
			zap.String("registration_id", rec.RegistrationID))
		response.Internal(c)
		return
	}
	if h.dedup != nil {
		if err := h.dedup.Mark(ctx, event.ID); err != nil {
			h.logger.Warn("webhook dedup mark failed", zap.Error(err), zap.String("event_id", event.ID))
		}
	}

	h.logger.Info("payment reconciled",
		zap.String("registration_id", rec.RegistrationID),
		zap.String("course_id", rec.CourseID),
		zap.Float64("amount", details.Amount))

	name, email, regID := rec.Name, rec.Email, rec.RegistrationID
	besteffort.Run(ctx, h.logger, "payment confirmation email", func(ctx context.Context) error {
		return h.mail.SendPaymentConfirmation(ctx, name, email, regID, details.Amount)
	})
	besteffort.Run(ctx, h.logger, "admin payment notice", func(ctx context.Context) error {
		return h.mail.SendAdminPaymentNotice(ctx, name, email, regID, details.StripeSessionID, details.Amount)
	})
	besteffort.Run(ctx, h.logger, "meta purchase", func(ctx context.Context) error {
		return h.events.Purchase(ctx, analytics.UserData{Email: email}, details.Amount, details.Currency, regID, "")
	})

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// resolve matches a checkout session to a registration record. The
// client_reference_id carries the registration id and is authoritative; the
// billing-email scan is a legacy fallback for integrations that predate it.
func (h *WebhookHandler) resolve(ctx context.Context, session *stripe.CheckoutSession) (*models.RegistrationRecord, error) {
	if session.ClientReferenceID != "" {
		return h.store.GetByRegistrationID(ctx, session.ClientReferenceID)
	}

	email := ""
	if session.CustomerDetails != nil {
		email = strings.ToLower(strings.TrimSpace(session.CustomerDetails.Email))
	}
	if email == "" {
		return nil, nil
	}

	h.logger.Warn("resolving payment via legacy email fallback", zap.String("session_id", session.ID))
	recs, err := h.store.FindPendingByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].CourseID == h.defaultCourse {
			return &recs[i], nil
		}
	}
	return nil, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

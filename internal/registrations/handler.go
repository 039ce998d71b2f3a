package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/internal/analytics"
	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/pkg/besteffort"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// EventSink forwards registration analytics events. Implemented by the Meta
// Conversions client; faked in tests.
type EventSink interface {
	CompleteRegistration(ctx context.Context, user analytics.UserData, registrationID, registrationType, sourceURL string) error
}

// Notifier sends registration email. Implemented by the SES mailer.
type Notifier interface {
	SendLivestreamConfirmation(ctx context.Context, name, email, registrationID string) error
	SendAdminRegistrationNotice(ctx context.Context, name, email, registrationID, registrationType string) error
}

// RegisterRequest is the body for POST /registrations.
type RegisterRequest struct {
	Email               string `json:"email"`
	CourseID            string `json:"course_id"`
	ApplicantID         string `json:"applicant_id"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	Company             string `json:"company"`
	JobTitle            string `json:"job_title"`
	AutomationInterest  string `json:"automation_interest"`
	DietaryRequirements string `json:"dietary_requirements"`
	ReferralSource      string `json:"referral_source"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	store  Store
	events EventSink
	mail   Notifier
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(store Store, events EventSink, mail Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, mail: mail, logger: logger}
}

// Register handles POST /registrations. Creates a pending registration, or
// overwrites an existing one unless it is already paid.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid_request", "invalid JSON in request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		response.BadRequest(c, "missing_required_field", "email is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.BadRequest(c, "missing_required_field", "name is required")
		return
	}
	if strings.TrimSpace(req.DietaryRequirements) == "" {
		h.logger.Warn("missing required field", zap.String("field", "dietary_requirements"))
		response.BadRequest(c, "missing_required_field", "dietary_requirements is required")
		return
	}
	if !models.IsValidCourseID(req.CourseID) {
		h.logger.Warn("invalid course_id", zap.String("course_id", req.CourseID))
		response.BadRequest(c, "invalid_course_id", "Invalid course ID provided")
		return
	}

	ctx := c.Request.Context()

	// Registrations arriving from an approved application carry the
	// application's id; the application must exist, be approved (pending)
	// and belong to the same email.
	if req.ApplicantID != "" {
		application, err := h.store.GetByRegistrationID(ctx, req.ApplicantID)
		if err != nil {
			h.logger.Error("application lookup failed", zap.Error(err), zap.String("applicant_id", req.ApplicantID))
			response.Internal(c)
			return
		}
		if application == nil {
			response.BadRequest(c, "invalid_application", "Application not found or invalid")
			return
		}
		if application.PaymentStatus != models.StatusPending {
			h.logger.Warn("application not approved for registration",
				zap.String("applicant_id", req.ApplicantID),
				zap.String("status", application.PaymentStatus))
			response.BadRequest(c, "invalid_application_status", "Application is not approved for registration")
			return
		}
		if application.Email != email {
			response.BadRequest(c, "email_mismatch", "Email does not match the application")
			return
		}
	}

	existing, err := h.store.Get(ctx, req.CourseID, email)
	if err != nil {
		h.logger.Error("registration lookup failed", zap.Error(err),
			zap.String("course_id", req.CourseID))
		response.Internal(c)
		return
	}
	if existing != nil {
		if existing.PaymentStatus == models.StatusPaid {
			h.logger.Info("duplicate registration attempt for paid record",
				zap.String("course_id", req.CourseID))
			response.BadRequest(c, "email_already_registered",
				"This email has already been registered and paid for this course")
			return
		}
		h.logger.Info("overwriting unpaid registration", zap.String("course_id", req.CourseID))
	}

	referralSource := req.ReferralSource
	if referralSource == "" {
		referralSource = "direct"
	}
	rec := &models.RegistrationRecord{
		CourseID:            req.CourseID,
		Email:               email,
		RegistrationID:      uuid.New().String(),
		Name:                strings.TrimSpace(req.Name),
		Phone:               req.Phone,
		Company:             req.Company,
		JobTitle:            req.JobTitle,
		AutomationInterest:  req.AutomationInterest,
		DietaryRequirements: req.DietaryRequirements,
		ReferralSource:      referralSource,
		RegistrationType:    models.TypeCourse,
		PaymentStatus:       models.StatusPending,
		RegistrationDate:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.Put(ctx, rec); err != nil {
		h.logger.Error("create registration failed", zap.Error(err),
			zap.String("course_id", req.CourseID))
		response.Internal(c)
		return
	}

	h.fireCompleteRegistration(c, rec, req.Phone)

	h.logger.Info("registration created",
		zap.String("registration_id", rec.RegistrationID),
		zap.String("course_id", rec.CourseID))
	response.OK(c, gin.H{
		"message":         "Registration successful",
		"registration_id": rec.RegistrationID,
	})
}

// fireCompleteRegistration forwards the analytics event after a successful
// write. Failures are logged, never surfaced.
func (h *Handler) fireCompleteRegistration(c *gin.Context, rec *models.RegistrationRecord, phone string) {
	user := analytics.UserData{
		Email:           rec.Email,
		Phone:           phone,
		ClientUserAgent: c.GetHeader("User-Agent"),
	}
	sourceURL := c.GetHeader("Referer")
	regID, regType := rec.RegistrationID, rec.RegistrationType
	besteffort.Run(c.Request.Context(), h.logger, "meta complete_registration", func(ctx context.Context) error {
		return h.events.CompleteRegistration(ctx, user, regID, regType, sourceURL)
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

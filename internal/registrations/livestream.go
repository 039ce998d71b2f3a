package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/pkg/besteffort"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// LivestreamRequest is the body for POST /livestream/register. The type
// discriminator defaults to livestream; "application" routes the submission
// into the pre-application workflow instead.
type LivestreamRequest struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	RegistrationType   string `json:"registration_type"`
	Phone              string `json:"phone"`
	Company            string `json:"company"`
	JobTitle           string `json:"job_title"`
	AutomationInterest string `json:"automation_interest"`
}

// RegisterFree handles POST /livestream/register: zero-cost livestream
// signups and course applications. Unlike the paid-course path, an existing
// record for the same (course, email) is a hard conflict here, never an
// overwrite.
func (h *Handler) RegisterFree(c *gin.Context) {
	var req LivestreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid_request", "invalid JSON in request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" {
		response.BadRequest(c, "missing_required_field", "name is required")
		return
	}
	if email == "" {
		response.BadRequest(c, "missing_required_field", "email is required")
		return
	}

	regType := req.RegistrationType
	if regType == "" {
		regType = models.TypeLivestream
	}

	var courseID, status string
	switch regType {
	case models.TypeLivestream:
		courseID = models.LivestreamCourseID
		status = models.StatusPaid // free event, nothing left to pay
	case models.TypeApplication:
		courseID = models.DefaultCourseID
		status = models.StatusApplied
	default:
		response.BadRequest(c, "invalid_registration_type", "registration_type must be livestream or application")
		return
	}

	ctx := c.Request.Context()
	existing, err := h.store.Get(ctx, courseID, email)
	if err != nil {
		h.logger.Error("registration lookup failed", zap.Error(err), zap.String("course_id", courseID))
		response.Internal(c)
		return
	}
	if existing != nil {
		h.logger.Info("duplicate free registration attempt",
			zap.String("course_id", courseID),
			zap.String("registration_type", regType))
		response.Conflict(c, "registration_already_exists", "A registration already exists for this email")
		return
	}

	rec := &models.RegistrationRecord{
		CourseID:           courseID,
		Email:              email,
		RegistrationID:     uuid.New().String(),
		Name:               name,
		Phone:              req.Phone,
		Company:            req.Company,
		JobTitle:           req.JobTitle,
		AutomationInterest: req.AutomationInterest,
		RegistrationType:   regType,
		PaymentStatus:      status,
		PaymentAmount:      0,
		RegistrationDate:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.Put(ctx, rec); err != nil {
		h.logger.Error("create free registration failed", zap.Error(err), zap.String("course_id", courseID))
		response.Internal(c)
		return
	}
	h.logger.Info("free registration created",
		zap.String("registration_id", rec.RegistrationID),
		zap.String("registration_type", regType))

	regID := rec.RegistrationID
	if regType == models.TypeLivestream {
		besteffort.Run(ctx, h.logger, "livestream confirmation email", func(ctx context.Context) error {
			return h.mail.SendLivestreamConfirmation(ctx, name, email, regID)
		})
	}
	besteffort.Run(ctx, h.logger, "admin registration notice", func(ctx context.Context) error {
		return h.mail.SendAdminRegistrationNotice(ctx, name, email, regID, regType)
	})
	h.fireCompleteRegistration(c, rec, req.Phone)

	response.OK(c, gin.H{
		"message":         "Registration successful",
		"registration_id": rec.RegistrationID,
	})
}

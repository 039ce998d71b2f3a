// Package applications implements the approval step of the pre-application
// workflow: an operator flips an application from applied to pending, which
// unlocks the normal registration and payment path for the applicant.
package applications

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/internal/models"
	"github.com/fairdinkum/course-backend/internal/registrations"
	"github.com/fairdinkum/course-backend/pkg/besteffort"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// Notifier sends the acceptance email. Implemented by the SES mailer.
type Notifier interface {
	SendApplicationAcceptance(ctx context.Context, name, email, applicationID, registrationURL string) error
}

// Handler handles application approval.
type Handler struct {
	store   registrations.Store
	mail    Notifier
	baseURL string
	logger  *zap.Logger
}

// NewHandler creates an applications handler. baseURL is the public site the
// prefilled registration link points at.
func NewHandler(store registrations.Store, mail Notifier, baseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, mail: mail, baseURL: baseURL, logger: logger}
}

// Approve handles POST /applications/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	applicationID := c.Param("id")
	ctx := c.Request.Context()

	application, err := h.store.GetByRegistrationID(ctx, applicationID)
	if err != nil {
		h.logger.Error("application lookup failed", zap.Error(err), zap.String("application_id", applicationID))
		response.Internal(c)
		return
	}
	if application == nil {
		response.NotFound(c, "application_not_found", "Application not found")
		return
	}
	if application.PaymentStatus != models.StatusApplied {
		h.logger.Warn("approval rejected: wrong status",
			zap.String("application_id", applicationID),
			zap.String("status", application.PaymentStatus))
		response.BadRequest(c, "invalid_application_status", "Application is not in applied status")
		return
	}

	approvalDate := time.Now().UTC().Format(time.RFC3339)
	if err := h.store.Approve(ctx, application.CourseID, application.Email, approvalDate); err != nil {
		h.logger.Error("approve application failed", zap.Error(err), zap.String("application_id", applicationID))
		response.Internal(c)
		return
	}
	h.logger.Info("application approved", zap.String("application_id", applicationID))

	registrationURL := h.registrationURL(application)
	name, email := application.Name, application.Email
	besteffort.Run(ctx, h.logger, "acceptance email", func(ctx context.Context) error {
		return h.mail.SendApplicationAcceptance(ctx, name, email, applicationID, registrationURL)
	})

	response.OK(c, gin.H{
		"message":          "Application approved successfully",
		"application_id":   applicationID,
		"registration_url": registrationURL,
	})
}

// registrationURL builds a registration link prefilled from the application,
// so the applicant only confirms details instead of retyping them.
func (h *Handler) registrationURL(application *models.RegistrationRecord) string {
	firstName, lastName := splitName(application.Name)
	params := url.Values{}
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("applicant_id", application.RegistrationID)
	set("email", application.Email)
	set("firstName", firstName)
	set("lastName", lastName)
	set("phone", application.Phone)
	set("company", application.Company)
	set("jobTitle", application.JobTitle)
	set("automationInterest", application.AutomationInterest)
	return h.baseURL + "/register.html?" + params.Encode()
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

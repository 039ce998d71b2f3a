// Package mailer sends transactional email through SES. Callers treat every
// send as best-effort; a failed email never fails the enclosing request.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESAPI is the subset of the SES client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Mailer sends registration and payment email from a fixed sender address.
type Mailer struct {
	client SESAPI
	from   string
	admin  string
	logger *zap.Logger
}

// New creates a mailer. admin may be empty, in which case operator notices
// are dropped with a logged warning.
func New(client SESAPI, from, admin string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{client: client, from: from, admin: admin, logger: logger}
}

func (m *Mailer) send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if m.from == "" {
		return errors.New("mailer: sender address not configured")
	}
	body := &types.Body{
		Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
	}
	if htmlBody != "" {
		body.Html = &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")}
	}
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func (m *Mailer) sendAdmin(ctx context.Context, subject, textBody string) error {
	if m.admin == "" {
		return errors.New("mailer: admin address not configured")
	}
	return m.send(ctx, m.admin, subject, textBody, "")
}

// SendPaymentConfirmation emails the registrant a receipt after a successful
// payment.
func (m *Mailer) SendPaymentConfirmation(ctx context.Context, name, email, registrationID string, amount float64) error {
	subject, text := paymentConfirmationBody(name, registrationID, amount)
	return m.send(ctx, email, subject, text, "")
}

// SendAdminPaymentNotice notifies the operator about a completed payment.
func (m *Mailer) SendAdminPaymentNotice(ctx context.Context, name, email, registrationID, sessionID string, amount float64) error {
	subject, text := adminPaymentBody(name, email, registrationID, sessionID, amount)
	return m.sendAdmin(ctx, subject, text)
}

// SendLivestreamConfirmation welcomes a livestream registrant.
func (m *Mailer) SendLivestreamConfirmation(ctx context.Context, name, email, registrationID string) error {
	subject, text, html := livestreamConfirmationBody(name, registrationID)
	return m.send(ctx, email, subject, text, html)
}

// SendAdminRegistrationNotice notifies the operator about a new free
// registration or application.
func (m *Mailer) SendAdminRegistrationNotice(ctx context.Context, name, email, registrationID, registrationType string) error {
	subject, text := adminRegistrationBody(name, email, registrationID, registrationType)
	return m.sendAdmin(ctx, subject, text)
}

// SendApplicationAcceptance emails an approved applicant their prefilled
// registration link.
func (m *Mailer) SendApplicationAcceptance(ctx context.Context, name, email, applicationID, registrationURL string) error {
	subject, text, html := applicationAcceptanceBody(name, applicationID, registrationURL)
	return m.send(ctx, email, subject, text, html)
}

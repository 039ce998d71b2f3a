package mailer

import (
	"fmt"
	"time"
)

func paymentConfirmationBody(name, registrationID string, amount float64) (subject, text string) {
	subject = "Course Registration Confirmed"
	text = fmt.Sprintf(`Hi %s,

Your payment has been processed successfully!

Registration ID: %s
Amount Paid: $%.2f

Thank you for registering!`, name, registrationID, amount)
	return subject, text
}

func adminPaymentBody(name, email, registrationID, sessionID string, amount float64) (subject, text string) {
	subject = "New Course Registration Payment"
	text = fmt.Sprintf(`New payment received:

Name: %s
Email: %s
Registration ID: %s
Amount: $%.2f
Stripe Session ID: %s`, name, email, registrationID, amount, sessionID)
	return subject, text
}

func livestreamConfirmationBody(name, registrationID string) (subject, text, html string) {
	subject = "Welcome to the AI Tax Automation Livestream!"
	text = fmt.Sprintf(`Hi %s,

Thank you for registering for our AI Tax Automation Livestream!

Registration Details:
- Registration ID: %s
- Format: Online Livestream
- Cost: FREE

What's Next?
We'll send you the livestream link and access details closer to the event date. Make sure to check your email regularly.

If you have any questions, feel free to reach out to us.

Best regards,
The AI Automation Team`, name, registrationID)
	html = fmt.Sprintf(`<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #000; color: #fff; padding: 30px; text-align: center;">
    <h1 style="margin: 0; font-size: 24px;">AI Tax Automation Livestream</h1>
  </div>
  <div style="padding: 30px;">
    <p>Hi %s,</p>
    <p>Thank you for registering for our <strong>AI Tax Automation Livestream</strong>!</p>
    <div style="background-color: #f8f8f8; border-left: 4px solid #000; padding: 20px; margin: 20px 0;">
      <p style="margin: 5px 0;"><strong>Registration ID:</strong> %s</p>
      <p style="margin: 5px 0;"><strong>Format:</strong> Online Livestream</p>
      <p style="margin: 5px 0;"><strong>Cost:</strong> FREE</p>
    </div>
    <p>We'll send you the livestream link and access details closer to the event date.</p>
    <p>Best regards,<br>The AI Automation Team</p>
  </div>
</body>
</html>`, name, registrationID)
	return subject, text, html
}

func adminRegistrationBody(name, email, registrationID, registrationType string) (subject, text string) {
	subject = fmt.Sprintf("[%s Registration] New signup from %s", registrationType, name)
	text = fmt.Sprintf(`New %s registration

Registration Details:
- Name: %s
- Email: %s
- Registration ID: %s
- Registration Time: %s

This is an automated notification.`, registrationType, name, email, registrationID, time.Now().UTC().Format(time.RFC3339))
	return subject, text
}

func applicationAcceptanceBody(name, applicationID, registrationURL string) (subject, text, html string) {
	subject = "Your Application Has Been Accepted!"
	text = fmt.Sprintf(`Hi %s,

Great news! Your application has been accepted.

Application ID: %s

Complete your registration here (your details are prefilled):
%s

We look forward to seeing you in the course.

Best regards,
The AI Automation Team`, name, applicationID, registrationURL)
	html = fmt.Sprintf(`<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #000; color: #fff; padding: 30px; text-align: center;">
    <h1 style="margin: 0; font-size: 24px;">Application Accepted</h1>
  </div>
  <div style="padding: 30px;">
    <p>Hi %s,</p>
    <p>Great news! Your application has been accepted.</p>
    <p><strong>Application ID:</strong> %s</p>
    <p><a href="%s" style="display: inline-block; background-color: #000; color: #fff; padding: 12px 24px; text-decoration: none;">Complete Your Registration</a></p>
    <p>Best regards,<br>The AI Automation Team</p>
  </div>
</body>
</html>`, name, applicationID, registrationURL)
	return subject, text, html
}

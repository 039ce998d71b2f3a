package models

// Payment status values for a registration record. A paid record is final:
// nothing overwrites or deletes it.
const (
	StatusPending = "pending"
	StatusApplied = "applied"
	StatusPaid    = "paid"
)

// Registration types. The type decides required fields and which email and
// analytics templates fire downstream.
const (
	TypeCourse      = "course"
	TypeLivestream  = "livestream"
	TypeApplication = "application"
)

// Course identifiers accepted by the registration endpoint.
const (
	// DefaultCourseID is the flagship course and the course the legacy
	// email-fallback webhook resolution assumes.
	DefaultCourseID    = "01_ai_automation_for_non_coders"
	TestCourseID       = "test-course"
	LivestreamCourseID = "tax-livestream-01"
)

var validCourseIDs = map[string]bool{
	DefaultCourseID:    true,
	TestCourseID:       true,
	LivestreamCourseID: true,
}

// IsValidCourseID reports whether id is on the course allow-list.
func IsValidCourseID(id string) bool {
	return validCourseIDs[id]
}

// RegistrationRecord is one row of the course_registrations table, keyed by
// (course_id, email) with a GSI on registration_id. Email is stored
// lower-cased; payment fields stay zero until the Stripe webhook marks the
// record paid.
type RegistrationRecord struct {
	CourseID            string  `json:"course_id" dynamodbav:"course_id"`
	Email               string  `json:"email" dynamodbav:"email"`
	RegistrationID      string  `json:"registration_id" dynamodbav:"registration_id"`
	Name                string  `json:"name" dynamodbav:"name"`
	Phone               string  `json:"phone,omitempty" dynamodbav:"phone"`
	Company             string  `json:"company,omitempty" dynamodbav:"company"`
	JobTitle            string  `json:"job_title,omitempty" dynamodbav:"job_title"`
	AutomationInterest  string  `json:"automation_interest,omitempty" dynamodbav:"automation_interest"`
	DietaryRequirements string  `json:"dietary_requirements,omitempty" dynamodbav:"dietary_requirements"`
	ReferralSource      string  `json:"referral_source,omitempty" dynamodbav:"referral_source"`
	RegistrationType    string  `json:"registration_type" dynamodbav:"registration_type"`
	PaymentStatus       string  `json:"payment_status" dynamodbav:"payment_status"`
	PaymentAmount       float64 `json:"payment_amount" dynamodbav:"payment_amount"`
	Currency            string  `json:"currency,omitempty" dynamodbav:"currency"`
	StripeSessionID     string  `json:"stripe_session_id,omitempty" dynamodbav:"stripe_session_id"`
	RegistrationDate    string  `json:"registration_date" dynamodbav:"registration_date"`
	ApprovalDate        string  `json:"approval_date,omitempty" dynamodbav:"approval_date"`
	PaymentDate         string  `json:"payment_date,omitempty" dynamodbav:"payment_date"`
}

// PaymentDetails carries the fields recorded when a registration transitions
// to paid. Amount is in major currency units (dollars, not cents).
type PaymentDetails struct {
	Amount          float64
	Currency        string
	StripeSessionID string
	PaymentDate     string
}

package models

// ReferralEvent is one row of the append-only referral_events table, keyed
// by event_id with a GSI on referral_code. Records are never updated or
// deleted.
type ReferralEvent struct {
	EventID      string `json:"event_id" dynamodbav:"event_id"`
	EventName    string `json:"event_name" dynamodbav:"event_name"`
	ReferralCode string `json:"referral_code" dynamodbav:"referral_code"`
	Timestamp    string `json:"timestamp" dynamodbav:"timestamp"`
	UserAgent    string `json:"user_agent,omitempty" dynamodbav:"user_agent"`
	SourceIP     string `json:"source_ip,omitempty" dynamodbav:"source_ip"`
}

package models

type IssuanceOutcome string

const (
	OutcomeIssued    IssuanceOutcome = "issued"
	OutcomeDuplicate IssuanceOutcome = "duplicate"
	OutcomeIgnored   IssuanceOutcome = "ignored"
	OutcomeRejected  IssuanceOutcome = "rejected"
)

// CheckoutPurchase is the part of a completed checkout session the pipeline needs.
type CheckoutPurchase struct {
	SessionID        string
	Email            string
	EventID          string
	EventName        string
	StudentName      string
	StripeCustomerID string
}

// IssuanceResult describes how a webhook delivery was handled. All outcomes are acknowledged
// to the provider with 200.
type IssuanceResult struct {
	Outcome   IssuanceOutcome `json:"outcome"`
	EventType string          `json:"event_type,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	TicketID  string          `json:"ticket_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type LoginRequest struct {
	PrivateCode string `json:"privateCode"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

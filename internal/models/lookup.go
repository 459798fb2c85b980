package models

import "time"

// LookupCandidate is one row of the broad lookup query and one entry of the ranked results.
type LookupCandidate struct {
	TicketID    string     `json:"ticket_id" bun:"ticket_id"`
	EventID     string     `json:"event_id" bun:"event_id"`
	Email       string     `json:"email" bun:"email"`
	StudentName *string    `json:"student_name" bun:"student_name"`
	ScannedAt   *time.Time `json:"scanned_at" bun:"scanned_at"`
	CreatedAt   *time.Time `json:"created_at,omitempty" bun:"created_at"`
}

type LookupResponse struct {
	Results []*LookupCandidate `json:"results"`
}

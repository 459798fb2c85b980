package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is a single-use admission. ID is the scannable payload and must not be guessable.
// ScannedAt is nil until the ticket is redeemed.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          string     `json:"id" bun:"id,pk"`
	EventID     string     `json:"event_id" bun:"event_id"`
	CustomerID  int64      `json:"customer_id" bun:"customer_id"`
	StudentName *string    `json:"student_name" bun:"student_name"`
	ScannedAt   *time.Time `json:"scanned_at" bun:"scanned_at"`
	CreatedAt   time.Time  `json:"created_at" bun:"created_at"`
}

// IsScanned reports whether the ticket has been redeemed.
func (t *Ticket) IsScanned() bool {
	return t.ScannedAt != nil
}

// TicketDetails is a ticket joined with its customer and event.
type TicketDetails struct {
	TicketID    string     `json:"ticket_id" bun:"ticket_id"`
	EventID     string     `json:"event_id" bun:"event_id"`
	EventName   string     `json:"event_name" bun:"event_name"`
	CustomerID  int64      `json:"customer_id" bun:"customer_id"`
	Email       string     `json:"email" bun:"email"`
	StudentName *string    `json:"student_name" bun:"student_name"`
	ScannedAt   *time.Time `json:"scanned_at" bun:"scanned_at"`
	CreatedAt   time.Time  `json:"created_at" bun:"created_at"`
}

// NewTicketRequest carries what the issuance pipeline and admin tooling know about a purchase.
type NewTicketRequest struct {
	EventID          string
	Email            string
	StripeCustomerID string
	StudentName      string
}

// StringPtr returns nil for empty strings, matching the nullable student_name column.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning fallback for nil or empty values.
func StringValue(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

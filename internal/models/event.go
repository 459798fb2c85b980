package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is created administratively and stays immutable during the ticketing window.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID            string    `json:"id" bun:"id,pk"`
	Name          string    `json:"name" bun:"name"`
	StripePriceID string    `json:"stripe_price_id" bun:"stripe_price_id"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bun:"updated_at"`
}

// EventSummary is an event with its aggregate ticket counts.
type EventSummary struct {
	ID            string    `json:"id" bun:"id"`
	Name          string    `json:"name" bun:"name"`
	StripePriceID string    `json:"stripe_price_id" bun:"stripe_price_id"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bun:"updated_at"`
	TicketCount   int       `json:"ticketCount" bun:"ticket_count"`
	ScannedCount  int       `json:"scannedCount" bun:"scanned_count"`
}

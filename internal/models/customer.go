package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID               int64     `json:"id" bun:"id,pk,autoincrement"`
	Email            string    `json:"email" bun:"email"`
	StripeCustomerID string    `json:"stripe_customer_id" bun:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at" bun:"created_at"`
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// TicketFilter narrows ListTickets. Zero values match everything.
type TicketFilter struct {
	EventID       string
	Email         string
	UnscannedOnly bool
}

type Store interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]*models.EventSummary, error)

	// UpsertCustomer inserts or refreshes a customer keyed by email. The id of an existing
	// customer is preserved.
	UpsertCustomer(ctx context.Context, email, stripeCustomerID string) (*models.Customer, error)
	// DeleteCustomer removes the customer with the given email and all of their tickets,
	// returning the number of tickets removed.
	DeleteCustomer(ctx context.Context, email string) (int64, error)

	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketDetails(ctx context.Context, ticketID string) (*models.TicketDetails, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]*models.TicketDetails, error)
	// MarkScanned sets scanned_at only if it is still unset and reports whether this call won.
	MarkScanned(ctx context.Context, ticketID string, at time.Time) (bool, error)
	ResetScan(ctx context.Context, ticketID string) error
	DeleteTicket(ctx context.Context, ticketID string) error

	// SearchCandidates returns tickets whose student name, email or id contains any of the
	// terms, newest first.
	SearchCandidates(ctx context.Context, terms []string, limit int) ([]*models.LookupCandidate, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*InMemoryStore)(nil)
)

// Open returns the store selected by cfg.Driver. SQL stores are migrated on open.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (Store, error) {
	switch cfg.Driver {
	case driverMySQL:
		return NewMySQLStore(cfg, log)
	case driverSQLite:
		return NewSQLiteStore(cfg, log)
	case driverMemory:
		log.Warn("DATABASE", "Using in-memory store, tickets will not survive a restart")
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

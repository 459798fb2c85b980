package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
	"github.com/makors/vender/internal/utils"
)

// AdminService holds the operator-only maintenance operations used by ticketctl.
type AdminService struct {
	store    storage.Store
	notifier Notifier
	log      *logger.Logger
}

func NewAdminService(store storage.Store, notifier Notifier, log *logger.Logger) *AdminService {
	return &AdminService{store: store, notifier: notifier, log: log}
}

// CreateEvent registers a new event. An empty id is derived from the name.
func (s *AdminService) CreateEvent(ctx context.Context, id, name, stripePriceID string) (*models.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if id == "" {
		id = utils.GenerateEventID(name)
	}

	event := &models.Event{ID: id, Name: name, StripePriceID: stripePriceID}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEventExists
		}
		return nil, err
	}

	s.log.Info("ADMIN", fmt.Sprintf("Event %s (%s) created", event.ID, event.Name))
	return event, nil
}

func (s *AdminService) ListTickets(ctx context.Context, filter storage.TicketFilter) ([]*models.TicketDetails, error) {
	return s.store.ListTickets(ctx, filter)
}

// ResetScan clears a ticket's scanned state so it can be admitted again.
func (s *AdminService) ResetScan(ctx context.Context, ticketID string) error {
	if err := s.store.ResetScan(ctx, ticketID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTicketNotFound
		}
		return err
	}
	s.log.LogTicket("RESET", ticketID, "Scan state cleared by operator")
	return nil
}

func (s *AdminService) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := s.store.DeleteTicket(ctx, ticketID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTicketNotFound
		}
		return err
	}
	s.log.LogTicket("DELETE", ticketID, "Ticket deleted by operator")
	return nil
}

// DeleteCustomer removes a customer and every ticket they hold.
func (s *AdminService) DeleteCustomer(ctx context.Context, email string) (int64, error) {
	removed, err := s.store.DeleteCustomer(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrCustomerNotFound
		}
		return 0, err
	}
	s.log.Info("ADMIN", fmt.Sprintf("Customer %s deleted with %d tickets", email, removed))
	return removed, nil
}

// IssueManualTicket creates a ticket outside the payment flow, for comps and corrections,
// and queues the confirmation mail.
func (s *AdminService) IssueManualTicket(ctx context.Context, eventID, email, studentName string) (*models.Ticket, error) {
	email = strings.TrimSpace(email)
	if email == "" || eventID == "" {
		return nil, fmt.Errorf("%w: event and email are required", ErrInvalidInput)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	customer, err := s.store.UpsertCustomer(ctx, email, "")
	if err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		ID:          utils.GenerateTicketID(),
		EventID:     event.ID,
		CustomerID:  customer.ID,
		StudentName: models.StringPtr(strings.TrimSpace(studentName)),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, err
	}
	s.log.LogTicket("ISSUED", ticket.ID, fmt.Sprintf("Manual ticket for %s", email))

	s.send(ctx, &models.TicketNotification{
		Type:        models.NotificationTicketIssued,
		TicketID:    ticket.ID,
		EventID:     event.ID,
		EventName:   event.Name,
		Email:       email,
		StudentName: models.StringValue(ticket.StudentName, ""),
		Timestamp:   ticket.CreatedAt,
	})
	return ticket, nil
}

// SendReminders queues a reminder for every unscanned ticket of an event and returns how
// many were queued.
func (s *AdminService) SendReminders(ctx context.Context, eventID string) (int, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrEventNotFound
		}
		return 0, err
	}

	tickets, err := s.store.ListTickets(ctx, storage.TicketFilter{EventID: eventID, UnscannedOnly: true})
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, t := range tickets {
		ok := s.send(ctx, &models.TicketNotification{
			Type:        models.NotificationTicketReminder,
			TicketID:    t.TicketID,
			EventID:     event.ID,
			EventName:   event.Name,
			Email:       t.Email,
			StudentName: models.StringValue(t.StudentName, ""),
			Timestamp:   time.Now().UTC(),
		})
		if ok {
			queued++
		}
	}

	s.log.Info("ADMIN", fmt.Sprintf("Queued %d of %d reminders for event %s", queued, len(tickets), eventID))
	return queued, nil
}

func (s *AdminService) send(ctx context.Context, n *models.TicketNotification) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Error("NOTIFY", fmt.Sprintf("Failed to queue %s for ticket %s: %v", n.Type, n.TicketID, err))
		return false
	}
	return true
}

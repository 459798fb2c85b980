package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/makors/vender/internal/models"
)

// InMemoryStore keeps everything in maps behind one mutex. Used for local development
// and tests; data is lost on restart.
type InMemoryStore struct {
	events    map[string]*models.Event
	customers map[int64]*models.Customer
	byEmail   map[string]int64
	tickets   map[string]*models.Ticket
	nextID    int64
	mutex     sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:    make(map[string]*models.Event),
		customers: make(map[int64]*models.Customer),
		byEmail:   make(map[string]int64),
		tickets:   make(map[string]*models.Ticket),
	}
}

func (s *InMemoryStore) CreateEvent(ctx context.Context, event *models.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	event, exists := s.events[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *event
	return &cp, nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context) ([]*models.EventSummary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := make([]*models.EventSummary, 0, len(s.events))
	for _, e := range s.events {
		summary := &models.EventSummary{
			ID:            e.ID,
			Name:          e.Name,
			StripePriceID: e.StripePriceID,
			CreatedAt:     e.CreatedAt,
			UpdatedAt:     e.UpdatedAt,
		}
		for _, t := range s.tickets {
			if t.EventID != e.ID {
				continue
			}
			summary.TicketCount++
			if t.ScannedAt != nil {
				summary.ScannedCount++
			}
		}
		events = append(events, summary)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (s *InMemoryStore) UpsertCustomer(ctx context.Context, email, stripeCustomerID string) (*models.Customer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if id, exists := s.byEmail[email]; exists {
		customer := s.customers[id]
		if stripeCustomerID != "" {
			customer.StripeCustomerID = stripeCustomerID
		}
		cp := *customer
		return &cp, nil
	}

	s.nextID++
	customer := &models.Customer{
		ID:               s.nextID,
		Email:            email,
		StripeCustomerID: stripeCustomerID,
		CreatedAt:        time.Now().UTC(),
	}
	s.customers[customer.ID] = customer
	s.byEmail[email] = customer.ID

	cp := *customer
	return &cp, nil
}

func (s *InMemoryStore) DeleteCustomer(ctx context.Context, email string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, exists := s.byEmail[email]
	if !exists {
		return 0, ErrNotFound
	}

	var removed int64
	for ticketID, t := range s.tickets {
		if t.CustomerID == id {
			delete(s.tickets, ticketID)
			removed++
		}
	}
	delete(s.customers, id)
	delete(s.byEmail, email)
	return removed, nil
}

func (s *InMemoryStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tickets[ticket.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := s.events[ticket.EventID]; !exists {
		return ErrNotFound
	}
	if _, exists := s.customers[ticket.CustomerID]; !exists {
		return ErrNotFound
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}

	cp := *ticket
	s.tickets[ticket.ID] = &cp
	return nil
}

// details must be called with the mutex held.
func (s *InMemoryStore) details(t *models.Ticket) *models.TicketDetails {
	d := &models.TicketDetails{
		TicketID:    t.ID,
		EventID:     t.EventID,
		CustomerID:  t.CustomerID,
		StudentName: t.StudentName,
		CreatedAt:   t.CreatedAt,
	}
	if t.ScannedAt != nil {
		at := *t.ScannedAt
		d.ScannedAt = &at
	}
	if e, ok := s.events[t.EventID]; ok {
		d.EventName = e.Name
	}
	if c, ok := s.customers[t.CustomerID]; ok {
		d.Email = c.Email
	}
	return d
}

func (s *InMemoryStore) GetTicketDetails(ctx context.Context, ticketID string) (*models.TicketDetails, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, exists := s.tickets[ticketID]
	if !exists {
		return nil, ErrNotFound
	}
	return s.details(t), nil
}

// sortedTickets returns tickets newest first, ties broken by id. Mutex must be held.
func (s *InMemoryStore) sortedTickets() []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
	return tickets
}

func (s *InMemoryStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*models.TicketDetails, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]*models.TicketDetails, 0)
	for _, t := range s.sortedTickets() {
		d := s.details(t)
		if filter.EventID != "" && d.EventID != filter.EventID {
			continue
		}
		if filter.Email != "" && d.Email != filter.Email {
			continue
		}
		if filter.UnscannedOnly && d.ScannedAt != nil {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *InMemoryStore) MarkScanned(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, exists := s.tickets[ticketID]
	if !exists || t.ScannedAt != nil {
		return false, nil
	}
	t.ScannedAt = &at
	return true, nil
}

func (s *InMemoryStore) ResetScan(ctx context.Context, ticketID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, exists := s.tickets[ticketID]
	if !exists {
		return ErrNotFound
	}
	t.ScannedAt = nil
	return nil
}

func (s *InMemoryStore) DeleteTicket(ctx context.Context, ticketID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tickets[ticketID]; !exists {
		return ErrNotFound
	}
	delete(s.tickets, ticketID)
	return nil
}

// SearchCandidates mirrors the SQL LIKE match, which is case-insensitive for ASCII.
func (s *InMemoryStore) SearchCandidates(ctx context.Context, terms []string, limit int) ([]*models.LookupCandidate, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	candidates := make([]*models.LookupCandidate, 0)
	if len(terms) == 0 {
		return candidates, nil
	}

	for _, t := range s.sortedTickets() {
		d := s.details(t)
		if !matchesAny(d, terms) {
			continue
		}
		created := d.CreatedAt
		candidates = append(candidates, &models.LookupCandidate{
			TicketID:    d.TicketID,
			EventID:     d.EventID,
			Email:       d.Email,
			StudentName: d.StudentName,
			ScannedAt:   d.ScannedAt,
			CreatedAt:   &created,
		})
		if limit > 0 && len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}

func matchesAny(d *models.TicketDetails, terms []string) bool {
	fields := []string{strings.ToLower(d.Email), strings.ToLower(d.TicketID)}
	if d.StudentName != nil {
		fields = append(fields, strings.ToLower(*d.StudentName))
	}
	for _, term := range terms {
		term = strings.ToLower(term)
		for _, f := range fields {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}

func (s *InMemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

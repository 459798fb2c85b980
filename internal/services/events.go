package services

import (
	"context"
	"fmt"

	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
)

type EventService struct {
	store storage.Store
}

func NewEventService(store storage.Store) *EventService {
	return &EventService{store: store}
}

// List returns all events newest first with their ticket and scan counts.
func (s *EventService) List(ctx context.Context) ([]*models.EventSummary, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", ErrTransient, err)
	}
	return events, nil
}

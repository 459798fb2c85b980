package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
)

// CheckinService admits tickets at the door. A ticket moves from unscanned to scanned once;
// the transition is a conditional write so concurrent scanners cannot both succeed.
type CheckinService struct {
	store storage.Store
	log   *logger.Logger
	now   func() time.Time
}

func NewCheckinService(store storage.Store, log *logger.Logger) *CheckinService {
	return &CheckinService{store: store, log: log, now: time.Now}
}

func (s *CheckinService) Scan(ctx context.Context, ticketID, eventID string) (*models.ScanResult, error) {
	result, err := s.scan(ctx, ticketID, eventID)
	if err != nil {
		return nil, err
	}
	metrics.TrackScan(string(result.Status))
	s.log.LogTicket("SCAN", ticketID, fmt.Sprintf("Scan for event %s: %s", eventID, result.Status))
	return result, nil
}

func (s *CheckinService) scan(ctx context.Context, ticketID, eventID string) (*models.ScanResult, error) {
	details, err := s.store.GetTicketDetails(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.ScanResult{Status: models.ScanInvalid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load ticket: %w", ErrTransient, err)
	}

	if details.EventID != eventID {
		res := models.NewScanResult(models.ScanWrongEvent, details)
		res.ScannedAt = nil
		return res, nil
	}
	if details.ScannedAt != nil {
		return models.NewScanResult(models.ScanAlreadyScanned, details), nil
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	won, err := s.store.MarkScanned(ctx, ticketID, at)
	if err != nil {
		return nil, fmt.Errorf("%w: mark scanned: %w", ErrTransient, err)
	}
	if won {
		details.ScannedAt = &at
		return models.NewScanResult(models.ScanValid, details), nil
	}

	// Another scanner won between the read and the write. Report its timestamp.
	current, err := s.store.GetTicketDetails(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.ScanResult{Status: models.ScanInvalid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reload ticket: %w", ErrTransient, err)
	}
	s.log.Warn("CHECKIN", fmt.Sprintf("Ticket %s was admitted concurrently", ticketID))
	return models.NewScanResult(models.ScanAlreadyScanned, current), nil
}

package mailer

import (
	"context"
	"fmt"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

// LogMailer stands in for SMTP in development. It renders the QR code so failures surface
// the same way, then logs instead of sending.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	log.Warn("MAILER", "SMTP not configured, ticket mail will only be logged")
	return &LogMailer{log: log}
}

func (m *LogMailer) SendTicket(ctx context.Context, n *models.TicketNotification) error {
	if _, err := QRCode(n.TicketID); err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}
	m.log.LogTicket("MAIL_SKIPPED", n.TicketID, fmt.Sprintf("Would send %s for %s to %s", n.Type, n.EventName, n.Email))
	return nil
}

// New picks the SMTP mailer when configured and the log mailer otherwise.
func New(cfg config.SMTPConfig, log *logger.Logger) Sender {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg, log)
	}
	return NewLogMailer(log)
}

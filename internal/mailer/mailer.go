package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

const (
	defaultFrom     = "no-reply@example.com"
	defaultFromName = "Vender Tickets"
	qrSize          = 300
)

// Sender delivers ticket mail. Implementations may block; callers run them off the request path.
type Sender interface {
	SendTicket(ctx context.Context, n *models.TicketNotification) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	cfg  config.SMTPConfig
	log  *logger.Logger
	send sendFunc
}

// NewSMTPMailer builds a mailer from validated config. Port 465 uses implicit TLS, any other
// port upgrades with STARTTLS when the server offers it.
func NewSMTPMailer(cfg config.SMTPConfig, log *logger.Logger) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, log: log, send: smtp.SendMail}
	if cfg.Port == 465 {
		m.send = m.sendTLS
	}
	log.Info("MAILER", fmt.Sprintf("SMTP mailer configured for %s:%d", cfg.Host, cfg.Port))
	return m
}

func (m *SMTPMailer) from() mail.Address {
	addr := m.cfg.From
	if addr == "" {
		addr = m.cfg.Username
	}
	if addr == "" {
		addr = defaultFrom
	}
	name := m.cfg.FromName
	if name == "" {
		name = defaultFromName
	}
	return mail.Address{Name: name, Address: addr}
}

func (m *SMTPMailer) SendTicket(ctx context.Context, n *models.TicketNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.from()
	msg, err := BuildMessage(from, n, time.Now())
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, from.Address, []string{n.Email}, msg); err != nil {
		m.log.Error("MAILER", fmt.Sprintf("Failed to send %s for ticket %s to %s: %v", n.Type, n.TicketID, n.Email, err))
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.log.LogTicket("MAILED", n.TicketID, fmt.Sprintf("%s sent to %s", n.Type, n.Email))
	return nil
}

func (m *SMTPMailer) sendTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// QRCode renders the ticket id as a PNG. The id is the whole payload.
func QRCode(ticketID string) ([]byte, error) {
	return qrcode.Encode(ticketID, qrcode.Medium, qrSize)
}

func subject(n *models.TicketNotification) string {
	if n.Type == models.NotificationTicketReminder {
		return "Reminder: your ticket for " + n.EventName
	}
	return "Your ticket for " + n.EventName
}

func bodies(n *models.TicketNotification, fromName, cid string) (string, string) {
	student := n.StudentName
	if student == "" {
		student = "Student"
	}

	intro := fmt.Sprintf("Your ticket for %s is confirmed.", n.EventName)
	if n.Type == models.NotificationTicketReminder {
		intro = fmt.Sprintf("This is a reminder that %s is coming up. Bring your ticket to check-in.", n.EventName)
	}

	text := strings.Join([]string{
		"Hi " + student + ",",
		"",
		intro,
		"",
		"Ticket ID: " + n.TicketID,
		"",
		"Please print the QR code and bring it to check-in.",
		"",
		"Thanks,",
		fromName,
	}, "\r\n")

	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>%s</p><p><strong>Ticket ID:</strong> %s</p>`+
			`<p>Please print this QR code and bring it to check-in:</p>`+
			`<p><img src="cid:%s" alt="Ticket QR code" style="max-width:300px;height:auto;" /></p>`+
			`<p>Thanks,<br/>%s</p>`,
		html.EscapeString(student), html.EscapeString(intro), html.EscapeString(n.TicketID),
		cid, html.EscapeString(fromName),
	)
	return text, htmlBody
}

// BuildMessage renders a multipart/related message with text and HTML alternatives and the
// ticket QR code as an inline PNG.
func BuildMessage(from mail.Address, n *models.TicketNotification, now time.Time) ([]byte, error) {
	if n.Email == "" {
		return nil, fmt.Errorf("notification for ticket %s has no recipient", n.TicketID)
	}
	png, err := QRCode(n.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	cid := fmt.Sprintf("ticket-%s@vender", n.TicketID)
	text, htmlBody := bodies(n, from.Name, cid)

	var alternative bytes.Buffer
	alt := multipart.NewWriter(&alternative)
	if err := writePart(alt, "text/plain; charset=utf-8", "quoted-printable", nil, quotedPrintable(text)); err != nil {
		return nil, err
	}
	if err := writePart(alt, "text/html; charset=utf-8", "quoted-printable", nil, quotedPrintable(htmlBody)); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	related := multipart.NewWriter(&body)
	if err := writePart(related, fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()), "", nil, alternative.String()); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("ticket-%s.png", n.TicketID)
	inline := textproto.MIMEHeader{}
	inline.Set("Content-ID", "<"+cid+">")
	inline.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	if err := writePart(related, fmt.Sprintf("image/png; name=%q", filename), "base64", inline, wrap76(base64.StdEncoding.EncodeToString(png))); err != nil {
		return nil, err
	}
	if err := related.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	for _, h := range []string{
		"From: " + from.String(),
		"To: " + (&mail.Address{Address: n.Email}).String(),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject(n)),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/related; boundary=%q", related.Boundary()),
	} {
		msg.WriteString(h + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType, encoding string, extra textproto.MIMEHeader, content string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	if encoding != "" {
		h.Set("Content-Transfer-Encoding", encoding)
	}
	for k, v := range extra {
		h[k] = v
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(content))
	return err
}

func quotedPrintable(s string) string {
	var b bytes.Buffer
	w := quotedprintable.NewWriter(&b)
	w.Write([]byte(s))
	w.Close()
	return b.String()
}

func wrap76(s string) string {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	return b.String()
}

package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func notification(kind models.NotificationType) *models.TicketNotification {
	return &models.TicketNotification{
		Type:        kind,
		TicketID:    "3b1f5c2e-8a7d-4e0b-9c61-0d2f4a6b8e10",
		EventID:     "evt_formal",
		EventName:   "Spring Formal",
		Email:       "ana@example.com",
		StudentName: "Ana <Lopez>",
		Timestamp:   time.Now(),
	}
}

type parsedMessage struct {
	header mail.Header
	text   string
	html   string
	png    []byte
	cid    string
}

func parse(t *testing.T, raw []byte) parsedMessage {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	out := parsedMessage{header: msg.Header}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/related", mediaType)

	related := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := related.NextRawPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		ct, ctParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		require.NoError(t, err)
		switch ct {
		case "multipart/alternative":
			alt := multipart.NewReader(part, ctParams["boundary"])
			for {
				p, err := alt.NextPart()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				body, err := io.ReadAll(p)
				require.NoError(t, err)
				if strings.HasPrefix(p.Header.Get("Content-Type"), "text/html") {
					out.html = string(body)
				} else {
					out.text = string(body)
				}
			}
		case "image/png":
			encoded, err := io.ReadAll(part)
			require.NoError(t, err)
			out.png, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
			require.NoError(t, err)
			out.cid = part.Header.Get("Content-ID")
		}
	}
	return out
}

func TestBuildMessage(t *testing.T) {
	from := mail.Address{Name: "Vender Tickets", Address: "tickets@example.com"}
	raw, err := BuildMessage(from, notification(models.NotificationTicketIssued), time.Now())
	require.NoError(t, err)

	msg := parse(t, raw)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Your ticket for Spring Formal", subject)
	assert.Equal(t, "<ana@example.com>", msg.header.Get("To"))

	assert.Contains(t, msg.text, "Ticket ID: 3b1f5c2e-8a7d-4e0b-9c61-0d2f4a6b8e10")
	assert.Contains(t, msg.html, "Ana &lt;Lopez&gt;")
	assert.Contains(t, msg.html, "cid:ticket-3b1f5c2e-8a7d-4e0b-9c61-0d2f4a6b8e10@vender")

	assert.Equal(t, "<ticket-3b1f5c2e-8a7d-4e0b-9c61-0d2f4a6b8e10@vender>", msg.cid)
	require.True(t, bytes.HasPrefix(msg.png, pngSignature))
}

func TestBuildMessageReminder(t *testing.T) {
	n := notification(models.NotificationTicketReminder)
	n.StudentName = ""
	raw, err := BuildMessage(mail.Address{Address: "tickets@example.com"}, n, time.Now())
	require.NoError(t, err)

	msg := parse(t, raw)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Reminder: your ticket for Spring Formal", subject)
	assert.Contains(t, msg.text, "Hi Student,")
}

func TestBuildMessageRequiresRecipient(t *testing.T) {
	n := notification(models.NotificationTicketIssued)
	n.Email = ""
	_, err := BuildMessage(mail.Address{Address: "tickets@example.com"}, n, time.Now())
	assert.Error(t, err)
}

func TestSMTPMailerSendTicket(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user@example.com",
		Password: "secret",
		FromName: "Vender Tickets",
	}, logger.Discard())

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotAuth smtp.Auth
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		return nil
	}

	require.NoError(t, m.SendTicket(context.Background(), notification(models.NotificationTicketIssued)))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "user@example.com", gotFrom)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)
}

func TestSMTPMailerSendFailure(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 25}, logger.Discard())
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.SendTicket(context.Background(), notification(models.NotificationTicketIssued))
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewPicksImplementation(t *testing.T) {
	assert.IsType(t, &LogMailer{}, New(config.SMTPConfig{}, logger.Discard()))
	assert.IsType(t, &SMTPMailer{}, New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}, logger.Discard()))
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(logger.Discard()).SendTicket(context.Background(), notification(models.NotificationTicketIssued)))
}

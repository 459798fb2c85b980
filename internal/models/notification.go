package models

import "time"

type NotificationType string

const (
	NotificationTicketIssued   NotificationType = "ticket.issued"
	NotificationTicketReminder NotificationType = "ticket.reminder"
)

// TicketNotification is handed to the notification queue after a ticket is committed.
type TicketNotification struct {
	Type        NotificationType `json:"type"`
	TicketID    string           `json:"ticket_id"`
	EventID     string           `json:"event_id"`
	EventName   string           `json:"event_name"`
	Email       string           `json:"email"`
	StudentName string           `json:"student_name"`
	Timestamp   time.Time        `json:"timestamp"`
}

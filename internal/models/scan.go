package models

import "time"

type ScanStatus string

const (
	ScanInvalid        ScanStatus = "invalid"
	ScanWrongEvent     ScanStatus = "wrong_event"
	ScanAlreadyScanned ScanStatus = "already_scanned"
	ScanValid          ScanStatus = "valid"
)

type ScanRequest struct {
	TicketID string `json:"ticketId"`
	EventID  string `json:"eventId"`
}

// ScanResult is returned with HTTP 200 for every outcome so the scanner can show why a scan failed.
type ScanResult struct {
	Status      ScanStatus `json:"status"`
	TicketID    string     `json:"ticketId,omitempty"`
	EventID     string     `json:"eventId,omitempty"`
	EventName   string     `json:"eventName,omitempty"`
	Email       string     `json:"email,omitempty"`
	StudentName *string    `json:"studentName,omitempty"`
	ScannedAt   *time.Time `json:"scannedAt,omitempty"`
}

// NewScanResult copies the ticket fields into a result with the given status.
func NewScanResult(status ScanStatus, d *TicketDetails) *ScanResult {
	res := &ScanResult{Status: status}
	if d == nil {
		return res
	}
	res.TicketID = d.TicketID
	res.EventID = d.EventID
	res.EventName = d.EventName
	res.Email = d.Email
	res.StudentName = d.StudentName
	res.ScannedAt = d.ScannedAt
	return res
}

package services

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrTransient        = errors.New("temporary failure, retry later")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidInput     = errors.New("invalid input")

	ErrTicketNotFound   = errors.New("ticket not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEventExists      = errors.New("event already exists")
)

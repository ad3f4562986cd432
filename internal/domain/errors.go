package domain

import "errors"

var (
	// ErrInvalidInput covers empty or malformed names and phone numbers.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the customer or card does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePhone means the phone number is already registered.
	ErrDuplicatePhone = errors.New("phone already registered")

	// ErrAlreadyStampedToday is the expected rejection when a card was
	// already stamped this calendar day, or was opened today.
	ErrAlreadyStampedToday = errors.New("already stamped today")

	// ErrCardClosed means the card is not accruing stamps anymore.
	ErrCardClosed = errors.New("card is closed")
)

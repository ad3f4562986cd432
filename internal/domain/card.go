package domain

import (
	"fmt"
	"time"
)

type CardStatus string

const (
	CardOpen   CardStatus = "open"
	CardClosed CardStatus = "closed"
)

func ParseCardStatus(s string) (CardStatus, bool) {
	switch CardStatus(s) {
	case CardOpen, CardClosed:
		return CardStatus(s), true
	default:
		return "", false
	}
}

// Card is one loyalty cycle for a customer. Stamps accrue while the card
// is open, at most one per calendar day, and never on the day the card
// was opened.
type Card struct {
	ID            int64      `json:"id"`
	CardNumber    string     `json:"card_number"`
	Phone         string     `json:"phone"`
	Status        CardStatus `json:"status"`
	Stamps        int        `json:"stamps"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	LastStampDate *time.Time `json:"last_stamp_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FormatCardNumber renders the human-readable card identifier, zero-padded
// to at least three digits (T-001, T-042, T-1000).
func FormatCardNumber(n int64) string {
	return fmt.Sprintf("T-%03d", n)
}

// SameDay compares two instants by calendar date in t's location.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// CanStampToday reports whether a stamp may be granted on the given day.
// Stamping is blocked on the registration day and when a stamp was already
// granted that day. Comparison is by calendar date, not timestamp.
func (c *Card) CanStampToday(today time.Time) bool {
	if c.Status != CardOpen {
		return false
	}
	if SameDay(c.StartDate, today) {
		return false
	}
	if c.LastStampDate != nil && SameDay(*c.LastStampDate, today) {
		return false
	}
	return true
}

// IsOwner checks if the given normalized phone owns this card.
func (c *Card) IsOwner(phone string) bool {
	return c.Phone == phone
}

// StampEvent is one row of the append-only stamp ledger. The ledger carries
// a UNIQUE (card_id, stamp_date) constraint, which is what makes same-day
// grants race-free.
type StampEvent struct {
	ID        int64     `json:"id"`
	CardID    int64     `json:"card_id"`
	Phone     string    `json:"phone"`
	StampDate time.Time `json:"stamp_date"`
	CreatedAt time.Time `json:"created_at"`
}

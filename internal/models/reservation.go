package models

import (
	"strings"
	"time"
)

// Facility is a bookable terrain. Fetched once from the backend and
// treated as read-only by the orchestration core.
type Facility struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	HourlyPrice float64 `json:"hourly_price"` // major units (MAD)
}

// SlotKey identifies one grid cell: a facility, a calendar date and an
// hour-of-day string in HH:00 form. Pure value, no identity beyond fields.
type SlotKey struct {
	FacilityID int64  `json:"terrain_id"`
	Date       string `json:"date"` // YYYY-MM-DD
	Hour       string `json:"hour"` // HH:00
}

// ReservationRecord is the backend's view of a booking. The core only
// reads and classifies these; it never fabricates them.
type ReservationRecord struct {
	ID            int64     `json:"id"`
	FacilityID    int64     `json:"terrain_id"`
	ClientID      *int64    `json:"id_client"` // nil for guest bookings
	Date          string    `json:"date"`      // YYYY-MM-DD
	Hour          string    `json:"hour"`      // HH:MM, stored values may carry seconds
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	Price         float64   `json:"price"` // major units, as stored by the backend
	CreatedAt     time.Time `json:"created_at"`
}

// MatchesSlot reports whether the record occupies the given (date, hour)
// cell. Stored hours may carry seconds ("09:00:00"), so matching is by
// prefix against the cell's HH:00 value.
func (r *ReservationRecord) MatchesSlot(date, hour string) bool {
	return r.Date == date && strings.HasPrefix(r.Hour, hour)
}

// Occupies reports whether the record blocks its slot. Cancelled and
// expired records free the slot again.
func (r *ReservationRecord) Occupies() bool {
	return r.Status != StatusCancelled && r.Status != StatusExpired
}

// CashExpired reports whether a pending cash reservation has outlived the
// on-site payment window. Advisory only: the backend (or an admin sweep)
// owns the actual expiry transition.
func (r *ReservationRecord) CashExpired(now time.Time) bool {
	if r.Status != StatusPending || r.PaymentMethod != PaymentCash {
		return false
	}
	return now.Sub(r.CreatedAt) >= CashPendingMinutes*time.Minute
}

// CreateReservationResult is the backend response to a booking submission.
type CreateReservationResult struct {
	ID                int64  `json:"id"`
	Status            string `json:"state"`
	IsNewUser         bool   `json:"is_new_user,omitempty"`
	EmailSent         bool   `json:"email_sent,omitempty"`
	UserEmail         string `json:"user_email,omitempty"`
	ReservationNumber string `json:"reservation_number,omitempty"`
}

package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventQuotaChanged            = "quota_changed"
	EventAvailabilityInvalidated = "availability_invalidated"
	EventSlotSelected            = "slot_selected"
	EventBookingSubmitted        = "booking_submitted"
	EventBookingConfirmed        = "booking_confirmed"
	EventBookingFailed           = "booking_failed"
)

// QuotaChangedPayload is broadcast whenever the daily counter moves,
// optimistically or from an authoritative refresh.
type QuotaChangedPayload struct {
	Count   int  `json:"count"`
	AtLimit bool `json:"at_limit"`
}

// AvailabilityPayload identifies the facility whose cached reservations
// were dropped.
type AvailabilityPayload struct {
	FacilityID int64 `json:"terrain_id"`
}

// BookingEventPayload is the minimal booking snapshot for subscribers.
type BookingEventPayload struct {
	ReservationID int64  `json:"reservation_id,omitempty"`
	FacilityID    int64  `json:"terrain_id"`
	Date          string `json:"date"`
	Hour          string `json:"hour"`
	Status        string `json:"status,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Event is a lightweight in-process domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event. Handlers run synchronously on the
// publisher's goroutine; the caller decides the concurrency model.
type Handler func(event *Event) error

// Bus is an in-process pub/sub fan-out.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

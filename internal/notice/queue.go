package notice

import (
	"sync"

	"terrana/internal/models"
)

const (
	TypeNewAccount        = "new_account"
	TypeEmailConfirmation = "email_confirmation"
)

// Notice is one post-booking message the user must acknowledge before the
// session can settle as a success.
type Notice struct {
	Type           string `json:"type"`
	Email          string `json:"email,omitempty"`
	ReservationRef string `json:"reservation_ref,omitempty"`
}

// Queue is the ordered, at-most-two-element notice queue. Guest checkout
// can silently provision an account; the user must learn that before any
// generic "booking confirmed" screen, so new_account always precedes
// email_confirmation.
type Queue struct {
	mu      sync.Mutex
	notices []Notice
}

// FromResult builds the queue from the backend's post-booking flags.
func FromResult(res *models.CreateReservationResult) *Queue {
	q := &Queue{}
	if res == nil {
		return q
	}

	if res.IsNewUser {
		q.notices = append(q.notices, Notice{
			Type:  TypeNewAccount,
			Email: res.UserEmail,
		})
	}
	if res.EmailSent {
		q.notices = append(q.notices, Notice{
			Type:           TypeEmailConfirmation,
			Email:          res.UserEmail,
			ReservationRef: res.ReservationNumber,
		})
	}
	return q
}

// Peek returns the notice currently shown to the user.
func (q *Queue) Peek() (Notice, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.notices) == 0 {
		return Notice{}, false
	}
	return q.notices[0], true
}

// Acknowledge pops the head notice.
func (q *Queue) Acknowledge() (Notice, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.notices) == 0 {
		return Notice{}, false
	}
	head := q.notices[0]
	q.notices = q.notices[1:]
	return head, true
}

// Pending returns the number of unacknowledged notices.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notices)
}

// Drained reports whether every notice has been acknowledged.
func (q *Queue) Drained() bool {
	return q.Pending() == 0
}

// Snapshot returns the pending notices in order, for rendering.
func (q *Queue) Snapshot() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notice(nil), q.notices...)
}

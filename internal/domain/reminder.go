package domain

import "time"

// EventKind is the recorded outcome of one reminder.
type EventKind string

const (
	EventConfirmed EventKind = "confirmed"
	EventMissed    EventKind = "missed"
)

// ActiveReminder is one outstanding, undecided reminder. A stored row is
// by definition pending: resolving a reminder (acknowledgment, expiry or
// supersession) archives its outcome to the event log and discards the
// row, so at most one row exists per chat at any time.
type ActiveReminder struct {
	ID        string // unique per firing
	ChatID    int64
	CreatedAt time.Time // UTC
	ExpiresAt time.Time // UTC, CreatedAt + TTL
}

// Expired reports whether the reminder's acknowledgment deadline has
// passed at the given instant.
func (r *ActiveReminder) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HydrationEvent is an immutable acknowledgment outcome. Append-only;
// deleted only on full account reset.
type HydrationEvent struct {
	ID         int64
	ChatID     int64
	Kind       EventKind
	ReminderID string
	CreatedAt  time.Time // UTC
}

package queue

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a message. The numeric order
// matters: everything at Failed or above is eligible for retry.
type Status int

const (
	// StatusCreated is the initial state of a stored message.
	StatusCreated Status = iota
	// StatusQueued means the message has been handed to the dispatch trigger.
	StatusQueued
	// StatusInProcess means a delivery worker holds the row and is sending.
	StatusInProcess
	// StatusSent means the transport accepted the message.
	StatusSent
	// StatusFailed means the transport rejected the message or errored.
	StatusFailed
	// StatusBlacklisted means a recipient was on the blacklist.
	StatusBlacklisted
	// StatusDiscarded means sending was paused when delivery ran.
	StatusDiscarded
)

// String returns the string representation of a status
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusQueued:
		return "queued"
	case StatusInProcess:
		return "in_process"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusBlacklisted:
		return "blacklisted"
	case StatusDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Sendable reports whether a message in this status may be enqueued again.
// Messages already queued, in process or sent must not be re-enqueued; that
// is the idempotency guard against duplicate dispatch triggers.
func (s Status) Sendable() bool {
	switch s {
	case StatusCreated, StatusFailed, StatusBlacklisted, StatusDiscarded:
		return true
	default:
		return false
	}
}

// Retryable reports whether a message in this status is a candidate for the
// retry coordinator.
func (s Status) Retryable() bool {
	return s >= StatusFailed
}

// Message is a unit of mail to deliver. Content lives either inline in Data
// or in an external blob identified by the Storage backend name; resolve it
// through the configured storage backend, not by reading Data directly.
type Message struct {
	ID          string
	FromAddress string
	To          []string
	Cc          []string
	Bcc         []string

	// Storage names the content backend that owns the payload. Data holds
	// the payload only for the database backend.
	Storage string
	Data    []byte

	Status        Status
	DateCreated   time.Time
	DateSent      time.Time
	SentCount     int
	DateEnqueued  time.Time
	EnqueuedCount int
}

// Recipients returns the full recipient set (to + cc + bcc).
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// Log is an append-only audit record of an action taken on a message.
type Log struct {
	ID        int64
	MessageID string
	Action    Status
	Text      string
	Date      time.Time
}

// BlacklistEntry is an email address that must never receive mail.
type BlacklistEntry struct {
	Email     string
	DateAdded time.Time
}

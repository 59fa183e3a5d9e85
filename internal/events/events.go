// Package events publishes memory lifecycle notifications.
//
// Publishing is fire-and-forget from the store's point of view: callers log
// a failed publish and carry on. The NATS publisher writes one JSON message
// per event to the subject
//
//	tiermem.{agent_id}.{kind}
package events

import (
	"context"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

// Event kinds.
const (
	KindAdded      Kind = "added"
	KindPromoted   Kind = "promoted"
	KindSummarized Kind = "summarized"
	KindArchived   Kind = "archived"
	KindDecayed    Kind = "decayed"
	KindEdited     Kind = "edited"
	KindPinned     Kind = "pinned"
	KindDeleted    Kind = "deleted"
)

// Event describes one lifecycle transition of an agent's memory.
type Event struct {
	Kind    Kind      `json:"kind"`
	AgentID string    `json:"agent_id"`
	EntryID string    `json:"entry_id,omitempty"`
	Layer   string    `json:"layer,omitempty"`
	Source  string    `json:"source,omitempty"`
	Count   int       `json:"count,omitempty"`
	Tick    int64     `json:"tick"`
	Time    time.Time `json:"time"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

var _ Publisher = Noop{}

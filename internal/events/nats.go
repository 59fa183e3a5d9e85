package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the first token of every published subject.
const SubjectPrefix = "tiermem"

// NATSPublisher publishes events as JSON over a NATS connection.
type NATSPublisher struct {
	nc    *nats.Conn
	owned bool
}

// NewNATSPublisher wraps an existing connection. Close leaves the
// connection open.
func NewNATSPublisher(nc *nats.Conn) (*NATSPublisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	return &NATSPublisher{nc: nc}, nil
}

// DialNATS connects to url and returns a publisher that owns the connection.
func DialNATS(url string) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	nc, err := nats.Connect(url,
		nats.Name("tiermem"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, owned: true}, nil
}

// Subject returns the subject an event is published to.
func Subject(agentID string, kind Kind) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(agentID), kind)
}

// Publish marshals ev and publishes it. A zero Time is set to now.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(Subject(ev.AgentID, ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

// subjectToken replaces characters that NATS treats as token separators or
// wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

var _ Publisher = (*NATSPublisher)(nil)

// Package changefeed carries payload-less "table changed" notifications from
// the backend to sync clients.
//
// An Event only names the table that changed. Delivery is at-least-once and
// unordered, so consumers must treat every event as a hint to re-read state.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Table is a backend record type that emits change events.
type Table string

const (
	TableUsers         Table = "users"
	TableRelationships Table = "relationships"
	TableMessages      Table = "messages"
)

// Tables lists every table a client subscribes to.
func Tables() []Table {
	return []Table{TableUsers, TableRelationships, TableMessages}
}

func (t Table) Valid() bool {
	switch t {
	case TableUsers, TableRelationships, TableMessages:
		return true
	}
	return false
}

// EventType is the only event type on the wire.
const EventType = "change"

// Event is the wire form of a change notification.
type Event struct {
	Type      string `json:"type"`
	Table     Table  `json:"table"`
	Timestamp int64  `json:"timestamp"`
}

func NewEvent(table Table) Event {
	return Event{Type: EventType, Table: table, Timestamp: time.Now().UnixMilli()}
}

var ErrMalformedEvent = errors.New("malformed change event")

func Encode(e Event) ([]byte, error) {
	if !e.Table.Valid() {
		return nil, fmt.Errorf("%w: unknown table %q", ErrMalformedEvent, e.Table)
	}
	if e.Type == "" {
		e.Type = EventType
	}
	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Type != EventType {
		return Event{}, fmt.Errorf("%w: type %q", ErrMalformedEvent, e.Type)
	}
	if !e.Table.Valid() {
		return Event{}, fmt.Errorf("%w: unknown table %q", ErrMalformedEvent, e.Table)
	}
	return e, nil
}

// ChannelPrefix prefixes the redis channel of each table, e.g. "changes:messages".
const ChannelPrefix = "changes:"

func Channel(table Table) string { return ChannelPrefix + string(table) }

// ChannelPattern matches every table channel.
const ChannelPattern = ChannelPrefix + "*"

// TableFromChannel reverses Channel.
func TableFromChannel(channel string) (Table, bool) {
	t := Table(strings.TrimPrefix(channel, ChannelPrefix))
	return t, strings.HasPrefix(channel, ChannelPrefix) && t.Valid()
}

// Publisher announces that a table changed.
type Publisher interface {
	Publish(ctx context.Context, table Table) error
}

// Fanout publishes to every member and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, table Table) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, table); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Table) error { return nil }

// Handler receives events. It runs on the source's delivery goroutine and should not block.
type Handler func(Event)

// Source delivers change events until the returned Subscription is closed.
type Source interface {
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
}

// Subscription is an explicit handle on a running delivery loop.
type Subscription interface {
	// Close stops delivery and waits for the loop to exit. Safe to call twice.
	Close() error
}

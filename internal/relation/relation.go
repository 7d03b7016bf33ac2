// Package relation holds the friend relationship state machine.
//
// An edge is created pending by its sender, accepted by the other endpoint,
// and may then be blocked by either endpoint. Deletion is allowed from any
// state by either participant and is modelled as row removal, not a status.
//
//	(none)   --request-------------> pending
//	pending  --accept (non-sender)-> accepted
//	accepted --block (either)------> blocked
//	any      --delete (either)-----> removed
//
// A pending edge cannot be blocked directly; it has to be deleted first.
package relation

import (
	"database/sql/driver"
	"fmt"

	"chat-sync/internal/apperr"
)

// Status is the lifecycle state of a relationship edge.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
)

// Statuses lists every valid status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusAccepted, StatusBlocked}
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the three known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusBlocked:
		return true
	default:
		return false
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", apperr.Validation("invalid status %q", raw)
	}
	return s, nil
}

// Value implements driver.Valuer so gorm stores the plain string.
func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*s = Status(v)
	case []byte:
		*s = Status(v)
	default:
		return fmt.Errorf("relation: cannot scan %T into Status", src)
	}
	return nil
}

// actor restricts who may perform a transition.
type actor uint8

const (
	anyParticipant actor = iota
	nonSender
)

// transitions is the complete table of status changes. Anything absent is illegal.
var transitions = map[Status]map[Status]actor{
	StatusPending: {
		StatusAccepted: nonSender,
	},
	StatusAccepted: {
		StatusBlocked: anyParticipant,
	},
	StatusBlocked: {},
}

// Check validates moving an edge from one status to another.
// actorIsSender reports whether the acting participant is the edge's current sender.
func Check(from, to Status, actorIsSender bool) error {
	if !to.IsValid() {
		return apperr.Validation("invalid status %q", to)
	}
	next, ok := transitions[from]
	if !ok {
		return apperr.Validation("unknown current status %q", from)
	}
	who, ok := next[to]
	if !ok {
		return apperr.Validation("illegal transition %s -> %s", from, to)
	}
	if who == nonSender && actorIsSender {
		return apperr.Authorization("the sender of a %s request cannot move it to %s", from, to)
	}
	return nil
}

// Allowed lists the statuses reachable from s by the given actor.
func Allowed(from Status, actorIsSender bool) []Status {
	var out []Status
	for _, to := range Statuses() {
		if Check(from, to, actorIsSender) == nil {
			out = append(out, to)
		}
	}
	return out
}

// PairKey identifies the unordered pair {a, b}.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// IsParticipant reports whether viewer is one of the edge endpoints.
func IsParticipant(viewer, userID, friendID string) bool {
	return viewer != "" && (viewer == userID || viewer == friendID)
}

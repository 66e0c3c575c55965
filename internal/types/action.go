package types

import "time"

const DefaultMaxRetries = 3

// ActionKind selects the sender used to deliver a PendingAction.
type ActionKind string

const (
	KindAcceptAssignment ActionKind = "accept_assignment"
	KindLocationUpdate   ActionKind = "location_update"
	KindTripStatus       ActionKind = "trip_status_update"
	KindProfileUpdate    ActionKind = "profile_update"
	KindGeneric          ActionKind = "generic"
)

var KnownKinds = []ActionKind{
	KindAcceptAssignment,
	KindLocationUpdate,
	KindTripStatus,
	KindProfileUpdate,
	KindGeneric,
}

func (k ActionKind) Valid() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// PendingAction is a deferred mutating request waiting for connectivity.
// It leaves the queue on confirmed success or once RetryCount exceeds MaxRetries.
type PendingAction struct {
	ID         string     `json:"id" dynamodbav:"id"`
	Kind       ActionKind `json:"kind" dynamodbav:"kind"`
	Endpoint   string     `json:"endpoint" dynamodbav:"endpoint"`
	Method     string     `json:"method" dynamodbav:"method"`
	Body       *string    `json:"body,omitempty" dynamodbav:"body,omitempty"`
	CreatedAt  time.Time  `json:"created_at" dynamodbav:"created_at"`
	RetryCount int        `json:"retry_count" dynamodbav:"retry_count"`
	MaxRetries int        `json:"max_retries" dynamodbav:"max_retries"`
}

// Exhausted reports whether the action has used up its retries.
func (a PendingAction) Exhausted() bool {
	return a.RetryCount > a.MaxRetries
}

// TerminalFailure records an action dropped after exhausting its retries.
type TerminalFailure struct {
	Action    PendingAction `json:"action"`
	Attempts  int           `json:"attempts"`
	DroppedAt time.Time     `json:"dropped_at"`
	Reason    string        `json:"reason"`
}

const HardLimitRecentFailures = 64

// AppendFailure appends f, keeping at most cap of the most recent entries.
func AppendFailure(rs []TerminalFailure, f TerminalFailure, cap int) []TerminalFailure {
	rs = append(rs, f)
	if len(rs) > cap {
		rs = rs[len(rs)-cap:]
	}
	return rs
}

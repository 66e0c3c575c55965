package types

import "time"

// AvailabilityRecord is the persisted online/offline flag of the user.
// PendingSync is true while IsAvailable holds an optimistic value the backend has not confirmed.
// LastConfirmed is the last value the backend accepted; a rejection reverts to it.
type AvailabilityRecord struct {
	IsAvailable   bool      `json:"is_available" dynamodbav:"is_available"`
	LastUpdatedAt time.Time `json:"last_updated_at" dynamodbav:"last_updated_at"`
	PendingSync   bool      `json:"pending_sync" dynamodbav:"pending_sync"`
	LastConfirmed bool      `json:"last_confirmed" dynamodbav:"last_confirmed"`
}

// SessionStatus is the lifecycle of one toggle attempt.
type SessionStatus int

const (
	InFlight SessionStatus = iota
	Confirmed
	RevertedTransient // did not confirm; the optimistic value is kept
	RevertedRejected
)

var SessionStatusTextMap = map[SessionStatus]string{
	InFlight:          "in_flight",
	Confirmed:         "confirmed",
	RevertedTransient: "reverted_transient",
	RevertedRejected:  "reverted_rejected",
}

func (s SessionStatus) String() string { return SessionStatusTextMap[s] }

// ToggleSession describes one toggle/setAvailability call.
type ToggleSession struct {
	Generation    uint64
	PreviousState bool
	TargetState   bool
	Status        SessionStatus
}

// Connectivity is Online or Offline.
type Connectivity int

const (
	Offline Connectivity = iota
	Online
)

func (c Connectivity) String() string {
	if c == Online {
		return "online"
	}
	return "offline"
}

// ConnectivityState is a (debounced) connectivity observation.
type ConnectivityState struct {
	State Connectivity `json:"state"`
	Since time.Time    `json:"since"`
}

func (c ConnectivityState) IsOnline() bool { return c.State == Online }

// CooldownWindow is the transient post-toggle lockout.
type CooldownWindow struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Remaining returns how much of the window is left at now; zero when expired.
func (w CooldownWindow) Remaining(now time.Time) time.Duration {
	if w.Duration <= 0 {
		return 0
	}
	left := w.StartedAt.Add(w.Duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (w CooldownWindow) RemainingMs(now time.Time) int64 {
	return w.Remaining(now).Milliseconds()
}

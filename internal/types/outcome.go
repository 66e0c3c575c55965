package types

import "net/http"

// OutcomeKind is the typed result of a single availability write.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Rejected
	TransientFailure
)

var OutcomeTextMap = map[OutcomeKind]string{
	Success:          "success",
	Rejected:         "rejected",
	TransientFailure: "transient_failure",
}

func (k OutcomeKind) String() string { return OutcomeTextMap[k] }

// RejectCode classifies an explicit backend refusal.
type RejectCode string

const (
	RateLimited  RejectCode = "RATE_LIMITED"
	LockConflict RejectCode = "LOCK_CONFLICT"
	Unauthorized RejectCode = "UNAUTHORIZED"
	NotFound     RejectCode = "NOT_FOUND"
	Other        RejectCode = "OTHER"
)

// Outcome is what the Backend Sync Client returns for a write. Only the fields
// matching Kind are meaningful.
type Outcome struct {
	Kind OutcomeKind

	// Success
	CooldownMs int64
	Idempotent bool
	// IsAvailable echoes the server's value when the response carried one.
	IsAvailable *bool

	// Rejected
	Code    RejectCode
	Message string

	// TransientFailure
	Cause error
}

func Succeeded(cooldownMs int64, idempotent bool) Outcome {
	return Outcome{Kind: Success, CooldownMs: cooldownMs, Idempotent: idempotent}
}

func Rejection(code RejectCode, message string) Outcome {
	return Outcome{Kind: Rejected, Code: code, Message: message}
}

func Transient(cause error) Outcome {
	return Outcome{Kind: TransientFailure, Cause: cause}
}

// CodeFromStatus maps an HTTP status of a failed write to a RejectCode.
func CodeFromStatus(status int) RejectCode {
	switch status {
	case http.StatusTooManyRequests:
		return RateLimited
	case http.StatusConflict:
		return LockConflict
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusNotFound:
		return NotFound
	default:
		return Other
	}
}

// ParseRejectCode accepts the backend's error code strings; anything unknown is Other.
func ParseRejectCode(s string) RejectCode {
	switch RejectCode(s) {
	case RateLimited, LockConflict, Unauthorized, NotFound:
		return RejectCode(s)
	}
	switch s {
	case "RATE_LIMIT", "TOO_MANY_REQUESTS":
		return RateLimited
	case "LOCK_TIMEOUT", "CONFLICT":
		return LockConflict
	}
	return Other
}

package store

import "strings"

// Status is the lifecycle state of a solution record.
type Status string

const (
	StatusSubmitted       Status = "submitted"
	StatusDuplicate       Status = "duplicate"
	StatusInvalidNonce    Status = "invalid_nonce"
	StatusFailed          Status = "failed"
	StatusRejected        Status = "rejected"
	StatusNetworkError    Status = "error: network"
	StatusChallengeClosed Status = "challenge_closed"
	StatusAbandoned       Status = "abandoned"
)

// Retryable reports whether the retry sweep may pick this status up.
// Terminal states never come back.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusRejected || strings.HasPrefix(string(s), "error:")
}

// ClassifyRejection maps the service's rejection text onto a status.
// The matching is substring-based because that is all the service
// exposes today; if it ever returns structured error codes this is the
// one place to switch over.
func ClassifyRejection(message string) Status {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "already exists"):
		return StatusDuplicate
	case strings.Contains(m, "does not meet difficulty"),
		strings.Contains(m, "difficulty") && strings.Contains(m, "not meet"):
		return StatusInvalidNonce
	default:
		return StatusFailed
	}
}

// TerminalErrorText reports whether a stored error message marks the
// record as never-retry even when its status field looks retryable
// (records written by older runs may carry a generic status with a
// terminal message).
func TerminalErrorText(message string) bool {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "already exists"):
		return true
	case strings.Contains(m, "window closed"):
		return true
	case strings.Contains(m, "does not meet difficulty"):
		return true
	case strings.Contains(m, "difficulty") && strings.Contains(m, "not meet"):
		return true
	default:
		return false
	}
}

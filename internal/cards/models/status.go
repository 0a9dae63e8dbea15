package models

import (
	"strings"

	dErrors "cardvault/pkg/domain-errors"
)

// Status is the verification state of a card.
//
// Invariants:
//   - PENDING_VERIFICATION is the only initial state
//   - APPROVED and REJECTED are terminal
//   - transitions only originate from PENDING_VERIFICATION
//
// Construct via ParseStatus at trust boundaries; direct casting bypasses validation.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusApproved            Status = "APPROVED"
	StatusRejected            Status = "REJECTED"
)

var validStatuses = map[Status]bool{
	StatusPendingVerification: true,
	StatusApproved:            true,
	StatusRejected:            true,
}

// ParseStatus accepts the internal status names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool { return validStatuses[s] }

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether the state machine defines s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	return s == StatusPendingVerification && to.IsTerminal()
}

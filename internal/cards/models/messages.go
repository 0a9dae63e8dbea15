package models

import (
	"encoding/json"
	"strings"
	"time"
)

// VerificationCheck is the queue payload asking the background poller to
// reconcile one card with the provider.
type VerificationCheck struct {
	Reference  string    `json:"ruv"`
	CardID     string    `json:"cardId"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	FullName   string    `json:"fullName,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func (m VerificationCheck) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeVerificationCheck parses a queue body. ok is false when the body is
// malformed or carries no reference; such messages can never be processed.
func DecodeVerificationCheck(body []byte) (VerificationCheck, bool) {
	var m VerificationCheck
	if err := json.Unmarshal(body, &m); err != nil {
		return VerificationCheck{}, false
	}
	m.Reference = strings.TrimSpace(m.Reference)
	if m.Reference == "" {
		return VerificationCheck{}, false
	}
	return m, true
}

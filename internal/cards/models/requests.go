package models

import (
	"strings"
	"time"

	dErrors "cardvault/pkg/domain-errors"
)

type RegisterCardRequest struct {
	CardNumber     string `json:"cardNumber"`
	CVV            string `json:"cvv"`
	ExpirationDate string `json:"expirationDate"`
	CardHolderName string `json:"cardHolderName"`
}

func (r *RegisterCardRequest) Normalize() {
	if r == nil {
		return
	}
	r.CardNumber = NormalizeNumber(r.CardNumber)
	r.CVV = strings.TrimSpace(r.CVV)
	r.ExpirationDate = strings.TrimSpace(r.ExpirationDate)
	r.CardHolderName = NormalizeHolderName(r.CardHolderName)
}

// Validate runs the registration checks in order and returns the parsed expiry.
// Call Normalize first. An expired card fails with CodeExpired; everything else
// with CodeValidation.
func (r *RegisterCardRequest) Validate(now time.Time) (Expiration, error) {
	if r == nil {
		return Expiration{}, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := ValidateNumber(r.CardNumber); err != nil {
		return Expiration{}, err
	}
	if err := ValidateCVV(r.CVV); err != nil {
		return Expiration{}, err
	}
	exp, err := ParseExpiration(r.ExpirationDate)
	if err != nil {
		return Expiration{}, err
	}
	if exp.Expired(now) {
		return Expiration{}, dErrors.New(dErrors.CodeExpired, "card is expired")
	}
	if err := ValidateHolderName(r.CardHolderName); err != nil {
		return Expiration{}, err
	}
	return exp, nil
}

// UpdateStatusRequest is the operator/webhook override body.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Normalize() {
	if r == nil {
		return
	}
	r.Status = strings.TrimSpace(r.Status)
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

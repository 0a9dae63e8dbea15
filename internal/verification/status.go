package verification

import (
	"strings"

	"cardvault/internal/cards/models"
)

// Code classifies a status poll. The set is closed.
type Code string

const (
	CodeFinal        Code = "FINAL"
	CodePending      Code = "PENDING"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnexpected   Code = "UNEXPECTED"
)

// StatusResult is the outcome of one GetStatus call. Status and Issuer are
// set only for CodeFinal; Raw keeps the provider's spelling for logs.
type StatusResult struct {
	Code   Code
	Status models.Status
	Issuer models.Issuer
	Raw    string
}

// providerStatuses is the single mapping from provider vocabulary to internal
// status. Pending entries map to PENDING_VERIFICATION.
var providerStatuses = map[string]models.Status{
	"APPROVED":           models.StatusApproved,
	"APPROVE":            models.StatusApproved,
	"APPROVED_WITH_RISK": models.StatusApproved,
	"APROBADA":           models.StatusApproved,
	"REJECTED":           models.StatusRejected,
	"DECLINED":           models.StatusRejected,
	"RECHAZADA":          models.StatusRejected,
	"PENDING":            models.StatusPendingVerification,
	"SENT":               models.StatusPendingVerification,
	"POR_VERIFICAR":      models.StatusPendingVerification,
}

// MapStatus translates a provider status. ok is false for unmapped values.
func MapStatus(raw string) (status models.Status, ok bool) {
	status, ok = providerStatuses[strings.ToUpper(strings.TrimSpace(raw))]
	return status, ok
}

// classify turns a 200 status body into a result.
func classify(raw, rawIssuer string) StatusResult {
	status, ok := MapStatus(raw)
	switch {
	case !ok:
		return StatusResult{Code: CodeUnexpected, Raw: raw}
	case status == models.StatusPendingVerification:
		return StatusResult{Code: CodePending, Raw: raw}
	}
	result := StatusResult{Code: CodeFinal, Status: status, Raw: raw}
	if issuer, ok := models.ParseIssuer(rawIssuer); ok {
		result.Issuer = issuer
	}
	return result
}

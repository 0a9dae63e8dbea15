package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cardvault/pkg/domain-errors"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, st)

	_, err = ParseStatus("APROBADA")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestStatus_StateMachine(t *testing.T) {
	assert.False(t, StatusPendingVerification.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())

	assert.True(t, StatusPendingVerification.CanTransitionTo(StatusApproved))
	assert.True(t, StatusPendingVerification.CanTransitionTo(StatusRejected))
	assert.False(t, StatusPendingVerification.CanTransitionTo(StatusPendingVerification))

	for _, terminal := range []Status{StatusApproved, StatusRejected} {
		for _, to := range []Status{StatusPendingVerification, StatusApproved, StatusRejected} {
			assert.False(t, terminal.CanTransitionTo(to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, Status("BOGUS").IsValid())
}

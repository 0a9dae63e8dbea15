package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cardvault/pkg/domain-errors"
)

func TestLastFour_IgnoresSeparators(t *testing.T) {
	inputs := []string{
		"4111 1111 1111 1234",
		"4111-1111-1111-1234",
		"4111.1111.1111.1234",
		" 4111111111111234 ",
	}
	for _, in := range inputs {
		assert.Equal(t, "1234", LastFour(NormalizeNumber(in)), in)
	}
}

func TestParseExpiration(t *testing.T) {
	tests := []struct {
		raw       string
		wantYear  int
		wantMonth time.Month
		wantErr   bool
	}{
		{"28/07", 2028, time.July, false},
		{"12/23", 2023, time.December, false},
		{"01/12", 2001, time.December, false},
		{"30/13", 0, 0, true},
		{"2/07", 0, 0, true},
		{"2807", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			exp, err := ParseExpiration(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, exp.Year)
			assert.Equal(t, tt.wantMonth, exp.Month)
		})
	}
}

func TestExpiration_LastInstantOfMonth(t *testing.T) {
	exp, err := ParseExpiration("12/23")
	require.NoError(t, err)

	endOfDec := time.Date(2023, time.December, 31, 23, 59, 59, 999999999, time.UTC)
	assert.Equal(t, endOfDec, exp.ExpiresAt())
	assert.Equal(t, "23/12", exp.Wire())

	assert.False(t, exp.Expired(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)))
	assert.True(t, exp.Expired(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRegisterCardRequest_Validate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	valid := func() RegisterCardRequest {
		return RegisterCardRequest{
			CardNumber:     "4111 1111 1111 1111",
			CVV:            "123",
			ExpirationDate: "28/07",
			CardHolderName: "  Ada   Lovelace ",
		}
	}

	t.Run("valid request normalizes fields", func(t *testing.T) {
		req := valid()
		req.Normalize()
		exp, err := req.Validate(now)
		require.NoError(t, err)
		assert.Equal(t, "4111111111111111", req.CardNumber)
		assert.Equal(t, "Ada Lovelace", req.CardHolderName)
		assert.Equal(t, 2028, exp.Year)
	})

	tests := []struct {
		name     string
		mutate   func(*RegisterCardRequest)
		wantCode dErrors.Code
	}{
		{"short number", func(r *RegisterCardRequest) { r.CardNumber = "4111 1111" }, dErrors.CodeValidation},
		{"long number", func(r *RegisterCardRequest) { r.CardNumber = "41111111111111111111" }, dErrors.CodeValidation},
		{"cvv letters", func(r *RegisterCardRequest) { r.CVV = "12a" }, dErrors.CodeValidation},
		{"cvv too long", func(r *RegisterCardRequest) { r.CVV = "12345" }, dErrors.CodeValidation},
		{"bad expiration", func(r *RegisterCardRequest) { r.ExpirationDate = "July" }, dErrors.CodeValidation},
		{"expired", func(r *RegisterCardRequest) { r.ExpirationDate = "12/23" }, dErrors.CodeExpired},
		{"short holder name", func(r *RegisterCardRequest) { r.CardHolderName = " Al " }, dErrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			req.Normalize()
			_, err := req.Validate(now)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, dErrors.GetCode(err))
		})
	}

	t.Run("12/23 accepted before the end of December 2023", func(t *testing.T) {
		req := valid()
		req.ExpirationDate = "12/23"
		req.Normalize()
		_, err := req.Validate(time.Date(2023, time.December, 15, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	})
}

func TestDecodeVerificationCheck(t *testing.T) {
	body, err := VerificationCheck{Reference: "RUV-1", CardID: "c"}.Encode()
	require.NoError(t, err)

	msg, ok := DecodeVerificationCheck(body)
	require.True(t, ok)
	assert.Equal(t, "RUV-1", msg.Reference)

	_, ok = DecodeVerificationCheck([]byte("{not json"))
	assert.False(t, ok)
	_, ok = DecodeVerificationCheck([]byte(`{"ruv":"  "}`))
	assert.False(t, ok)
}

package verification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/cards/models"
	"cardvault/pkg/platform/circuit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(server.URL, "secret", 2*time.Second, func() string { return "tx-1" }, opts...)
}

var testCard = Card{Number: "4111111111111111", CVV: "123", Expiration: "28/07", HolderName: "Ada Lovelace"}

func TestRegister_SendsWireFormat(t *testing.T) {
	var got registerRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/native/cards", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"RUV":"RUV-1","token":"tok-1","issuer":"VISA"}`))
	})

	reg, err := client.Register(context.Background(), testCard)
	require.NoError(t, err)
	assert.Equal(t, Registration{Reference: "RUV-1", Token: "tok-1", Issuer: "VISA"}, reg)
	assert.Equal(t, "4111111111111111", got.Card.CardNumber)
	assert.Equal(t, "28/07", got.Card.ExpirationDate)
	assert.Equal(t, "Ada Lovelace", got.Card.CardHolderName)
	assert.Equal(t, "tx-1", got.TransactionIdentifier)
}

func TestRegister_AlternateFieldNames(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ruv":"RUV-2","cardToken":"tok-2"}`))
	})

	reg, err := client.Register(context.Background(), testCard)
	require.NoError(t, err)
	assert.Equal(t, "RUV-2", reg.Reference)
	assert.Equal(t, "tok-2", reg.Token)
}

func TestRegister_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  ErrorKind
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, "", KindBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, "", KindUnauthorized, false},
		{"forbidden", http.StatusForbidden, "", KindForbidden, false},
		{"conflict", http.StatusConflict, "", KindConflict, false},
		{"server error", http.StatusInternalServerError, "", KindProviderOutage, true},
		{"missing reference", http.StatusCreated, `{"token":"t"}`, KindBadData, false},
		{"malformed body", http.StatusCreated, `{`, KindBadData, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Register(context.Background(), testCard)
			require.Error(t, err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.retryable, pe.Retryable)
		})
	}
}

func TestRegister_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	client := New(server.URL, "secret", 50*time.Millisecond, func() string { return "tx" })

	_, err := client.Register(context.Background(), testCard)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestGetStatus_Codes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   Code
		wantStatus models.Status
		wantIssuer models.Issuer
	}{
		{"approved", http.StatusOK, `{"status":"APROBADA","issuer":"MASTERCARD"}`, CodeFinal, models.StatusApproved, models.IssuerMastercard},
		{"rejected", http.StatusOK, `{"status":"declined"}`, CodeFinal, models.StatusRejected, ""},
		{"pending body", http.StatusOK, `{"status":"POR_VERIFICAR"}`, CodePending, "", ""},
		{"accepted", http.StatusAccepted, ``, CodePending, "", ""},
		{"unmapped status", http.StatusOK, `{"status":"MAYBE"}`, CodeUnexpected, "", ""},
		{"malformed body", http.StatusOK, `not json`, CodeUnexpected, "", ""},
		{"unauthorized", http.StatusUnauthorized, ``, CodeUnauthorized, "", ""},
		{"forbidden", http.StatusForbidden, ``, CodeForbidden, "", ""},
		{"not found", http.StatusNotFound, ``, CodeNotFound, "", ""},
		{"server error", http.StatusBadGateway, ``, CodeUnexpected, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/native/cards/RUV-9", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			got := client.GetStatus(context.Background(), "RUV-9")
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantIssuer, got.Issuer)
		})
	}
}

func TestGetStatus_TransportFailureIsUnexpected(t *testing.T) {
	client := New("http://127.0.0.1:1", "secret", 200*time.Millisecond, func() string { return "tx" })
	got := client.GetStatus(context.Background(), "RUV-1")
	assert.Equal(t, CodeUnexpected, got.Code)
}

func TestCircuitBreaker_ShortCircuitsAfterOutages(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))

	for i := 0; i < 2; i++ {
		assert.Equal(t, CodeUnexpected, client.GetStatus(context.Background(), "RUV").Code)
	}
	require.Equal(t, int32(2), calls.Load())

	_, err := client.Register(context.Background(), testCard)
	assert.Equal(t, KindProviderOutage, KindOf(err))
	assert.Equal(t, CodeUnexpected, client.GetStatus(context.Background(), "RUV").Code)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the provider")
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.Register(context.Background(), testCard)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, CodeUnexpected, Unconfigured{}.GetStatus(context.Background(), "RUV").Code)
}

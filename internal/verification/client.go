// Package verification talks to the TrueNative card verification API.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cardvault/internal/cards/metrics"
	"cardvault/pkg/platform/circuit"
)

const maxBodyBytes = 1 << 20

// Card is what the provider needs to start a verification. Expiration is YY/MM.
type Card struct {
	Number     string
	CVV        string
	Expiration string
	HolderName string
}

// Registration is the provider's acceptance of a card.
type Registration struct {
	Reference string
	Token     string
	Issuer    string
}

// Client is the HTTP TrueNative client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	newTxID func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTransactionIDs overrides the transactionIdentifier generator.
func WithTransactionIDs(fn func() string) Option {
	return func(c *Client) { c.newTxID = fn }
}

// New builds a client. timeout bounds every request.
func New(baseURL, token string, timeout time.Duration, newTxID func() string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New("truenative"),
		logger:  slog.Default(),
		newTxID: newTxID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type registerCard struct {
	CardNumber     string `json:"cardNumber"`
	CVV            string `json:"cvv"`
	ExpirationDate string `json:"expirationDate"`
	CardHolderName string `json:"cardHolderName"`
}

type registerRequest struct {
	Card                  registerCard `json:"card"`
	TransactionIdentifier string       `json:"transactionIdentifier"`
}

// registerResponse accepts both spellings the provider has used.
type registerResponse struct {
	RUV       string `json:"RUV"`
	RUVLower  string `json:"ruv"`
	Token     string `json:"token"`
	CardToken string `json:"cardToken"`
	Issuer    string `json:"issuer"`
}

type statusResponse struct {
	Status string `json:"status"`
	Issuer string `json:"issuer"`
}

// Register submits a card for verification. Errors are *Error.
func (c *Client) Register(ctx context.Context, card Card) (Registration, error) {
	if !c.breaker.Allow() {
		c.metrics.IncrementProviderCall("register", string(KindProviderOutage))
		return Registration{}, newError(KindProviderOutage, 0, "circuit open", nil)
	}

	payload, err := json.Marshal(registerRequest{
		Card: registerCard{
			CardNumber:     card.Number,
			CVV:            card.CVV,
			ExpirationDate: card.Expiration,
			CardHolderName: card.HolderName,
		},
		TransactionIdentifier: c.newTxID(),
	})
	if err != nil {
		return Registration{}, newError(KindBadData, 0, "encode request", err)
	}

	resp, body, err := c.do(ctx, http.MethodPost, c.baseURL+"/native/cards", payload)
	if err != nil {
		c.recordOutage("register")
		kind := transportKind(err)
		c.metrics.IncrementProviderCall("register", string(kind))
		return Registration{}, newError(kind, 0, "register request failed", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		kind := kindForStatus(resp.StatusCode)
		if kind == KindProviderOutage {
			c.recordOutage("register")
		} else {
			c.breaker.RecordSuccess()
		}
		c.metrics.IncrementProviderCall("register", string(kind))
		return Registration{}, newError(kind, resp.StatusCode, "register rejected", nil)
	}
	c.recordSuccess()

	var decoded registerResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.metrics.IncrementProviderCall("register", string(KindBadData))
		return Registration{}, newError(KindBadData, resp.StatusCode, "decode register response", err)
	}
	reg := Registration{
		Reference: firstNonEmpty(decoded.RUV, decoded.RUVLower),
		Token:     firstNonEmpty(decoded.Token, decoded.CardToken),
		Issuer:    decoded.Issuer,
	}
	if reg.Reference == "" || reg.Token == "" {
		c.metrics.IncrementProviderCall("register", string(KindBadData))
		return Registration{}, newError(KindBadData, resp.StatusCode, "register response missing reference or token", nil)
	}
	c.metrics.IncrementProviderCall("register", "ok")
	return reg, nil
}

// GetStatus polls one verification. Transport and decode failures become
// CodeUnexpected; the call never fails outright.
func (c *Client) GetStatus(ctx context.Context, reference string) StatusResult {
	result := c.getStatus(ctx, reference)
	c.metrics.IncrementProviderCall("status", string(result.Code))
	return result
}

func (c *Client) getStatus(ctx context.Context, reference string) StatusResult {
	if !c.breaker.Allow() {
		return StatusResult{Code: CodeUnexpected, Raw: "circuit open"}
	}

	resp, body, err := c.do(ctx, http.MethodGet, c.baseURL+"/native/cards/"+url.PathEscape(reference), nil)
	if err != nil {
		c.recordOutage("status")
		c.logger.WarnContext(ctx, "provider status poll failed", "reference", reference, "error", err)
		return StatusResult{Code: CodeUnexpected}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		c.recordSuccess()
		var decoded statusResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return StatusResult{Code: CodeUnexpected}
		}
		return classify(decoded.Status, decoded.Issuer)
	case http.StatusAccepted:
		c.recordSuccess()
		return StatusResult{Code: CodePending}
	case http.StatusUnauthorized:
		c.recordSuccess()
		return StatusResult{Code: CodeUnauthorized}
	case http.StatusForbidden:
		c.recordSuccess()
		return StatusResult{Code: CodeForbidden}
	case http.StatusNotFound:
		c.recordSuccess()
		return StatusResult{Code: CodeNotFound}
	default:
		if resp.StatusCode >= 500 {
			c.recordOutage("status")
		}
		return StatusResult{Code: CodeUnexpected}
	}
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return resp, body, nil
}

func (c *Client) recordOutage(operation string) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Warn("provider circuit opened", "breaker", c.breaker.Name(), "operation", operation)
	}
}

func (c *Client) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("provider circuit closed", "breaker", c.breaker.Name())
	}
}

func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindProviderOutage
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Unconfigured stands in when TRUENATIVE_BASE_URL or SECRET_TOKEN is missing.
type Unconfigured struct{}

func (Unconfigured) Register(context.Context, Card) (Registration, error) {
	return Registration{}, ErrNotConfigured
}

func (Unconfigured) GetStatus(context.Context, string) StatusResult {
	return StatusResult{Code: CodeUnexpected, Raw: "not configured"}
}

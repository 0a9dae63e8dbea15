// Package handler exposes the card HTTP API.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cardvault/internal/cards/models"
	"cardvault/internal/cards/service"
	id "cardvault/pkg/domain"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/platform/httputil"
	"cardvault/pkg/requestcontext"
)

// maxBodyBytes bounds request bodies; a card payload is a few hundred bytes.
const maxBodyBytes = 16 << 10

// Service defines the card operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, cmd service.RegisterCommand) (*models.CreditCard, error)
	Get(ctx context.Context, owner id.UserID, cardID id.CardID) (*models.CreditCard, error)
	List(ctx context.Context, owner id.UserID, status *models.Status) ([]*models.CreditCard, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	Override(ctx context.Context, reference, rawStatus string) (*models.CreditCard, error)
}

// Handler wires card endpoints to the card service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the card routes. requireUser guards caller-scoped routes and
// requireAdmin guards the override route.
func (h *Handler) Register(r chi.Router, requireUser, requireAdmin func(http.Handler) http.Handler) {
	r.Get("/credit-cards/ping", h.HandlePing)
	r.Get("/credit-cards/count", h.HandleCount)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/credit-cards", h.HandleRegister)
		r.Get("/credit-cards", h.HandleList)
		r.Get("/credit-cards/{id}", h.HandleGet)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Patch("/credit-cards/ruv/{ruv}", h.HandleOverride)
	})
}

func (h *Handler) HandlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// HandleRegister handles POST /credit-cards.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req models.RegisterCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	contact := requestcontext.UserContact(ctx)
	card, err := h.service.Register(ctx, service.RegisterCommand{
		UserID:   userID,
		Email:    contact.Email,
		FullName: contact.FullName,
		Card:     req,
	})
	if err != nil {
		h.logFailure(ctx, "card registration failed", err, "request_id", requestID, "user_id", userID.String())
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.ToCreateCardResponse(card))
}

// HandleList handles GET /credit-cards?status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	status, err := statusParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cards, err := h.service.List(ctx, userID, status)
	if err != nil {
		h.logFailure(ctx, "card list failed", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToCardResponses(cards))
}

// HandleGet handles GET /credit-cards/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	cardID, err := id.ParseCardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, err := h.service.Get(ctx, userID, cardID)
	if err != nil {
		h.logFailure(ctx, "card lookup failed", err,
			"request_id", requestcontext.RequestID(ctx), "card_id", cardID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToCardResponse(card))
}

// HandleCount handles GET /credit-cards/count?userId=&status=.
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter models.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("userId")); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.UserID = &userID
	}
	status, err := statusParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.Status = status

	n, err := h.service.Count(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "card count failed", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.CountResponse{Count: n})
}

// HandleOverride handles PATCH /credit-cards/ruv/{ruv}.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := strings.TrimSpace(chi.URLParam(r, "ruv"))

	var req models.UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, err := h.service.Override(ctx, reference, req.Status)
	if err != nil {
		h.logFailure(ctx, "status override failed", err,
			"request_id", requestcontext.RequestID(ctx), "reference", reference)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "card status overridden",
		"request_id", requestcontext.RequestID(ctx),
		"reference", reference,
		"status", string(card.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, models.ToCardResponse(card))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// logFailure logs server-side failures at error level and client mistakes at info.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	if httputil.StatusFor(dErrors.GetCode(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.InfoContext(ctx, msg, attrs...)
}

func statusParam(r *http.Request) (*models.Status, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	status, err := models.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

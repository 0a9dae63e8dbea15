package models

import "time"

// CardResponse is the public projection of a card. Fingerprint and reference stay internal.
type CardResponse struct {
	ID             string    `json:"id"`
	Token          string    `json:"token"`
	UserID         string    `json:"userId"`
	LastFourDigits string    `json:"lastFourDigits"`
	Issuer         Issuer    `json:"issuer"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type CreateCardResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type CountResponse struct {
	Count int `json:"count"`
}

func ToCardResponse(c *CreditCard) CardResponse {
	return CardResponse{
		ID:             c.ID.String(),
		Token:          c.Token,
		UserID:         c.UserID.String(),
		LastFourDigits: c.LastFour,
		Issuer:         c.Issuer,
		Status:         c.Status,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func ToCardResponses(cards []*CreditCard) []CardResponse {
	out := make([]CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, ToCardResponse(c))
	}
	return out
}

func ToCreateCardResponse(c *CreditCard) CreateCardResponse {
	return CreateCardResponse{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		CreatedAt: c.CreatedAt,
	}
}

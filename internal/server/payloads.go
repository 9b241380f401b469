package server

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
)

var errInvalidCardID = errors.New("card id must be a positive integer")

// cardIDValue accepts card ids sent either as JSON numbers or numeric strings.
type cardIDValue uint64

func (v *cardIDValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = 0
		return nil
	}
	raw := strings.TrimSpace(strings.Trim(string(trimmed), `"`))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return errInvalidCardID
	}
	*v = cardIDValue(parsed)
	return nil
}

// cardRequestPayload also accepts the field names used by the first version of the site.
type cardRequestPayload struct {
	Author       string `json:"author"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	LegacyAuthor string `json:"cardAuthor"`
	LegacyTitle  string `json:"cardTitle"`
	LegacyBody   string `json:"cardBody"`
}

func (p cardRequestPayload) input() cards.CardInput {
	return cards.CardInput{
		Author: coalesce(p.Author, p.LegacyAuthor),
		Title:  coalesce(p.Title, p.LegacyTitle),
		Body:   coalesce(p.Body, p.LegacyBody),
	}
}

type commentRequestPayload struct {
	CardID       cardIDValue `json:"cardId"`
	Author       string      `json:"author"`
	Body         string      `json:"body"`
	LegacyAuthor string      `json:"commentAuthor"`
	LegacyBody   string      `json:"commentBody"`
}

type likeRequestPayload struct {
	CardID cardIDValue `json:"cardId"`
}

type cardDetailResponse struct {
	Card     cards.PublicCard      `json:"card"`
	Comments []cards.PublicComment `json:"comments"`
}

type commentResponse struct {
	Status  string              `json:"status"`
	Comment cards.PublicComment `json:"comment"`
}

type likeResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LikeCount int64  `json:"like_count"`
}

type aiReplyResponse struct {
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	AIResponse string           `json:"ai_response"`
	Card       cards.PublicCard `json:"card"`
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func coalesce(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

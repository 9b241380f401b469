package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/metrics"
)

const (
	statusSuccess         = "success"
	messageLikeRecorded   = "Like recorded and card count updated."
	messageAlreadyLiked   = "This card has already been liked from this device and network."
	messageAIReplyCreated = "Tarjeta con IA publicada exitosamente"
	messageNoRoomForReply = "The body leaves no room for an AI reply."
)

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	order := cards.ParseSortOrder(c.Param("sortType"))
	list, err := h.cardsService.ListSorted(c.Request.Context(), order, limit)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards.SanitizeCards(list))
}

func (h *httpHandler) handleGetCard(c *gin.Context) {
	cardID, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || cardID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}

	card, err := h.cardsService.GetCard(c.Request.Context(), cardID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	comments, err := h.cardsService.GetComments(c.Request.Context(), cardID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, cardDetailResponse{
		Card:     cards.SanitizeCard(card),
		Comments: cards.SanitizeComments(comments),
	})
}

func (h *httpHandler) handleCreateCard(c *gin.Context) {
	var request cardRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	input := withIdentity(c, request.input())
	card, err := h.cardsService.CreateCard(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.CardCreated(metrics.SourceManual)
	}
	c.JSON(http.StatusCreated, cards.SanitizeCard(card))
}

func (h *httpHandler) handleCreateCardWithReply(c *gin.Context) {
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant_unavailable"})
		return
	}

	var request cardRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	input := withIdentity(c, request.input())
	if err := cards.ValidateCardInput(input); err != nil {
		h.writeServiceError(c, err)
		return
	}
	input.Body = strings.TrimSpace(input.Body)
	if assistant.ReplyBudget(input.Body) < assistant.MinReplyLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": messageNoRoomForReply})
		return
	}

	generated, err := h.assistant.GenerateReply(c.Request.Context(), assistant.Prompt{
		Author: input.Author,
		Title:  input.Title,
		Body:   input.Body,
	})
	if err != nil {
		h.logger.Warn("assistant reply failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "assistant_failed"})
		return
	}

	var reply string
	input.Body, reply = assistant.ComposeBody(input.Body, generated)
	if reply == "" {
		h.logger.Warn("assistant reply empty after composing")
		c.JSON(http.StatusBadGateway, gin.H{"error": "assistant_failed"})
		return
	}

	card, err := h.cardsService.CreateCard(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.CardCreated(metrics.SourceAssistant)
	}
	c.JSON(http.StatusCreated, aiReplyResponse{
		Status:     statusSuccess,
		Message:    messageAIReplyCreated,
		AIResponse: reply,
		Card:       cards.SanitizeCard(card),
	})
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBindError(c, err)
		return
	}
	if request.CardID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}

	resolved, _ := identity.FromGin(c)
	comment, err := h.cardsService.CreateComment(c.Request.Context(), cards.CommentInput{
		CardID:    uint64(request.CardID),
		Author:    coalesce(request.Author, request.LegacyAuthor),
		Body:      coalesce(request.Body, request.LegacyBody),
		IPAddress: resolved.IPAddress,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.CommentCreated()
	}
	c.JSON(http.StatusCreated, commentResponse{
		Status:  statusSuccess,
		Comment: cards.SanitizeComment(comment),
	})
}

func (h *httpHandler) handleLike(c *gin.Context) {
	var request likeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBindError(c, err)
		return
	}
	if request.CardID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}

	resolved, _ := identity.FromGin(c)
	result, err := h.cardsService.LikeCard(c.Request.Context(), cards.LikeInput{
		CardID:    uint64(request.CardID),
		IPAddress: resolved.IPAddress,
		DeviceID:  resolved.DeviceID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.LikeRecorded(string(result.Status))
	}

	message := messageLikeRecorded
	if result.Status == cards.LikeStatusAlreadyLiked {
		message = messageAlreadyLiked
	}
	c.JSON(http.StatusOK, likeResponse{
		Status:    string(result.Status),
		Message:   message,
		LikeCount: result.Card.LikeCount,
	})
}

// withIdentity attaches the resolved client identity; bodies never carry it.
func withIdentity(c *gin.Context, input cards.CardInput) cards.CardInput {
	resolved, _ := identity.FromGin(c)
	input.IPAddress = resolved.IPAddress
	input.DeviceID = resolved.DeviceID
	return input
}

func writeBindError(c *gin.Context, err error) {
	if errors.Is(err, errInvalidCardID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}

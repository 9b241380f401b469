package cards

import "time"

// PublicCard is the externally visible projection of a Card. It deliberately has no
// fields for the creator's IP address or device token.
type PublicCard struct {
	ID           uint64    `json:"id"`
	Author       string    `json:"card_author"`
	Title        string    `json:"card_title"`
	Body         string    `json:"card_body"`
	CreatedAt    time.Time `json:"card_date"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
}

// PublicComment is the externally visible projection of a Comment.
type PublicComment struct {
	ID        uint64    `json:"id"`
	CardID    uint64    `json:"card_id"`
	Author    string    `json:"comment_author"`
	Body      string    `json:"comment_body"`
	CreatedAt time.Time `json:"comment_date"`
}

// SanitizeCard strips server-internal fields from a card.
func SanitizeCard(card Card) PublicCard {
	return PublicCard{
		ID:           card.ID,
		Author:       card.Author,
		Title:        card.Title,
		Body:         card.Body,
		CreatedAt:    card.CreatedAt,
		LikeCount:    card.LikeCount,
		CommentCount: card.CommentCount,
	}
}

// SanitizeCards strips server-internal fields from every card, preserving order.
func SanitizeCards(cards []Card) []PublicCard {
	sanitized := make([]PublicCard, 0, len(cards))
	for _, card := range cards {
		sanitized = append(sanitized, SanitizeCard(card))
	}
	return sanitized
}

// SanitizeComment strips server-internal fields from a comment.
func SanitizeComment(comment Comment) PublicComment {
	return PublicComment{
		ID:        comment.ID,
		CardID:    comment.CardID,
		Author:    comment.Author,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
}

// SanitizeComments strips server-internal fields from every comment, preserving order.
func SanitizeComments(comments []Comment) []PublicComment {
	sanitized := make([]PublicComment, 0, len(comments))
	for _, comment := range comments {
		sanitized = append(sanitized, SanitizeComment(comment))
	}
	return sanitized
}

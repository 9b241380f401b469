package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	columnID           = "id"
	columnCommentCount = "comment_count"
	columnLikeCount    = "like_count"
	queryCardID        = "card_id = ?"
	queryID            = "id = ?"
	orderCommentsDesc  = "comment_date DESC, id DESC"
)

// CreateCard validates and stores a new card with zeroed counters.
func (s *Service) CreateCard(ctx context.Context, input CardInput) (Card, error) {
	author, title, body, err := normalizeCardInput(input)
	if err != nil {
		return Card{}, err
	}

	db, cancel, err := s.withStore(ctx, opCreateCard)
	defer cancel()
	if err != nil {
		return Card{}, err
	}

	card := Card{
		Author:       author,
		Title:        title,
		Body:         body,
		CreatedAt:    s.now(),
		LikeCount:    0,
		CommentCount: 0,
		IPAddress:    strings.TrimSpace(input.IPAddress),
		DeviceID:     strings.TrimSpace(input.DeviceID),
	}
	if err := db.Create(&card).Error; err != nil {
		s.logError(opCreateCard, reasonInsert, err, zap.String(fieldIPAddress, card.IPAddress))
		return Card{}, storeError(opCreateCard, reasonInsert, err)
	}
	return card, nil
}

// CreateComment stores a comment and increments the parent card's comment counter in
// one transaction. Comments on unknown cards are rejected with ErrNotFound.
func (s *Service) CreateComment(ctx context.Context, input CommentInput) (Comment, error) {
	if input.CardID == 0 {
		return Comment{}, validationError(opCreateComment, reasonMissingID, errMissingCardID)
	}
	author, err := normalizeAuthor(opCreateComment, input.Author)
	if err != nil {
		return Comment{}, err
	}
	body, err := normalizeRequired(opCreateComment, reasonBody, input.Body, maxCommentBodyLength, errEmptyBody)
	if err != nil {
		return Comment{}, err
	}

	db, cancel, err := s.withStore(ctx, opCreateComment)
	defer cancel()
	if err != nil {
		return Comment{}, err
	}

	comment := Comment{
		CardID:    input.CardID,
		Author:    author,
		Body:      body,
		CreatedAt: s.now(),
		IPAddress: strings.TrimSpace(input.IPAddress),
	}
	transactionError := db.Transaction(func(transaction *gorm.DB) error {
		update := transaction.Model(&Card{}).
			Where(queryID, input.CardID).
			UpdateColumn(columnCommentCount, gorm.Expr(columnCommentCount+" + 1"))
		if update.Error != nil {
			s.logError(opCreateComment, reasonCounter, update.Error, zap.Uint64(fieldCardID, input.CardID))
			return storeError(opCreateComment, reasonCounter, update.Error)
		}
		if update.RowsAffected == 0 {
			return notFoundError(opCreateComment)
		}
		if err := transaction.Create(&comment).Error; err != nil {
			s.logError(opCreateComment, reasonInsert, err, zap.Uint64(fieldCardID, input.CardID))
			return storeError(opCreateComment, reasonInsert, err)
		}
		return nil
	})
	if transactionError != nil {
		var serviceErr *ServiceError
		if errors.As(transactionError, &serviceErr) {
			return Comment{}, transactionError
		}
		s.logError(opCreateComment, reasonQuery, transactionError, zap.Uint64(fieldCardID, input.CardID))
		return Comment{}, storeError(opCreateComment, reasonQuery, transactionError)
	}
	return comment, nil
}

// GetCard loads a single card.
func (s *Service) GetCard(ctx context.Context, cardID uint64) (Card, error) {
	db, cancel, err := s.withStore(ctx, opGetCard)
	defer cancel()
	if err != nil {
		return Card{}, err
	}

	var card Card
	err = db.Where(queryID, cardID).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Card{}, notFoundError(opGetCard)
	}
	if err != nil {
		s.logError(opGetCard, reasonQuery, err, zap.Uint64(fieldCardID, cardID))
		return Card{}, storeError(opGetCard, reasonQuery, err)
	}
	return card, nil
}

// GetComments returns the comments of a card, newest first.
func (s *Service) GetComments(ctx context.Context, cardID uint64) ([]Comment, error) {
	db, cancel, err := s.withStore(ctx, opGetComments)
	defer cancel()
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0)
	if err := db.Where(queryCardID, cardID).Order(orderCommentsDesc).Find(&comments).Error; err != nil {
		s.logError(opGetComments, reasonQuery, err, zap.Uint64(fieldCardID, cardID))
		return nil, storeError(opGetComments, reasonQuery, err)
	}
	return comments, nil
}

func normalizeCardInput(input CardInput) (string, string, string, error) {
	author, err := normalizeAuthor(opCreateCard, input.Author)
	if err != nil {
		return "", "", "", err
	}
	title, err := normalizeRequired(opCreateCard, reasonTitle, input.Title, maxTitleLength, errEmptyTitle)
	if err != nil {
		return "", "", "", err
	}
	body, err := normalizeRequired(opCreateCard, reasonBody, input.Body, MaxCardBodyLength, errEmptyBody)
	if err != nil {
		return "", "", "", err
	}
	return author, title, body, nil
}

func normalizeAuthor(operation, raw string) (string, error) {
	author := strings.TrimSpace(raw)
	if author == "" {
		return DefaultAuthor, nil
	}
	if utf8.RuneCountInString(author) > maxAuthorLength {
		return "", validationError(operation, reasonAuthor, fmt.Errorf("%w: %d characters", errTooLong, maxAuthorLength))
	}
	return author, nil
}

func normalizeRequired(operation, reason, raw string, maxLength int, emptyErr error) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", validationError(operation, reason, emptyErr)
	}
	if utf8.RuneCountInString(value) > maxLength {
		return "", validationError(operation, reason, fmt.Errorf("%w: %d characters", errTooLong, maxLength))
	}
	return value, nil
}

// ValidateCardInput reports whether a card submission would be accepted by CreateCard.
// Callers that do expensive work before storing a card use it to fail fast.
func ValidateCardInput(input CardInput) error {
	_, _, _, err := normalizeCardInput(input)
	return err
}

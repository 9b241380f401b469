package cards

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeCard records at most one like per (card, ip, device) identity and increments the
// card's like counter in the same transaction. The unique index on likes arbitrates
// concurrent requests; a repeated identity yields LikeStatusAlreadyLiked without any
// mutation.
func (s *Service) LikeCard(ctx context.Context, input LikeInput) (LikeResult, error) {
	if input.CardID == 0 {
		return LikeResult{}, validationError(opLikeCard, reasonMissingID, errMissingCardID)
	}

	db, cancel, err := s.withStore(ctx, opLikeCard)
	defer cancel()
	if err != nil {
		return LikeResult{}, err
	}

	identityFields := []zap.Field{
		zap.Uint64(fieldCardID, input.CardID),
		zap.String(fieldIPAddress, input.IPAddress),
		zap.String(fieldDeviceID, input.DeviceID),
	}

	var result LikeResult
	transactionError := db.Transaction(func(transaction *gorm.DB) error {
		var existing Card
		err := transaction.Select(columnID).Where(queryID, input.CardID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(opLikeCard)
		}
		if err != nil {
			s.logError(opLikeCard, reasonQuery, err, identityFields...)
			return storeError(opLikeCard, reasonQuery, err)
		}

		like := Like{
			CardID:    input.CardID,
			IPAddress: strings.TrimSpace(input.IPAddress),
			DeviceID:  strings.TrimSpace(input.DeviceID),
			LikedAt:   s.now(),
		}
		insert := transaction.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if insert.Error != nil {
			s.logError(opLikeCard, reasonInsert, insert.Error, identityFields...)
			return storeError(opLikeCard, reasonInsert, insert.Error)
		}

		if insert.RowsAffected == 0 {
			result.Status = LikeStatusAlreadyLiked
		} else {
			update := transaction.Model(&Card{}).
				Where(queryID, input.CardID).
				UpdateColumn(columnLikeCount, gorm.Expr(columnLikeCount+" + 1"))
			if update.Error != nil {
				s.logError(opLikeCard, reasonCounter, update.Error, identityFields...)
				return storeError(opLikeCard, reasonCounter, update.Error)
			}
			if update.RowsAffected != 1 {
				s.logFatal(opLikeCard, reasonCounter, errCounterNotMoved,
					append(identityFields, zap.Int64("rows_affected", update.RowsAffected))...)
				return newServiceError(opLikeCard, reasonCounter, ErrFatal, errCounterNotMoved)
			}
			result.Status = LikeStatusSuccess
		}

		if err := transaction.Where(queryID, input.CardID).Take(&result.Card).Error; err != nil {
			s.logError(opLikeCard, reasonQuery, err, identityFields...)
			return storeError(opLikeCard, reasonQuery, err)
		}
		return nil
	})
	if transactionError != nil {
		var serviceErr *ServiceError
		if errors.As(transactionError, &serviceErr) {
			return LikeResult{}, transactionError
		}
		s.logError(opLikeCard, reasonQuery, transactionError, identityFields...)
		return LikeResult{}, storeError(opLikeCard, reasonQuery, transactionError)
	}
	return result, nil
}

func (s *Service) logFatal(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Bool("fatal", true),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("cards invariant violated", attrs...)
}

package cards

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SortOrder enumerates the supported feed orderings.
type SortOrder string

const (
	// SortNewest orders cards by creation time, newest first.
	SortNewest SortOrder = "newest"
	// SortOldest orders cards by creation time, oldest first.
	SortOldest SortOrder = "oldest"
	// SortMostLiked orders cards by like count, ties newest first.
	SortMostLiked SortOrder = "likes"
	// SortMostCommented orders cards by comment count, ties newest first.
	SortMostCommented SortOrder = "comments"
)

var sortClauses = map[SortOrder]string{
	SortNewest:        "card_date DESC, id DESC",
	SortOldest:        "card_date ASC, id ASC",
	SortMostLiked:     "like_count DESC, card_date DESC, id DESC",
	SortMostCommented: "comment_count DESC, card_date DESC, id DESC",
}

// ParseSortOrder maps a feed path segment to a SortOrder; unknown values fall back to newest.
func ParseSortOrder(raw string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SortOldest):
		return SortOldest
	case string(SortMostLiked), "mostliked":
		return SortMostLiked
	case string(SortMostCommented), "mostcommented":
		return SortMostCommented
	default:
		return SortNewest
	}
}

// ListSorted returns up to limit cards in the requested order. A non-positive limit uses
// the service default; limits above the configured maximum are clamped.
func (s *Service) ListSorted(ctx context.Context, order SortOrder, limit int) ([]Card, error) {
	db, cancel, err := s.withStore(ctx, opListSorted)
	defer cancel()
	if err != nil {
		return nil, err
	}

	orderClause, ok := sortClauses[order]
	if !ok {
		orderClause = sortClauses[SortNewest]
	}

	cards := make([]Card, 0)
	if err := db.Order(orderClause).Limit(s.effectiveLimit(limit)).Find(&cards).Error; err != nil {
		s.logError(opListSorted, reasonQuery, err, zap.String("sort_order", string(order)))
		return nil, storeError(opListSorted, reasonQuery, err)
	}
	return cards, nil
}

func (s *Service) effectiveLimit(limit int) int {
	if limit <= 0 {
		return s.feedLimit
	}
	if limit > s.maxFeedLimit {
		return s.maxFeedLimit
	}
	return limit
}

package cards

import (
	"time"
)

// DefaultAuthor is stored when a card or comment is submitted without an author.
const DefaultAuthor = "anónimo"

const (
	maxAuthorLength      = 64
	maxTitleLength       = 200
	// MaxCardBodyLength bounds a stored card body in runes, generated replies included.
	MaxCardBodyLength    = 5000
	maxCommentBodyLength = 2000
)

// Card models a persisted post together with its derived counters.
type Card struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Author       string    `gorm:"column:card_author;size:190;not null"`
	Title        string    `gorm:"column:card_title;size:255;not null"`
	Body         string    `gorm:"column:card_body;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:card_date;not null;index:idx_cards_date"`
	LikeCount    int64     `gorm:"column:like_count;not null;default:0;index:idx_cards_likes"`
	CommentCount int64     `gorm:"column:comment_count;not null;default:0;index:idx_cards_comments"`
	IPAddress    string    `gorm:"column:ip_address;size:64;not null;default:''"`
	DeviceID     string    `gorm:"column:device_id;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Card) TableName() string {
	return "cards"
}

// Comment models a persisted comment attached to a card.
type Comment struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CardID    uint64    `gorm:"column:card_id;not null;index:idx_comments_card_date,priority:1"`
	Author    string    `gorm:"column:comment_author;size:190;not null"`
	Body      string    `gorm:"column:comment_body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:comment_date;not null;index:idx_comments_card_date,priority:2"`
	IPAddress string    `gorm:"column:ip_address;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// Like records a single identity's like on a card. DeviceID is stored as an empty
// string when absent so that the unique index treats "no device" as one value.
type Like struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CardID    uint64    `gorm:"column:card_id;not null;uniqueIndex:idx_likes_identity,priority:1"`
	IPAddress string    `gorm:"column:ip_address;size:64;not null;uniqueIndex:idx_likes_identity,priority:2"`
	DeviceID  string    `gorm:"column:device_id;size:64;not null;default:'';uniqueIndex:idx_likes_identity,priority:3"`
	LikedAt   time.Time `gorm:"column:liked_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "likes"
}

// Models lists every persisted model owned by this package, in migration order.
func Models() []any {
	return []any{&Card{}, &Comment{}, &Like{}}
}

// CardInput describes a card submission.
type CardInput struct {
	Author    string
	Title     string
	Body      string
	IPAddress string
	DeviceID  string
}

// CommentInput describes a comment submission.
type CommentInput struct {
	CardID    uint64
	Author    string
	Body      string
	IPAddress string
}

// LikeInput identifies who is liking which card.
type LikeInput struct {
	CardID    uint64
	IPAddress string
	DeviceID  string
}

// LikeStatus enumerates the outcomes of a like request.
type LikeStatus string

const (
	// LikeStatusSuccess reports that a new like was recorded.
	LikeStatusSuccess LikeStatus = "success"
	// LikeStatusAlreadyLiked reports that the identity had already liked the card.
	LikeStatusAlreadyLiked LikeStatus = "already_liked"
)

// LikeResult captures the outcome of LikeCard together with the card as stored afterwards.
type LikeResult struct {
	Status LikeStatus
	Card   Card
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/abuse"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/metrics"
)

var (
	errMissingCardsService = errors.New("cards service dependency required")
	errMissingGuard        = errors.New("abuse guard dependency required")
	errMissingResolver     = errors.New("identity resolver dependency required")
)

// CardsService is the content, engagement and feed surface used by the handlers.
type CardsService interface {
	CreateCard(ctx context.Context, input cards.CardInput) (cards.Card, error)
	CreateComment(ctx context.Context, input cards.CommentInput) (cards.Comment, error)
	GetCard(ctx context.Context, cardID uint64) (cards.Card, error)
	GetComments(ctx context.Context, cardID uint64) ([]cards.Comment, error)
	ListSorted(ctx context.Context, order cards.SortOrder, limit int) ([]cards.Card, error)
	LikeCard(ctx context.Context, input cards.LikeInput) (cards.LikeResult, error)
}

// Guard admits or rejects a request of an endpoint class for a client address.
type Guard interface {
	Allow(ctx context.Context, class abuse.Class, ipAddress string) error
}

// Dependencies wires the HTTP surface. Assistant and Metrics are optional.
type Dependencies struct {
	CardsService   CardsService
	Guard          Guard
	Resolver       *identity.Resolver
	Assistant      assistant.Generator
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin engine and wraps it with the path aliases.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.CardsService == nil {
		return nil, errMissingCardsService
	}
	if deps.Guard == nil {
		return nil, errMissingGuard
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(identity.Middleware(deps.Resolver))

	handler := &httpHandler{
		cardsService: deps.CardsService,
		guard:        deps.Guard,
		assistant:    deps.Assistant,
		metrics:      deps.Metrics,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/feed/:sortType", gzip.Gzip(gzip.DefaultCompression), handler.handleFeed)
	router.GET("/cards/:id", handler.handleGetCard)
	router.POST("/cards", handler.limit(abuse.ClassPost), handler.handleCreateCard)
	router.POST(aiReplyRoute, handler.limit(abuse.ClassPost), handler.handleCreateCardWithReply)
	router.POST("/comments", handler.limit(abuse.ClassComment), handler.handleCreateComment)
	router.POST("/likes", handler.limit(abuse.ClassLike), handler.handleLike)

	return newAliasHandler(router), nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", requestIDHeader},
		ExposeHeaders:    []string{"Retry-After", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	cardsService CardsService
	guard        Guard
	assistant    assistant.Generator
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

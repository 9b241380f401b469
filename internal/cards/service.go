package cards

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultFeedLimit    = 100
	defaultMaxFeedLimit = 500
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the card service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	Logger       *zap.Logger
	StoreTimeout time.Duration
	FeedLimit    int
	MaxFeedLimit int
}

// Service implements content, engagement and feed operations over the relational store.
// It keeps no state between calls, so any number of replicas may share one database.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	logger       *zap.Logger
	storeTimeout time.Duration
	feedLimit    int
	maxFeedLimit int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, ErrTransient, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	maxFeedLimit := cfg.MaxFeedLimit
	if maxFeedLimit <= 0 {
		maxFeedLimit = defaultMaxFeedLimit
	}
	feedLimit := cfg.FeedLimit
	if feedLimit <= 0 {
		feedLimit = defaultFeedLimit
	}
	if feedLimit > maxFeedLimit {
		feedLimit = maxFeedLimit
	}

	return &Service{
		db:           cfg.Database,
		clock:        clock,
		logger:       logger,
		storeTimeout: storeTimeout,
		feedLimit:    feedLimit,
		maxFeedLimit: maxFeedLimit,
	}, nil
}

// withStore bounds a store interaction by the configured timeout.
func (s *Service) withStore(ctx context.Context, operation string) (*gorm.DB, context.CancelFunc, error) {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return nil, func() {}, newServiceError(operation, reasonMissingDB, ErrTransient, errMissingDatabase)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	return s.db.WithContext(storeCtx), cancel, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	if errors.Is(err, context.Canceled) {
		s.loggerOrDefault().Info("cards request canceled", attrs...)
		return
	}
	s.loggerOrDefault().Error("cards service error", attrs...)
}

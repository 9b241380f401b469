package abuse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Class identifies an endpoint family with its own request ceiling.
type Class string

const (
	// ClassPost covers card creation, including AI-assisted posts.
	ClassPost Class = "post"
	// ClassComment covers comment creation.
	ClassComment Class = "comment"
	// ClassLike covers like requests.
	ClassLike Class = "like"
)

var (
	// ErrRateLimited is matched by every rejection issued by the guard.
	ErrRateLimited = errors.New("abuse: rate limit exceeded")
	// ErrUnavailable reports that the counter store could not be consulted. The guard
	// fails closed in that case.
	ErrUnavailable = errors.New("abuse: counter store unavailable")

	errMissingStore = errors.New("abuse: counter store is required")
	errInvalidLimit = errors.New("abuse: invalid limit")
)

// Limit is the ceiling of requests allowed per window. Requests 1..Requests pass.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits mirrors the ceilings the site has run with: posts tightest.
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassPost:    {Requests: 2, Window: 5 * time.Minute},
		ClassComment: {Requests: 2, Window: time.Minute},
		ClassLike:    {Requests: 3, Window: time.Minute},
	}
}

// RateLimitedError describes a rejected request.
type RateLimitedError struct {
	Class      Class
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("abuse: %s limit of %d exceeded, retry after %s", e.Class, e.Limit, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, never below one.
func (e *RateLimitedError) RetryAfterSeconds() int {
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Window is the state of one fixed window after an increment.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// CounterStore counts requests per key inside fixed windows. The first increment of a key
// opens a window of the given length; the counter restarts once it elapses.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Observer is notified about rejections, e.g. to feed metrics.
type Observer interface {
	RateLimited(class Class)
}

// GuardConfig describes the dependencies of a Guard.
type GuardConfig struct {
	Store    CounterStore
	Limits   map[Class]Limit
	Logger   *zap.Logger
	Clock    func() time.Time
	Observer Observer
}

// Guard is a fixed-window rate limiter keyed by endpoint class and client IP.
type Guard struct {
	store    CounterStore
	limits   map[Class]Limit
	logger   *zap.Logger
	clock    func() time.Time
	observer Observer
}

// NewGuard validates the configured limits and builds a Guard.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	limits := cfg.Limits
	if len(limits) == 0 {
		limits = DefaultLimits()
	}
	copied := make(map[Class]Limit, len(limits))
	for class, limit := range limits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			return nil, fmt.Errorf("%w: %s requires positive requests and window", errInvalidLimit, class)
		}
		copied[class] = limit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Guard{
		store:    cfg.Store,
		limits:   copied,
		logger:   logger,
		clock:    clock,
		observer: cfg.Observer,
	}, nil
}

// Allow counts the request and returns nil when it fits the class ceiling, a
// *RateLimitedError when it does not, and an ErrUnavailable-wrapping error when the
// counter store fails. Classes without a configured limit are not limited.
func (g *Guard) Allow(ctx context.Context, class Class, ipAddress string) error {
	limit, ok := g.limits[class]
	if !ok {
		return nil
	}

	key := counterKey(class, ipAddress)
	window, err := g.store.Increment(ctx, key, limit.Window)
	if err != nil {
		g.logger.Error("rate limit check failed, rejecting request",
			zap.String("class", string(class)),
			zap.String("client_ip", ipAddress),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if window.Count <= int64(limit.Requests) {
		return nil
	}

	retryAfter := window.ResetAt.Sub(g.clock())
	if retryAfter < 0 {
		retryAfter = 0
	}
	g.logger.Warn("rate limit exceeded",
		zap.String("class", string(class)),
		zap.String("client_ip", ipAddress),
		zap.Int("max_requests", limit.Requests),
		zap.Int64("current_requests", window.Count))
	if g.observer != nil {
		g.observer.RateLimited(class)
	}
	return &RateLimitedError{Class: class, Limit: limit.Requests, RetryAfter: retryAfter}
}

// Limit reports the configured limit of a class.
func (g *Guard) Limit(class Class) (Limit, bool) {
	limit, ok := g.limits[class]
	return limit, ok
}

func counterKey(class Class, ipAddress string) string {
	ip := strings.TrimSpace(ipAddress)
	if ip == "" {
		ip = "unknown"
	}
	return fmt.Sprintf("rate_limit:%s:%s", class, ip)
}

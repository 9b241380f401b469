package cards

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newSteppingClock(start time.Time, step time.Duration) *steppingClock {
	return &steppingClock{current: start, step: step}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:atlacatl_cards_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := newTestDatabase(t)
	clock := newSteppingClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock.Now,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct cards service: %v", err)
	}
	return service, db
}

func mustCreateCard(t *testing.T, service *Service, title string) Card {
	t.Helper()
	card, err := service.CreateCard(context.Background(), CardInput{
		Author:    "tester",
		Title:     title,
		Body:      "body of " + title,
		IPAddress: "203.0.113.10",
		DeviceID:  "device-author",
	})
	if err != nil {
		t.Fatalf("unexpected create card error: %v", err)
	}
	return card
}

package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
)

func TestAuthorizeCeiling(t *testing.T) {
	store := records.NewMemoryStore()
	c := NewController(store, config.RateLimitWindow, config.RateLimitCeiling)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < config.RateLimitCeiling; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		if err := c.Authorize(ctx, "u1", now); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i+1, err)
		}
	}

	err := c.Authorize(ctx, "u1", start.Add(30*time.Minute))
	if !errors.Is(err, flipbook.ErrRateLimited) {
		t.Fatalf("check 21 = %v, want ErrRateLimited", err)
	}
}

func TestAuthorizeLazyReset(t *testing.T) {
	store := records.NewMemoryStore()
	c := NewController(store, time.Hour, 3)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := c.Authorize(ctx, "u1", start); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := c.Authorize(ctx, "u1", start.Add(59*time.Minute)); !errors.Is(err, flipbook.ErrRateLimited) {
		t.Fatalf("saturated window = %v, want ErrRateLimited", err)
	}

	// One full window later the next check must reset and admit, even
	// though the previous window was maxed out.
	afterWindow := start.Add(time.Hour)
	if err := c.Authorize(ctx, "u1", afterWindow); err != nil {
		t.Fatalf("post-window check = %v, want admit", err)
	}

	// The reset left count at 1, so ceiling-1 more checks fit.
	for i := 0; i < 2; i++ {
		if err := c.Authorize(ctx, "u1", afterWindow.Add(time.Minute)); err != nil {
			t.Fatalf("check after reset: %v", err)
		}
	}
	if err := c.Authorize(ctx, "u1", afterWindow.Add(2*time.Minute)); !errors.Is(err, flipbook.ErrRateLimited) {
		t.Fatalf("refilled window = %v, want ErrRateLimited", err)
	}
}

func TestAuthorizeIsolatesIdentifiers(t *testing.T) {
	store := records.NewMemoryStore()
	c := NewController(store, time.Hour, 1)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := c.Authorize(ctx, "u1", now); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if err := c.Authorize(ctx, "u2", now); err != nil {
		t.Fatalf("u2 must have its own window: %v", err)
	}
	if err := c.Authorize(ctx, "u1", now); !errors.Is(err, flipbook.ErrRateLimited) {
		t.Fatalf("u1 second check = %v, want ErrRateLimited", err)
	}
}

func TestAuthorizeEmptyIdentifier(t *testing.T) {
	c := NewController(records.NewMemoryStore(), time.Hour, 1)
	if err := c.Authorize(context.Background(), "", time.Now()); err == nil {
		t.Fatal("empty identifier must be rejected")
	}
}

func TestQuota(t *testing.T) {
	store := records.NewMemoryStore()
	q := NewQuota(store, 2)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := q.CanCreate(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("CanCreate on empty store = (%v, %v), want (true, nil)", ok, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Create(ctx, &flipbook.Document{Identifier: "u1", CreatedAt: now}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ok, err = q.CanCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("CanCreate: %v", err)
	}
	if ok {
		t.Fatal("CanCreate at ceiling = true, want false")
	}

	// Another identifier's documents do not count against u2.
	ok, err = q.CanCreate(ctx, "u2")
	if err != nil || !ok {
		t.Fatalf("CanCreate for u2 = (%v, %v), want (true, nil)", ok, err)
	}
}

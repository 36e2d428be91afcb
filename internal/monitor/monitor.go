// Package monitor implements the three background schedulers: event
// discovery, price-alert evaluation and watchlist context-change detection.
// Each scheduler owns its loop and talks to the store, the market data
// gateway and the notification dispatcher through explicit handles.
package monitor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydictions/polydictions/internal/models"
)

// Notifier dispatches notifications to users and the broadcast channel.
type Notifier interface {
	SendToUser(userID int64, text string) bool
	SendToChannel(text string) bool
}

// MarketData is the market data gateway consumed by the schedulers.
type MarketData interface {
	FetchRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	FetchEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	FetchMarketContext(ctx context.Context, slug string) (string, error)
}

// newThrottle builds a limiter that spaces calls by delay. A zero delay
// disables throttling.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// pricePercent converts an outcome price to a 0-100 percentage. Values at or
// below 1 are fractions and get scaled; values above 1 are already
// percentages. Keep this rule in sync with message formatting.
func pricePercent(price float64) float64 {
	if price <= 1 {
		return price * 100
	}
	return price
}

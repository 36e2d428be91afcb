// Package models defines the persisted entities and the Polymarket API payloads.
package models

import (
	"errors"
	"regexp"
	"time"
)

// User is a Telegram user subscribed to the bot.
type User struct {
	ID           int64
	TelegramID   int64
	IsPaused     bool
	NewsInterval time.Duration // per-user watchlist check interval
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PriceAlert fires at most once when an outcome price crosses its threshold.
type PriceAlert struct {
	ID           int64
	UserID       int64
	EventSlug    string
	Condition    string // ">" or "<"
	Threshold    float64
	OutcomeIndex int
	IsTriggered  bool
	CreatedAt    time.Time
	TriggeredAt  time.Time // zero while the alert is active
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateSlug checks an event slug for shape and length.
func ValidateSlug(slug string) error {
	if len(slug) < 3 || len(slug) > 200 {
		return errors.New("slug must be between 3 and 200 characters")
	}
	if !slugPattern.MatchString(slug) {
		return errors.New("slug may only contain lowercase letters, digits and hyphens")
	}
	return nil
}

// Validate checks alert field constraints.
func (a *PriceAlert) Validate() error {
	if err := ValidateSlug(a.EventSlug); err != nil {
		return err
	}
	if a.Condition != ">" && a.Condition != "<" {
		return errors.New(`condition must be ">" or "<"`)
	}
	if a.Threshold < 0 || a.Threshold > 100 {
		return errors.New("threshold must be between 0 and 100")
	}
	if a.OutcomeIndex < 0 {
		return errors.New("outcome index must not be negative")
	}
	return nil
}

// WatchlistItem is a (user, event slug) pair monitored for context changes.
type WatchlistItem struct {
	ID        int64
	UserID    int64
	EventSlug string
	CreatedAt time.Time
}

// SeenEvent is a dedup marker for already-examined event listings.
type SeenEvent struct {
	ID        int64
	EventID   string
	CreatedAt time.Time
}

// NewsCache holds the last known commentary fingerprint for a slug.
type NewsCache struct {
	ID             int64
	EventSlug      string
	ContextHash    string
	ContextPreview string
	UpdatedAt      time.Time
}

// PostedEvent records an event broadcast to the channel, kept for
// extension sync only.
type PostedEvent struct {
	ID        int64
	EventID   string
	EventSlug string
	Title     string
	Volume    float64
	Liquidity float64
	PostedAt  time.Time
}

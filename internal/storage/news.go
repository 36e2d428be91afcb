package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/polydictions/polydictions/internal/models"
)

// previewLen bounds the cached commentary preview.
const previewLen = 500

// GetNewsCache returns the cached fingerprint for a slug, or (nil, nil) when
// the slug has never been cached.
func (s *Storage) GetNewsCache(eventSlug string) (*models.NewsCache, error) {
	row := s.db.QueryRow(`
		SELECT id, event_slug, context_hash, context_preview, updated_at
		FROM news_cache WHERE event_slug = ?`, eventSlug)

	var c models.NewsCache
	var updatedAtNano int64
	err := row.Scan(&c.ID, &c.EventSlug, &c.ContextHash, &c.ContextPreview, &updatedAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get news cache: %w", err)
	}
	c.UpdatedAt = time.Unix(0, updatedAtNano)
	return &c, nil
}

// UpdateNewsCache upserts the fingerprint for a slug and reports whether the
// content changed. The first sighting of a slug caches silently and reports
// unchanged, so callers never notify on initial backfill.
func (s *Storage) UpdateNewsCache(eventSlug, contextHash, contextPreview string) (bool, error) {
	if len(contextPreview) > previewLen {
		contextPreview = contextPreview[:previewLen]
	}

	cached, err := s.GetNewsCache(eventSlug)
	if err != nil {
		return false, err
	}

	now := time.Now().UnixNano()

	if cached == nil {
		_, err := s.db.Exec(`
			INSERT INTO news_cache (event_slug, context_hash, context_preview, updated_at)
			VALUES (?, ?, ?, ?)`, eventSlug, contextHash, contextPreview, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert news cache: %w", err)
		}
		return false, nil
	}

	if cached.ContextHash == contextHash {
		return false, nil
	}

	_, err = s.db.Exec(`
		UPDATE news_cache SET context_hash = ?, context_preview = ?, updated_at = ?
		WHERE event_slug = ?`, contextHash, contextPreview, now, eventSlug)
	if err != nil {
		return false, fmt.Errorf("failed to update news cache: %w", err)
	}
	return true, nil
}

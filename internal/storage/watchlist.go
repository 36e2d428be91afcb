package storage

import (
	"fmt"
	"time"
)

// GetUserWatchlist returns the user's watched slugs in insertion order.
func (s *Storage) GetUserWatchlist(telegramID int64) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT w.event_slug FROM watchlist w
		JOIN users u ON u.id = w.user_id
		WHERE u.telegram_id = ?
		ORDER BY w.id`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// AddToWatchlist adds a slug to the user's watchlist. Returns false when the
// pair already exists.
func (s *Storage) AddToWatchlist(telegramID int64, eventSlug string) (bool, error) {
	uid, err := s.userID(telegramID)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO watchlist (user_id, event_slug, created_at)
		VALUES (?, ?, ?)`, uid, eventSlug, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to add to watchlist: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveFromWatchlist removes a slug from the user's watchlist. Returns
// false when the pair was not present.
func (s *Storage) RemoveFromWatchlist(telegramID int64, eventSlug string) (bool, error) {
	uid, err := s.userID(telegramID)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(`DELETE FROM watchlist WHERE user_id = ? AND event_slug = ?`, uid, eventSlug)
	if err != nil {
		return false, fmt.Errorf("failed to remove from watchlist: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReplaceWatchlist replaces the user's entire watchlist in one transaction.
// Used by the extension sync API.
func (s *Storage) ReplaceWatchlist(telegramID int64, slugs []string) error {
	uid, err := s.userID(telegramID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM watchlist WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("failed to clear watchlist: %w", err)
	}
	now := time.Now().UnixNano()
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO watchlist (user_id, event_slug, created_at)
			VALUES (?, ?, ?)`, uid, slug, now); err != nil {
			return fmt.Errorf("failed to insert watchlist item: %w", err)
		}
	}

	return tx.Commit()
}

// GetAllWatchedSlugs returns every watchlist, keyed by Telegram ID.
func (s *Storage) GetAllWatchedSlugs() (map[int64][]string, error) {
	rows, err := s.db.Query(`
		SELECT u.telegram_id, w.event_slug FROM watchlist w
		JOIN users u ON u.id = w.user_id
		ORDER BY w.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlists: %w", err)
	}
	defer rows.Close()

	watchlists := make(map[int64][]string)
	for rows.Next() {
		var telegramID int64
		var slug string
		if err := rows.Scan(&telegramID, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		watchlists[telegramID] = append(watchlists[telegramID], slug)
	}
	return watchlists, rows.Err()
}

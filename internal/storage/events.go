package storage

import (
	"fmt"
	"time"

	"github.com/polydictions/polydictions/internal/models"
)

// IsEventSeen reports whether the event id is in the dedup set.
func (s *Storage) IsEventSeen(eventID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM seen_events WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check seen event: %w", err)
	}
	return n > 0, nil
}

// SeenEventCount returns the size of the dedup set.
func (s *Storage) SeenEventCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM seen_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count seen events: %w", err)
	}
	return n, nil
}

// MarkEventsSeen records the event ids in the dedup set and evicts the
// oldest entries down to maxSeen, all in one transaction.
func (s *Storage) MarkEventsSeen(eventIDs []string, maxSeen int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range eventIDs {
		if id == "" {
			continue
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO seen_events (event_id, created_at)
			VALUES (?, ?)`, id, time.Now().UnixNano()); err != nil {
			return fmt.Errorf("failed to mark event seen: %w", err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM seen_events WHERE id NOT IN (
			SELECT id FROM seen_events ORDER BY created_at DESC, id DESC LIMIT ?
		)`, maxSeen); err != nil {
		return fmt.Errorf("failed to evict seen events: %w", err)
	}

	return tx.Commit()
}

// AddPostedEvent appends a posted-event record and trims the log to the
// newest keep entries, in one transaction.
func (s *Storage) AddPostedEvent(event *models.Event, keep int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	title := event.Title
	if len(title) > 500 {
		title = title[:500]
	}
	if _, err := tx.Exec(`
		INSERT INTO posted_events (event_id, event_slug, title, volume, liquidity, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Slug, title, event.Volume, event.Liquidity,
		time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to insert posted event: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM posted_events WHERE id NOT IN (
			SELECT id FROM posted_events ORDER BY posted_at DESC, id DESC LIMIT ?
		)`, keep); err != nil {
		return fmt.Errorf("failed to trim posted events: %w", err)
	}

	return tx.Commit()
}

// GetPostedEvents returns the most recent posted events, newest first.
func (s *Storage) GetPostedEvents(limit int) ([]models.PostedEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, event_slug, title, volume, liquidity, posted_at
		FROM posted_events ORDER BY posted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posted events: %w", err)
	}
	defer rows.Close()

	var events []models.PostedEvent
	for rows.Next() {
		var p models.PostedEvent
		var postedAtNano int64
		if err := rows.Scan(&p.ID, &p.EventID, &p.EventSlug, &p.Title,
			&p.Volume, &p.Liquidity, &postedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan posted event: %w", err)
		}
		p.PostedAt = time.Unix(0, postedAtNano)
		events = append(events, p)
	}
	return events, rows.Err()
}

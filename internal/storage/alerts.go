package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/polydictions/polydictions/internal/models"
)

// ActiveAlert is an active alert joined with its owner's Telegram ID.
type ActiveAlert struct {
	TelegramID int64
	Alert      models.PriceAlert
}

const alertCols = `p.id, p.user_id, p.event_slug, p.condition, p.threshold,
	p.outcome_index, p.is_triggered, p.created_at, p.triggered_at`

func scanAlert(scan func(...any) error) (*models.PriceAlert, error) {
	var a models.PriceAlert
	var triggered int
	var createdAtNano int64
	var triggeredAtNano sql.NullInt64
	err := scan(&a.ID, &a.UserID, &a.EventSlug, &a.Condition, &a.Threshold,
		&a.OutcomeIndex, &triggered, &createdAtNano, &triggeredAtNano)
	if err != nil {
		return nil, err
	}
	a.IsTriggered = triggered != 0
	a.CreatedAt = time.Unix(0, createdAtNano)
	if triggeredAtNano.Valid {
		a.TriggeredAt = time.Unix(0, triggeredAtNano.Int64)
	}
	return &a, nil
}

// GetUserAlerts returns the user's alerts in creation order.
func (s *Storage) GetUserAlerts(telegramID int64) ([]models.PriceAlert, error) {
	rows, err := s.db.Query(`
		SELECT `+alertCols+` FROM price_alerts p
		JOIN users u ON u.id = p.user_id
		WHERE u.telegram_id = ?
		ORDER BY p.id`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// AddAlert inserts a price alert. Returns false when the identical alert
// already exists for the user.
func (s *Storage) AddAlert(telegramID int64, alert models.PriceAlert) (bool, error) {
	if err := alert.Validate(); err != nil {
		return false, fmt.Errorf("invalid alert: %w", err)
	}
	uid, err := s.userID(telegramID)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO price_alerts
			(user_id, event_slug, condition, threshold, outcome_index, is_triggered, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		uid, alert.EventSlug, alert.Condition, alert.Threshold, alert.OutcomeIndex,
		time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveAlert removes the user's alert at the given 0-based list index.
func (s *Storage) RemoveAlert(telegramID int64, index int) (bool, error) {
	alerts, err := s.GetUserAlerts(telegramID)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(alerts) {
		return false, nil
	}
	if _, err := s.db.Exec(`DELETE FROM price_alerts WHERE id = ?`, alerts[index].ID); err != nil {
		return false, fmt.Errorf("failed to remove alert: %w", err)
	}
	return true, nil
}

// GetActiveAlerts returns every non-triggered alert joined with its owner's
// Telegram ID.
func (s *Storage) GetActiveAlerts() ([]ActiveAlert, error) {
	rows, err := s.db.Query(`
		SELECT u.telegram_id, ` + alertCols + ` FROM price_alerts p
		JOIN users u ON u.id = p.user_id
		WHERE p.is_triggered = 0
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []ActiveAlert
	for rows.Next() {
		var telegramID int64
		var a models.PriceAlert
		var triggered int
		var createdAtNano int64
		var triggeredAtNano sql.NullInt64
		err := rows.Scan(&telegramID, &a.ID, &a.UserID, &a.EventSlug, &a.Condition,
			&a.Threshold, &a.OutcomeIndex, &triggered, &createdAtNano, &triggeredAtNano)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active alert: %w", err)
		}
		a.IsTriggered = triggered != 0
		a.CreatedAt = time.Unix(0, createdAtNano)
		if triggeredAtNano.Valid {
			a.TriggeredAt = time.Unix(0, triggeredAtNano.Int64)
		}
		alerts = append(alerts, ActiveAlert{TelegramID: telegramID, Alert: a})
	}
	return alerts, rows.Err()
}

// MarkAlertTriggered transitions an alert to Triggered. Idempotent: an
// already-triggered alert is left untouched.
func (s *Storage) MarkAlertTriggered(alertID int64) error {
	_, err := s.db.Exec(`
		UPDATE price_alerts SET is_triggered = 1, triggered_at = ?
		WHERE id = ? AND is_triggered = 0`,
		time.Now().UnixNano(), alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return nil
}

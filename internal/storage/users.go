package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/polydictions/polydictions/internal/models"
)

const userCols = `id, telegram_id, is_paused, news_interval, created_at, updated_at`

func scanUser(scan func(...any) error) (*models.User, error) {
	var u models.User
	var paused int
	var intervalSec int64
	var createdAtNano, updatedAtNano int64
	err := scan(&u.ID, &u.TelegramID, &paused, &intervalSec, &createdAtNano, &updatedAtNano)
	if err != nil {
		return nil, err
	}
	u.IsPaused = paused != 0
	u.NewsInterval = time.Duration(intervalSec) * time.Second
	u.CreatedAt = time.Unix(0, createdAtNano)
	u.UpdatedAt = time.Unix(0, updatedAtNano)
	return &u, nil
}

// GetUser fetches a user by Telegram ID. Returns (nil, nil) when unknown.
func (s *Storage) GetUser(telegramID int64) (*models.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE telegram_id = ?`, telegramID)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a new user with default settings.
func (s *Storage) CreateUser(telegramID int64) (*models.User, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO users (telegram_id, is_paused, news_interval, created_at, updated_at)
		VALUES (?, 0, ?, ?, ?)`,
		telegramID, int64(defaultNewsIntervalSec), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &models.User{
		ID:           id,
		TelegramID:   telegramID,
		NewsInterval: defaultNewsIntervalSec * time.Second,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

const defaultNewsIntervalSec = 300

// GetOrCreateUser returns the user for telegramID, creating one on first
// contact. The second return value reports whether a new row was created.
func (s *Storage) GetOrCreateUser(telegramID int64) (*models.User, bool, error) {
	u, err := s.GetUser(telegramID)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		return u, false, nil
	}
	u, err = s.CreateUser(telegramID)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// GetActiveUsers returns all non-paused users.
func (s *Storage) GetActiveUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users WHERE is_paused = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetUserPaused updates the paused flag. Returns false when the user is
// unknown.
func (s *Storage) SetUserPaused(telegramID int64, paused bool) (bool, error) {
	res, err := s.db.Exec(`UPDATE users SET is_paused = ?, updated_at = ? WHERE telegram_id = ?`,
		boolToInt(paused), time.Now().UnixNano(), telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to set paused flag: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetUserInterval updates the per-user watchlist check interval. Returns
// false when the user is unknown.
func (s *Storage) SetUserInterval(telegramID int64, interval time.Duration) (bool, error) {
	res, err := s.db.Exec(`UPDATE users SET news_interval = ?, updated_at = ? WHERE telegram_id = ?`,
		int64(interval/time.Second), time.Now().UnixNano(), telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to set interval: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// userID resolves the internal row id for a Telegram ID.
func (s *Storage) userID(telegramID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE telegram_id = ?`, telegramID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user not found: %d", telegramID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user: %w", err)
	}
	return id, nil
}

package storage

import (
	"fmt"
	"strings"
)

// GetUserKeywords returns the user's keyword filters. Unknown users have an
// empty filter set.
func (s *Storage) GetUserKeywords(telegramID int64) ([]string, error) {
	return s.getUserStrings(telegramID, `keywords`, `keyword`)
}

// SetUserKeywords replaces the user's keyword filters.
func (s *Storage) SetUserKeywords(telegramID int64, keywords []string) error {
	return s.setUserStrings(telegramID, `keywords`, `keyword`, keywords)
}

// ClearUserKeywords removes all of the user's keyword filters.
func (s *Storage) ClearUserKeywords(telegramID int64) error {
	return s.clearUserStrings(telegramID, `keywords`)
}

// GetUserCategories returns the user's category filters.
func (s *Storage) GetUserCategories(telegramID int64) ([]string, error) {
	return s.getUserStrings(telegramID, `user_categories`, `category`)
}

// SetUserCategories replaces the user's category filters.
func (s *Storage) SetUserCategories(telegramID int64, categories []string) error {
	return s.setUserStrings(telegramID, `user_categories`, `category`, categories)
}

// ClearUserCategories removes all of the user's category filters.
func (s *Storage) ClearUserCategories(telegramID int64) error {
	return s.clearUserStrings(telegramID, `user_categories`)
}

func (s *Storage) getUserStrings(telegramID int64, table, col string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT t.`+col+` FROM `+table+` t
		JOIN users u ON u.id = t.user_id
		WHERE u.telegram_id = ?`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// setUserStrings replaces the user's rows in table with values, deduplicated
// and lowercased, in a single transaction.
func (s *Storage) setUserStrings(telegramID int64, table, col string, values []string) error {
	uid, err := s.userID(telegramID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM `+table+` WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO `+table+` (user_id, `+col+`) VALUES (?, ?)`, uid, v); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	return tx.Commit()
}

func (s *Storage) clearUserStrings(telegramID int64, table string) error {
	uid, err := s.userID(telegramID)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM `+table+` WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

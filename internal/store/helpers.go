package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// marshalSession serializes a session to its JSON payload column.
func marshalSession(s models.Session) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return string(b), nil
}

// unmarshalSession deserializes a session payload column.
func unmarshalSession(payload string) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// scanSessions reads session payload rows into a slice.
func scanSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session failed: %w", err)
		}
		s, err := unmarshalSession(payload)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions failed: %w", err)
	}
	return sessions, nil
}

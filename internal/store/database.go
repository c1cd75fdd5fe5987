package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"mastrogpt/internal/db"
)

// DatabaseStore stores Google tokens in PostgreSQL
type DatabaseStore struct {
	db *db.DB
}

func NewDatabaseStore(database *db.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

// GoogleAuth is one row of google_auth.
type GoogleAuth struct {
	SessionID string
	Token     *oauth2.Token
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ds *DatabaseStore) SaveToken(sessionID string, tok *oauth2.Token) error {
	if sessionID == "" || tok == nil || tok.AccessToken == "" {
		return errors.New("session_id and access token are required")
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}

	query := `
		INSERT INTO google_auth (session_id, token, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET
			token = EXCLUDED.token,
			updated_at = NOW()
	`
	if _, err := ds.db.Exec(query, sessionID, string(raw)); err != nil {
		return errors.Wrap(err, "failed to save google auth")
	}
	return nil
}

func (ds *DatabaseStore) Token(sessionID string) (*oauth2.Token, error) {
	auth, err := ds.GetGoogleAuth(sessionID)
	if err != nil || auth == nil {
		return nil, err
	}
	return auth.Token, nil
}

// GetGoogleAuth returns nil, nil when the session has no row.
func (ds *DatabaseStore) GetGoogleAuth(sessionID string) (*GoogleAuth, error) {
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}

	var (
		auth GoogleAuth
		raw  []byte
	)
	query := `
		SELECT session_id, token, created_at, updated_at
		FROM google_auth
		WHERE session_id = $1
	`
	err := ds.db.QueryRow(query, sessionID).Scan(&auth.SessionID, &raw, &auth.CreatedAt, &auth.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get google auth")
	}
	auth.Token = &oauth2.Token{}
	if err := json.Unmarshal(raw, auth.Token); err != nil {
		return nil, errors.Wrap(err, "decoding stored token")
	}
	return &auth, nil
}

func (ds *DatabaseStore) DeleteToken(sessionID string) error {
	if sessionID == "" {
		return errors.New("session_id is required")
	}
	if _, err := ds.db.Exec(`DELETE FROM google_auth WHERE session_id = $1`, sessionID); err != nil {
		return errors.Wrap(err, "failed to delete google auth")
	}
	return nil
}

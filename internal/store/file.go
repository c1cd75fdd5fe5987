package store

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// TokenStore persists the Google token obtained by each session.
type TokenStore interface {
	SaveToken(sessionID string, tok *oauth2.Token) error
	// Token returns nil, nil when the session has no token.
	Token(sessionID string) (*oauth2.Token, error)
	DeleteToken(sessionID string) error
}

// FileTokenStore keeps all session tokens in one JSON file on disk.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) SaveToken(sessionID string, tok *oauth2.Token) error {
	if sessionID == "" || tok == nil || tok.AccessToken == "" {
		return errors.New("invalid token")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readLocked()
	if err != nil {
		return err
	}
	all[sessionID] = tok
	return f.writeLocked(all)
}

func (f *FileTokenStore) Token(sessionID string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	return all[sessionID], nil
}

func (f *FileTokenStore) DeleteToken(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := all[sessionID]; !ok {
		return nil
	}
	delete(all, sessionID)
	return f.writeLocked(all)
}

func (f *FileTokenStore) readLocked() (map[string]*oauth2.Token, error) {
	all := map[string]*oauth2.Token{}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return all, nil
		}
		return nil, errors.Wrap(err, "reading token file")
	}
	if len(b) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, errors.Wrap(err, "decoding token file")
	}
	return all, nil
}

func (f *FileTokenStore) writeLocked(all map[string]*oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	// Restrictive permissions for token file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

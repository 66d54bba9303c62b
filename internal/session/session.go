package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Cookie is a browser cookie as captured from the platform origin.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Origin holds the localStorage entries of one origin.
type Origin struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"localStorage"`
}

// State is the browser storage blob needed to resume an authenticated
// session. Only the browser adapter interprets it.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins,omitempty"`
}

// Empty reports whether the state carries nothing worth restoring.
func (s State) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Origins) == 0
}

// Session is a point-in-time snapshot of an authenticated account.
type Session struct {
	AccountKey string    `json:"accountKey"`
	CapturedAt time.Time `json:"capturedAt"`
	Storage    State     `json:"storage"`
}

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store persists one session file per account.
type Store struct {
	dir string
}

// NewStore creates a Store that keeps its files in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file used for accountKey.
func (s *Store) Path(accountKey string) string {
	return filepath.Join(s.dir, sanitizeKey(accountKey)+".json")
}

// Load returns the stored session, or nil without error when none exists.
func (s *Store) Load(accountKey string) (*Session, error) {
	data, err := os.ReadFile(s.Path(accountKey))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", accountKey, err)
	}
	return &sess, nil
}

// Save replaces the stored session atomically: a reader sees either the old
// file or the new one, never a partial write.
func (s *Store) Save(sess *Session) error {
	if sess == nil || sess.AccountKey == "" {
		return fmt.Errorf("session needs an account key")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(sess.AccountKey)); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

func sanitizeKey(key string) string {
	key = unsafeKey.ReplaceAllString(strings.TrimSpace(key), "_")
	key = strings.Trim(key, "._")
	if key == "" {
		return "default"
	}
	return key
}

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Read when no usable session exists for a
// host-session id. A missing file and a malformed file are deliberately
// indistinguishable: both mean "no session", never a fatal error.
var ErrNotFound = errors.New("session not found")

// Store handles persistence of the one transient session document per
// host-session id.
//
// Writes are atomic from the perspective of any concurrent reader: the full
// serialized session is staged to a uniquely named temp file in the same
// directory, then renamed over the canonical path. A reader always sees the
// previous complete state or the next complete state. This stage-then-rename
// discipline is the only cross-invocation safety mechanism; there are no
// locks, and the last writer wins.
type Store struct {
	basePath string
}

// NewStore creates a session store rooted at statePath
// (typically <config dir>/uatflow).
func NewStore(statePath string) *Store {
	return &Store{
		basePath: filepath.Join(statePath, "sessions"),
	}
}

// Path returns the canonical session file path for a host-session id.
func (s *Store) Path(hostSessionID string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s.json", Key(hostSessionID)))
}

// Key derives a filesystem-safe key for a host-session id. Ids from the
// calling environment are usually safe already; anything else gets hashed.
func Key(hostSessionID string) string {
	safe := true
	for _, r := range hostSessionID {
		if !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') && r != '-' && r != '_' {
			safe = false
			break
		}
	}
	if safe && hostSessionID != "" && len(hostSessionID) <= 128 {
		return hostSessionID
	}
	hash := sha256.Sum256([]byte(hostSessionID))
	return hex.EncodeToString(hash[:])[:16]
}

// Read loads the session for a host-session id. Missing and unparseable
// files both yield ErrNotFound so a fresh session can be (re)initialized
// instead of cascading a fatal failure.
func (s *Store) Read(hostSessionID string) (*Session, error) {
	data, err := os.ReadFile(s.Path(hostSessionID))
	if err != nil {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Exists reports whether a session document is present for a host-session
// id. This is the explicit session-existence signal; no process-wide flags.
func (s *Store) Exists(hostSessionID string) bool {
	_, err := os.Stat(s.Path(hostSessionID))
	return err == nil
}

// Write persists the full session document atomically.
func (s *Store) Write(hostSessionID string, sess *Session) error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	final := s.Path(hostSessionID)
	tmp := final + ".tmp-" + uuid.New().String()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to stage session file: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Delete removes the transient session document. Deleting a session that
// does not exist is not an error.
func (s *Store) Delete(hostSessionID string) error {
	err := os.Remove(s.Path(hostSessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// CleanupStale removes leftover staging files for a host-session id. A
// writer killed between staging and rename leaves its temp file behind;
// the canonical file is never affected.
func (s *Store) CleanupStale(hostSessionID string) int {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0
	}

	prefix := filepath.Base(s.Path(hostSessionID)) + ".tmp-"
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if os.Remove(filepath.Join(s.basePath, entry.Name())) == nil {
			removed++
		}
	}
	return removed
}

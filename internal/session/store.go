// Package session provides durable conversation history keyed by
// "channel:chat_id". Each session is a JSONL file under the workspace;
// writes are atomic (write temp, rename) so a crash never leaves a
// half-written history.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/courier-ai/courier/pkg/models"
)

// Session is one conversation's accumulated history. The agent loop is the
// only writer; it appends a (user, assistant) pair per processed message and
// calls Store.Save.
type Session struct {
	Key     string
	Entries []models.SessionEntry
}

// AddUser appends a user turn.
func (s *Session) AddUser(content string) {
	s.Entries = append(s.Entries, models.SessionEntry{
		Role:      "user",
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AddAssistant appends an assistant turn.
func (s *Session) AddAssistant(content string) {
	s.Entries = append(s.Entries, models.SessionEntry{
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Store manages sessions on disk with an in-memory cache.
type Store struct {
	dir      string
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir, sessions: make(map[string]*Session)}, nil
}

// GetOrCreate returns the session for key, loading it from disk on first
// access. A key with no stored history yields an empty session; the call is
// idempotent.
func (s *Store) GetOrCreate(key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}

	sess := &Session{Key: key}
	entries, err := s.load(key)
	if err != nil {
		return nil, err
	}
	sess.Entries = entries
	s.sessions[key] = sess
	return sess, nil
}

// Save writes the full history to disk atomically.
func (s *Store) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(sess.Key)
	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, entry := range sess.Entries {
		if err := enc.Encode(entry); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("encode session entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Delete removes a session from the cache and from disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *Store) load(key string) ([]models.SessionEntry, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var entries []models.SessionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// A corrupt line loses that entry, not the session.
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return entries, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".jsonl")
}

// sanitizeKey maps a session key to a safe filename.
func sanitizeKey(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")
	return r.Replace(key)
}

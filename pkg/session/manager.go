package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeKey maps a session key to a safe filename stem.
func SanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_")
}

// Manager owns per-key conversation state. In-memory state is authoritative;
// disk is a recoverable replica written atomically on each save.
type Manager struct {
	SessionsDir string

	cache map[string]*models.Session
	mu    sync.RWMutex
}

// NewManager creates a manager rooted at <workspace>/sessions and loads every
// existing session best-effort.
func NewManager(workspace string) *Manager {
	sessionsDir := filepath.Join(workspace, "sessions")
	os.MkdirAll(sessionsDir, 0755)

	m := &Manager{
		SessionsDir: sessionsDir,
		cache:       make(map[string]*models.Session),
	}
	m.loadAll()
	return m
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.SessionsDir, SanitizeKey(key)+".json")
}

func (m *Manager) loadAll() {
	entries, err := os.ReadDir(m.SessionsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.SessionsDir, entry.Name()))
		if err != nil {
			log.Printf("Session load failed for %s: %v", entry.Name(), err)
			continue
		}
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Printf("Session parse failed for %s: %v", entry.Name(), err)
			continue
		}
		if sess.Key == "" {
			continue
		}
		m.cache[sess.Key] = &sess
	}
}

// GetOrCreate returns the session for key, creating it lazily.
func (m *Manager) GetOrCreate(key string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.cache[key]; ok {
		return sess
	}

	now := time.Now()
	sess := &models.Session{
		Key:      key,
		Messages: []models.Message{},
		Created:  now,
		Updated:  now,
	}
	m.cache[key] = sess
	return sess
}

// AddMessage appends one message to the keyed session.
func (m *Manager) AddMessage(key string, msg models.Message) {
	sess := m.GetOrCreate(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Messages = append(sess.Messages, msg)
	sess.Updated = time.Now()
}

// SetHistory replaces the keyed session's history.
func (m *Manager) SetHistory(key string, messages []models.Message) {
	sess := m.GetOrCreate(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Messages = append([]models.Message(nil), messages...)
	sess.Updated = time.Now()
}

// GetHistory returns a copy of the keyed session's history.
func (m *Manager) GetHistory(key string) []models.Message {
	sess := m.GetOrCreate(key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Message(nil), sess.Messages...)
}

// SetSummary sets the rolling summary on the keyed session.
func (m *Manager) SetSummary(key, summary string) {
	sess := m.GetOrCreate(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Summary = summary
	sess.Updated = time.Now()
}

// TruncateHistory keeps only the last keepLast messages.
func (m *Manager) TruncateHistory(key string, keepLast int) {
	sess := m.GetOrCreate(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if keepLast >= 0 && len(sess.Messages) > keepLast {
		sess.Messages = append([]models.Message(nil), sess.Messages[len(sess.Messages)-keepLast:]...)
		sess.Updated = time.Now()
	}
}

// Clear drops the keyed session from memory and disk.
func (m *Manager) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	err := os.Remove(m.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Save persists the keyed session atomically (temp file then rename).
func (m *Manager) Save(key string) error {
	m.mu.RLock()
	sess, ok := m.cache[key]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", key, err)
	}

	path := m.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename session %s: %w", key, err)
	}
	return nil
}

// SaveAll persists every cached session; failures are logged, not fatal.
func (m *Manager) SaveAll() {
	m.mu.RLock()
	keys := make([]string, 0, len(m.cache))
	for k := range m.cache {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	for _, key := range keys {
		if err := m.Save(key); err != nil {
			log.Printf("Session save failed for %s: %v", key, err)
		}
	}
}

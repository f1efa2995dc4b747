package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store manages persistent agent memory under <workspace>/memory: a
// long-term MEMORY.md plus daily notes in YYYYMM/YYYYMMDD.md.
type Store struct {
	Workspace string
	MemoryDir string
}

// NewStore creates a memory store rooted at the workspace.
func NewStore(workspace string) *Store {
	memoryDir := filepath.Join(workspace, "memory")
	os.MkdirAll(memoryDir, 0755)
	return &Store{
		Workspace: workspace,
		MemoryDir: memoryDir,
	}
}

// TodayFile returns the path of today's note file.
func (m *Store) TodayFile() string {
	now := time.Now()
	return filepath.Join(m.MemoryDir, now.Format("200601"), now.Format("20060102")+".md")
}

// ReadToday reads today's notes. Missing file reads as empty.
func (m *Store) ReadToday() (string, error) {
	data, err := os.ReadFile(m.TodayFile())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// AppendToday appends content to today's notes, creating the file with a
// date header on first write.
func (m *Store) AppendToday(content string) error {
	path := m.TodayFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	if data, err := os.ReadFile(path); err == nil {
		content = string(data) + "\n" + content
	} else {
		content = fmt.Sprintf("# %s\n\n%s", time.Now().Format("2006-01-02"), content)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// ReadLongTerm reads MEMORY.md. Missing file reads as empty.
func (m *Store) ReadLongTerm() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.MemoryDir, "MEMORY.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteLongTerm replaces MEMORY.md.
func (m *Store) WriteLongTerm(content string) error {
	return os.WriteFile(filepath.Join(m.MemoryDir, "MEMORY.md"), []byte(content), 0644)
}

// RecentNotes returns the notes of the last N days joined with separators,
// newest first.
func (m *Store) RecentNotes(days int) (string, error) {
	var notes []string
	today := time.Now()

	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i)
		path := filepath.Join(m.MemoryDir, date.Format("200601"), date.Format("20060102")+".md")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		notes = append(notes, string(data))
	}

	return strings.Join(notes, "\n\n---\n\n"), nil
}

// ListNoteFiles lists all daily note files, newest first.
func (m *Store) ListNoteFiles() ([]string, error) {
	months, err := os.ReadDir(m.MemoryDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, month := range months {
		if !month.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(m.MemoryDir, month.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				files = append(files, filepath.Join(m.MemoryDir, month.Name(), e.Name()))
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// Context returns the formatted memory block for the system prompt: long-term
// memory followed by today's notes, empty when neither exists.
func (m *Store) Context() string {
	var parts []string

	if longTerm, _ := m.ReadLongTerm(); longTerm != "" {
		parts = append(parts, "## Long-term Memory\n"+longTerm)
	}
	if today, _ := m.ReadToday(); today != "" {
		parts = append(parts, "## Today's Notes\n"+today)
	}

	return strings.Join(parts, "\n\n")
}

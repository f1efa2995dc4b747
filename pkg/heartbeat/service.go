package heartbeat

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MinInterval is the floor for the heartbeat period. Configured values below
// it are raised to it.
const MinInterval = 300 * time.Second

const heartbeatFile = "HEARTBEAT.md"

const defaultTemplate = `# Heartbeat Tasks

<!-- Add tasks below. Lines starting with # or <!-- are ignored. -->
<!-- Example: Check the calendar and remind me of upcoming events. -->
`

const heartbeatPrompt = "It's time for a heartbeat check. Below is the current HEARTBEAT.md from your workspace; " +
	"perform the tasks listed there. If there is nothing that needs doing right now, reply with exactly HEARTBEAT_OK."

// Handler runs one heartbeat turn and returns the agent's reply. An empty
// reply or HEARTBEAT_OK means nothing to deliver.
type Handler func(prompt, channel, chatID string) (string, error)

// Service periodically wakes the agent with the heartbeat prompt when
// HEARTBEAT.md has active content.
type Service struct {
	Workspace string
	Interval  time.Duration
	Channel   string
	To        string
	Handler   Handler

	mu          sync.Mutex
	lastChannel string
	lastTo      string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a heartbeat service. Intervals below MinInterval are
// clamped to it.
func NewService(workspace string, interval time.Duration, channel, to string, handler Handler) *Service {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Service{
		Workspace: workspace,
		Interval:  interval,
		Channel:   channel,
		To:        to,
		Handler:   handler,
		stopChan:  make(chan struct{}),
	}
}

// Start seeds HEARTBEAT.md if missing and begins the tick loop.
func (s *Service) Start() error {
	path := filepath.Join(s.Workspace, heartbeatFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultTemplate), 0644); err != nil {
			return fmt.Errorf("seed %s: %w", heartbeatFile, err)
		}
	}

	s.wg.Add(1)
	go s.loop()
	log.Printf("Heartbeat started (every %s)", s.Interval)
	return nil
}

// Stop halts the tick loop and waits for an in-flight beat to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.beat()
		}
	}
}

// SetLastDestination records where the most recent conversation happened, so
// heartbeat replies follow the user instead of a fixed target.
func (s *Service) SetLastDestination(channel, chatID string) {
	if channel == "" || chatID == "" {
		return
	}
	s.mu.Lock()
	s.lastChannel, s.lastTo = channel, chatID
	s.mu.Unlock()
}

// Destination returns the last-seen destination, falling back to the
// configured channel and recipient.
func (s *Service) Destination() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastChannel != "" && s.lastTo != "" {
		return s.lastChannel, s.lastTo
	}
	return s.Channel, s.To
}

func (s *Service) beat() {
	content := s.readFile()
	if !hasActiveTasks(content) {
		return
	}

	channel, chatID := s.Destination()
	prompt := heartbeatPrompt + "\n\n--- HEARTBEAT.md ---\n" + content
	reply, err := s.Handler(prompt, channel, chatID)
	if err != nil {
		log.Printf("Heartbeat failed: %v", err)
		s.appendLog(fmt.Sprintf("error: %v", err))
		return
	}

	trimmed := strings.TrimSpace(reply)
	if trimmed == "" || strings.Contains(trimmed, "HEARTBEAT_OK") {
		s.appendLog("ok")
		return
	}
	s.appendLog(fmt.Sprintf("delivered %d chars", len(trimmed)))
}

// HasActiveTasks reports whether HEARTBEAT.md has any line that is not
// blank, a markdown comment, or an HTML comment.
func (s *Service) HasActiveTasks() bool {
	return hasActiveTasks(s.readFile())
}

func (s *Service) readFile() string {
	data, err := os.ReadFile(filepath.Join(s.Workspace, heartbeatFile))
	if err != nil {
		return ""
	}
	return string(data)
}

func hasActiveTasks(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<!--") {
			continue
		}
		return true
	}
	return false
}

func (s *Service) appendLog(entry string) {
	path := filepath.Join(s.Workspace, "heartbeat.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), entry)
}

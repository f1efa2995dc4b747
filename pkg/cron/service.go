package cron

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobHandler runs a due job and returns the text produced for delivery.
type JobHandler func(job Job) (string, error)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service persists jobs under <storeDir>/jobs.json and fires them from a
// one-second ticker loop.
type Service struct {
	storePath string
	handler   JobHandler

	mu       sync.Mutex
	store    *Store
	running  bool
	stopChan chan struct{}
}

// NewService creates a cron service storing jobs under storeDir.
func NewService(storeDir string, handler JobHandler) *Service {
	return &Service{
		storePath: filepath.Join(storeDir, "jobs.json"),
		handler:   handler,
		stopChan:  make(chan struct{}),
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newJobID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// computeNextRun returns the next fire time in ms, or 0 when the schedule
// yields nothing.
func computeNextRun(schedule Schedule, fromMs int64) int64 {
	switch schedule.Kind {
	case "at":
		return schedule.AtMs
	case "every":
		if schedule.EveryMs <= 0 {
			return 0
		}
		return fromMs + schedule.EveryMs
	case "cron":
		if schedule.Expr == "" {
			return 0
		}
		sched, err := cronParser.Parse(schedule.Expr)
		if err != nil {
			log.Printf("Cron: bad expression %q: %v", schedule.Expr, err)
			return 0
		}
		loc := time.Local
		if schedule.Tz != "" {
			if l, err := time.LoadLocation(schedule.Tz); err == nil {
				loc = l
			}
		}
		next := sched.Next(time.UnixMilli(fromMs).In(loc))
		return next.UnixMilli()
	}
	return 0
}

// Start loads the store, recomputes schedules, and begins ticking.
func (s *Service) Start() {
	s.mu.Lock()
	s.loadLocked()
	now := nowMs()
	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if job.Enabled {
			next := computeNextRun(job.Schedule, now)
			if next > 0 {
				job.State.NextRunAtMs = &next
			} else {
				job.State.NextRunAtMs = nil
			}
		}
	}
	s.saveLocked()
	s.running = true
	count := len(s.store.Jobs)
	s.mu.Unlock()

	go s.loop()
	log.Printf("Cron service started with %d jobs", count)
}

// Stop halts the ticker loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopChan)
}

func (s *Service) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every due job once. The next-run marker is cleared before the
// handler runs so a slow handler cannot double-fire.
func (s *Service) tick() {
	now := nowMs()

	s.mu.Lock()
	var due []Job
	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if !job.Enabled || job.State.NextRunAtMs == nil {
			continue
		}
		if *job.State.NextRunAtMs > now {
			continue
		}
		job.State.NextRunAtMs = nil
		due = append(due, *job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.runJob(job)
	}

	if len(due) > 0 {
		s.mu.Lock()
		s.saveLocked()
		s.mu.Unlock()
	}
}

func (s *Service) runJob(job Job) {
	log.Printf("Cron: running job %s (%s)", job.Name, job.ID)
	startMs := nowMs()

	status, lastErr := "ok", ""
	func() {
		defer func() {
			if r := recover(); r != nil {
				status = "error"
				lastErr = fmt.Sprintf("panic: %v", r)
				log.Printf("Cron: job %s panicked: %v", job.ID, r)
			}
		}()
		if s.handler != nil {
			if _, err := s.handler(job); err != nil {
				status = "error"
				lastErr = err.Error()
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(job.ID)
	if idx < 0 {
		return
	}
	stored := &s.store.Jobs[idx]
	stored.State.LastRunAtMs = startMs
	stored.State.LastStatus = status
	stored.State.LastError = lastErr
	stored.UpdatedAtMs = nowMs()

	if stored.Schedule.Kind == "at" {
		if stored.DeleteAfterRun {
			s.store.Jobs = append(s.store.Jobs[:idx], s.store.Jobs[idx+1:]...)
			return
		}
		stored.Enabled = false
		stored.State.NextRunAtMs = nil
		return
	}

	next := computeNextRun(stored.Schedule, nowMs())
	if next > 0 {
		stored.State.NextRunAtMs = &next
	}
}

func (s *Service) indexLocked(id string) int {
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// AddJob creates and persists a new enabled job.
func (s *Service) AddJob(name string, schedule Schedule, message string, deliver bool, channel, to string, deleteAfterRun bool) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	now := nowMs()
	job := Job{
		ID:       newJobID(),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: Payload{
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}
	if next := computeNextRun(schedule, now); next > 0 {
		job.State.NextRunAtMs = &next
	}

	s.store.Jobs = append(s.store.Jobs, job)
	s.saveLocked()
	return job
}

// findLocked resolves an id or unique id prefix to a job index. Ambiguous
// prefixes resolve to nothing.
func (s *Service) findLocked(idPrefix string) int {
	idx := -1
	for i := range s.store.Jobs {
		if strings.HasPrefix(s.store.Jobs[i].ID, idPrefix) {
			if idx >= 0 {
				return -1
			}
			idx = i
		}
	}
	return idx
}

// RemoveJob deletes a job by id or unique id prefix. Returns false if no job
// matched.
func (s *Service) RemoveJob(idPrefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	idx := s.findLocked(idPrefix)
	if idx < 0 {
		return false
	}
	s.store.Jobs = append(s.store.Jobs[:idx], s.store.Jobs[idx+1:]...)
	s.saveLocked()
	return true
}

// EnableJob enables or disables a job. The id may be a unique prefix.
func (s *Service) EnableJob(idPrefix string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	idx := s.findLocked(idPrefix)
	if idx < 0 {
		return false
	}

	job := &s.store.Jobs[idx]
	job.Enabled = enabled
	job.UpdatedAtMs = nowMs()
	if enabled {
		if next := computeNextRun(job.Schedule, nowMs()); next > 0 {
			job.State.NextRunAtMs = &next
		}
	} else {
		job.State.NextRunAtMs = nil
	}
	s.saveLocked()
	return true
}

// ListJobs returns a copy of all jobs sorted by next run time, soonest
// first, with unscheduled jobs last.
func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()

	jobs := make([]Job, len(s.store.Jobs))
	copy(jobs, s.store.Jobs)
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].State.NextRunAtMs, jobs[j].State.NextRunAtMs
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	return jobs
}

func (s *Service) loadLocked() {
	if s.store != nil {
		return
	}
	s.store = &Store{Version: 1, Jobs: []Job{}}

	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Cron: failed to read store: %v", err)
		}
		return
	}
	if err := json.Unmarshal(data, s.store); err != nil {
		log.Printf("Cron: failed to parse store: %v", err)
		s.store = &Store{Version: 1, Jobs: []Job{}}
	}
}

func (s *Service) saveLocked() {
	if s.store == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		log.Printf("Cron: failed to create store dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		log.Printf("Cron: failed to marshal store: %v", err)
		return
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("Cron: failed to write store: %v", err)
		return
	}
	if err := os.Rename(tmp, s.storePath); err != nil {
		log.Printf("Cron: failed to replace store: %v", err)
	}
}

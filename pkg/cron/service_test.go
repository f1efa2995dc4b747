package cron

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (h *recordingHandler) handle(job Job) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	return "", h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

func TestAddRemoveRoundTrip(t *testing.T) {
	s := NewService(t.TempDir(), nil)

	job := s.AddJob("reminder", Schedule{Kind: "every", EveryMs: 60_000}, "ping", true, "telegram", "42", false)
	require.NotEmpty(t, job.ID)
	assert.True(t, job.Enabled)
	require.NotNil(t, job.State.NextRunAtMs)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "reminder", jobs[0].Name)
	assert.Equal(t, "ping", jobs[0].Payload.Message)

	assert.True(t, s.RemoveJob(job.ID))
	assert.Empty(t, s.ListJobs())
	assert.False(t, s.RemoveJob(job.ID))
}

func TestStorePersistsAcrossServices(t *testing.T) {
	dir := t.TempDir()

	s1 := NewService(dir, nil)
	job := s1.AddJob("persisted", Schedule{Kind: "cron", Expr: "0 9 * * *"}, "daily", false, "", "", false)

	s2 := NewService(dir, nil)
	jobs := s2.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Equal(t, "0 9 * * *", jobs[0].Schedule.Expr)
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	h := &recordingHandler{}
	s := NewService(t.TempDir(), h.handle)

	s.AddJob("once", Schedule{Kind: "at", AtMs: nowMs() + 50}, "fire", false, "", "", true)

	time.Sleep(60 * time.Millisecond)
	s.tick()
	assert.Equal(t, 1, h.count())
	assert.Empty(t, s.ListJobs())

	// A second tick finds nothing to do.
	s.tick()
	assert.Equal(t, 1, h.count())
}

func TestOneShotWithoutDeleteIsDisabled(t *testing.T) {
	h := &recordingHandler{}
	s := NewService(t.TempDir(), h.handle)

	job := s.AddJob("once", Schedule{Kind: "at", AtMs: nowMs() - 1}, "fire", false, "", "", false)

	s.tick()
	assert.Equal(t, 1, h.count())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.False(t, jobs[0].Enabled)
	assert.Nil(t, jobs[0].State.NextRunAtMs)
}

func TestRecurringJobReschedules(t *testing.T) {
	h := &recordingHandler{}
	s := NewService(t.TempDir(), h.handle)

	s.AddJob("every", Schedule{Kind: "every", EveryMs: 60_000}, "tick", false, "", "", false)

	// Force the job due, then fire it.
	s.mu.Lock()
	due := nowMs() - 1
	s.store.Jobs[0].State.NextRunAtMs = &due
	s.mu.Unlock()

	s.tick()
	assert.Equal(t, 1, h.count())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].State.NextRunAtMs)
	assert.Greater(t, *jobs[0].State.NextRunAtMs, nowMs())
	assert.Equal(t, "ok", jobs[0].State.LastStatus)
}

func TestHandlerErrorIsRecorded(t *testing.T) {
	h := &recordingHandler{err: errors.New("delivery failed")}
	s := NewService(t.TempDir(), h.handle)

	s.AddJob("failing", Schedule{Kind: "at", AtMs: nowMs() - 1}, "x", false, "", "", false)
	s.tick()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "error", jobs[0].State.LastStatus)
	assert.Equal(t, "delivery failed", jobs[0].State.LastError)
}

func TestEnableJobPrefixMatching(t *testing.T) {
	s := NewService(t.TempDir(), nil)
	job := s.AddJob("toggled", Schedule{Kind: "every", EveryMs: 1000}, "x", false, "", "", false)
	other := s.AddJob("other", Schedule{Kind: "every", EveryMs: 1000}, "y", false, "", "", false)

	require.True(t, s.EnableJob(job.ID, false))
	require.True(t, s.EnableJob(other.ID, true))
	for _, j := range s.ListJobs() {
		if j.ID == job.ID {
			assert.False(t, j.Enabled)
		}
	}

	require.True(t, s.EnableJob(job.ID, true))

	// An ambiguous prefix (matches both jobs) or unknown prefix changes
	// nothing.
	assert.False(t, s.EnableJob("", false))
	assert.False(t, s.EnableJob("zzzz-no-such", false))
}

func TestRemoveJobPrefixMatching(t *testing.T) {
	s := NewService(t.TempDir(), nil)
	job := s.AddJob("short-lived", Schedule{Kind: "every", EveryMs: 1000}, "x", false, "", "", false)

	assert.True(t, s.RemoveJob(job.ID[:6]))
	assert.Empty(t, s.ListJobs())

	// An ambiguous prefix removes nothing.
	a := s.AddJob("a", Schedule{Kind: "every", EveryMs: 1000}, "x", false, "", "", false)
	s.AddJob("b", Schedule{Kind: "every", EveryMs: 1000}, "y", false, "", "", false)
	assert.False(t, s.RemoveJob(""))
	require.Len(t, s.ListJobs(), 2)

	assert.True(t, s.RemoveJob(a.ID))
	require.Len(t, s.ListJobs(), 1)
}

func TestComputeNextRun(t *testing.T) {
	from := nowMs()

	assert.Equal(t, int64(1234), computeNextRun(Schedule{Kind: "at", AtMs: 1234}, from))
	assert.Equal(t, from+5000, computeNextRun(Schedule{Kind: "every", EveryMs: 5000}, from))
	assert.Zero(t, computeNextRun(Schedule{Kind: "every"}, from))
	assert.Zero(t, computeNextRun(Schedule{Kind: "cron", Expr: "not a cron"}, from))
	assert.Greater(t, computeNextRun(Schedule{Kind: "cron", Expr: "*/5 * * * *"}, from), from)
}

package cron

// Schedule describes when a job fires: a one-shot instant ("at"), a fixed
// interval ("every"), or a 5-field cron expression ("cron").
type Schedule struct {
	Kind    string `json:"kind"`
	AtMs    int64  `json:"at_ms,omitempty"`
	EveryMs int64  `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Tz      string `json:"tz,omitempty"`
}

// Payload is what a job delivers when it fires.
type Payload struct {
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// JobState is the mutable runtime state of a job. NextRunAtMs is nil while
// the job is running or has no upcoming fire.
type JobState struct {
	NextRunAtMs *int64 `json:"next_run_at_ms,omitempty"`
	LastRunAtMs int64  `json:"last_run_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Job is a persisted scheduled job.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"created_at_ms"`
	UpdatedAtMs    int64    `json:"updated_at_ms"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
}

// Store is the on-disk jobs file.
type Store struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

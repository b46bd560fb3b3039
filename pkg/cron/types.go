package cron

import "errors"

// TriggerKind selects how a job's fire times are computed.
type TriggerKind string

const (
	// TriggerAt fires once at an absolute timestamp.
	TriggerAt TriggerKind = "at"
	// TriggerCron fires on a 5-field cron expression.
	TriggerCron TriggerKind = "cron"
	// TriggerEvery fires on a fixed interval in seconds.
	TriggerEvery TriggerKind = "every"
)

// Trigger is a job's time specification.
type Trigger struct {
	Kind TriggerKind `json:"kind"`

	// For "at": RFC 3339 timestamp.
	At string `json:"at,omitempty"`

	// For "cron": 5-field expression, optional timezone.
	Expr string `json:"expr,omitempty"`
	TZ   string `json:"tz,omitempty"`

	// For "every": interval in seconds.
	EverySeconds int64 `json:"everySeconds,omitempty"`
}

// Delivery names the channel and recipient a firing job messages.
type Delivery struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
}

// Job is a persisted, time-triggered delivery action.
type Job struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	Trigger   Trigger  `json:"trigger"`
	Delivery  Delivery `json:"delivery"`
	CreatedAt int64    `json:"createdAt"`

	// NextRunAt is persisted so a job due while the process was down fires
	// exactly once after restart (catch-up-once).
	NextRunAt int64  `json:"nextRunAt"`
	LastRunAt *int64 `json:"lastRunAt,omitempty"`
}

// AddParams contains the caller-supplied fields of a new job.
type AddParams struct {
	Name     string   `json:"name"`
	Message  string   `json:"message"`
	Trigger  Trigger  `json:"trigger"`
	Delivery Delivery `json:"delivery"`
}

// Sentinel errors surfaced by store operations.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrDuplicateName = errors.New("job name already in use")
	ErrInvalidJob    = errors.New("invalid job")
)

package queue

import (
	"strings"
	"time"
)

// State represents the lifecycle of a queue job.
type State string

const (
	// StatePending means the job is waiting to be claimed (first delivery or a
	// scheduled retry whose run_at may still be in the future).
	StatePending State = "pending"
	// StateActive means a worker holds the job under a lease.
	StateActive State = "active"
	// StateCompleted means the handler acknowledged the job.
	StateCompleted State = "completed"
	// StateFailed is terminal: the retry budget is exhausted or the failure was
	// fatal. Failed jobs are never claimed again.
	StateFailed State = "failed"
)

var allStates = []State{StatePending, StateActive, StateCompleted, StateFailed}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// RetryPolicy bounds redelivery of a job after handler failures.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Delay returns the backoff delay scheduled after the given failed attempt
// (1-based). Doubles per attempt, so delays are non-decreasing.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BackoffBase << (attempt - 1)
}

// Job is a queue entry persisted in SQLite. Payload is an opaque JSON document
// owned by the enqueuing stage; the queue never inspects it.
type Job struct {
	ID            int64
	Queue         string
	TenantID      string
	ClipID        string
	Payload       string
	State         State
	Attempts      int
	MaxAttempts   int
	BackoffBaseMS int
	RunAt         time.Time
	LeasedAt      *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Policy reconstructs the retry policy stored on the job row.
func (j *Job) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: j.MaxAttempts,
		BackoffBase: time.Duration(j.BackoffBaseMS) * time.Millisecond,
	}
}

// Exhausted reports whether the job has consumed its full delivery budget.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Active    int
	Completed int
	Failed    int
}

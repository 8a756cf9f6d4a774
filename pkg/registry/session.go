package registry

import (
	"time"

	"calcmesh/pkg/task"
)

// Dialect identifies the framing a UDP session negotiated.
type Dialect int

const (
	DialectBinary Dialect = iota
	DialectText
)

// Phase is the session's position in the per-peer state machine.
type Phase int

const (
	PhaseAwaitingAnswer Phase = iota
	PhaseFinalized
)

// Result is the outcome recorded once a session finalizes. Valid only when
// Phase is PhaseFinalized.
type Result int

const (
	ResultNone Result = iota
	ResultOK
	ResultNotOK
)

// Session is the per-peer state tracked by the registry. It is modeled as
// the tagged variant the design favors (AwaitingAnswer{task, last_sent_at,
// resend_count} / Finalized{task_id, last_ack, finalized_at}) but kept as a
// single struct with a Phase discriminant, since Go has no natural sum
// type — fields outside the active phase are simply unused.
type Session struct {
	Task        task.Task
	Dialect     Dialect
	Phase       Phase
	LastResult  Result
	FinalizedAt time.Time

	// AWAITING_ANSWER-only fields.
	LastSentAt  time.Time
	ResendCount int

	// Stored acknowledgement bytes, replayed verbatim for idempotent
	// re-acks (scenario B3: duplicate answers get byte-identical acks).
	LastAck []byte
}

// Age reports how long ago the session's task was created.
func (s Session) Age(now time.Time) time.Duration {
	return s.Task.Age(now)
}

// FinalizedAge reports how long ago the session finalized. Only meaningful
// when Phase is PhaseFinalized.
func (s Session) FinalizedAge(now time.Time) time.Duration {
	return now.Sub(s.FinalizedAt)
}

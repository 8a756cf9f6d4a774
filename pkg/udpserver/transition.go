package udpserver

import (
	"time"

	"calcmesh/pkg/protocol"
	"calcmesh/pkg/registry"
	"calcmesh/pkg/task"
)

// EventKind classifies a parsed inbound datagram for the state machine,
// independent of wire dialect.
type EventKind int

const (
	// EventHandshake covers both an explicit handshake (binary type=22 or
	// the text "TEXT UDP 1.1" line) and the implicit binary handshake
	// (CalcProtocol with id=0, version 1.1) — spec.md §4.2 rules 1-3.
	EventHandshake EventKind = iota
	// EventAnswer is a binary or text answer to an outstanding task.
	EventAnswer
	// EventZeroProbe is the all-zero CalcProtocol record — rule 4.
	EventZeroProbe
)

// InboundEvent is the parsed, dialect-tagged shape of one datagram, built by
// the engine's dispatch code from a classified+decoded payload. Transition
// itself never touches raw bytes.
type InboundEvent struct {
	Kind         EventKind
	Dialect      registry.Dialect
	AnswerID     uint32
	AnswerResult int32
}

// Outcome names which counter the engine should bump after a Transition
// call, kept distinct from the frame bytes so counting never depends on
// parsing output back out of the wire format.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeTaskIssued
	OutcomeRetransmit
	OutcomeAnswerOK
	OutcomeAnswerNotOK
	OutcomeReAck
)

// OutboundFrame is the single response datagram a transition may produce.
type OutboundFrame struct {
	Payload []byte
}

// Transition implements the per-peer session state machine of spec.md §4.2
// as a pure function: given the existing session (nil means NONE) and one
// parsed inbound event, it returns the session's next value (nil if no
// registry write is needed) and at most one outbound frame. The caller
// (the engine's dispatch loop) is responsible for turning a non-nil next
// session into a registry Insert or Save call, and for actually sending the
// frame — Transition performs no I/O and allocates no registry state.
func Transition(existing *registry.Session, ev InboundEvent, now time.Time, taskLifetime time.Duration, gen *task.Generator) (next *registry.Session, frame *OutboundFrame, outcome Outcome) {
	if existing == nil {
		return transitionNone(ev, now, gen)
	}
	switch existing.Phase {
	case registry.PhaseAwaitingAnswer:
		return transitionAwaiting(*existing, ev, now, taskLifetime)
	case registry.PhaseFinalized:
		return transitionFinalized(*existing, ev, now, gen)
	default:
		return nil, nil, OutcomeNone
	}
}

func transitionNone(ev InboundEvent, now time.Time, gen *task.Generator) (*registry.Session, *OutboundFrame, Outcome) {
	switch ev.Kind {
	case EventHandshake:
		sess := newAwaitingSession(ev.Dialect, now, gen)
		return &sess, taskFrame(sess.Task, sess.Dialect), OutcomeTaskIssued
	case EventZeroProbe:
		f := ackFrame(false, registry.DialectBinary)
		return nil, f, OutcomeAnswerNotOK
	default:
		// A bare answer with no session behind it matches no rule in the
		// transition table; drop it silently.
		return nil, nil, OutcomeNone
	}
}

func transitionAwaiting(sess registry.Session, ev InboundEvent, now time.Time, taskLifetime time.Duration) (*registry.Session, *OutboundFrame, Outcome) {
	switch ev.Kind {
	case EventHandshake:
		sess.LastSentAt = now
		sess.ResendCount = 0
		return &sess, taskFrame(sess.Task, sess.Dialect), OutcomeRetransmit
	case EventAnswer:
		ok := ev.AnswerID == sess.Task.ID &&
			sess.Task.Age(now) <= taskLifetime &&
			ev.AnswerResult == sess.Task.Eval()
		sess.Phase = registry.PhaseFinalized
		sess.FinalizedAt = now
		if ok {
			sess.LastResult = registry.ResultOK
		} else {
			sess.LastResult = registry.ResultNotOK
		}
		f := ackFrame(ok, sess.Dialect)
		sess.LastAck = f.Payload
		outcome := OutcomeAnswerNotOK
		if ok {
			outcome = OutcomeAnswerOK
		}
		return &sess, f, outcome
	default:
		return nil, nil, OutcomeNone
	}
}

func transitionFinalized(sess registry.Session, ev InboundEvent, now time.Time, gen *task.Generator) (*registry.Session, *OutboundFrame, Outcome) {
	switch ev.Kind {
	case EventAnswer:
		if ev.AnswerID != sess.Task.ID {
			return nil, nil, OutcomeNone
		}
		return nil, &OutboundFrame{Payload: sess.LastAck}, OutcomeReAck
	case EventHandshake:
		// Policy P1 (spec.md §4.2 rule 10): a new-request-shaped datagram
		// while FINALIZED issues a fresh task rather than being ignored.
		next := newAwaitingSession(ev.Dialect, now, gen)
		return &next, taskFrame(next.Task, next.Dialect), OutcomeTaskIssued
	default:
		return nil, nil, OutcomeNone
	}
}

func newAwaitingSession(dialect registry.Dialect, now time.Time, gen *task.Generator) registry.Session {
	tk := gen.Next(now)
	return registry.Session{
		Task:       tk,
		Dialect:    dialect,
		Phase:      registry.PhaseAwaitingAnswer,
		LastSentAt: now,
	}
}

func taskFrame(t task.Task, dialect registry.Dialect) *OutboundFrame {
	if dialect == registry.DialectText {
		return &OutboundFrame{Payload: []byte(protocol.FormatTextTask(t.ID, t.Op, t.V1, t.V2))}
	}
	return &OutboundFrame{Payload: protocol.EncodeTask(t.ID, t.Op, t.V1, t.V2)}
}

func ackFrame(ok bool, dialect registry.Dialect) *OutboundFrame {
	if dialect == registry.DialectText {
		return &OutboundFrame{Payload: []byte(protocol.FormatTextAck(ok))}
	}
	return &OutboundFrame{Payload: protocol.EncodeMessage(protocol.NewAck(ok))}
}

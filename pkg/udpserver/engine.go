// Package udpserver implements the UDP engine (spec component C4): a single
// datagram socket multiplexing every peer, dispatched through the pure
// Transition state machine in transition.go.
package udpserver

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"calcmesh/pkg/protocol"
	"calcmesh/pkg/ratelimit"
	"calcmesh/pkg/registry"
	"calcmesh/pkg/task"
)

// Config holds the UDP engine's tunable timing parameters, matching
// spec.md §4.2's defaults.
type Config struct {
	TaskLifetime  time.Duration
	FinalizeGrace time.Duration
	SelectTick    time.Duration
	// RetransmitSchedule gives the minimum gap since last_sent_at required
	// before retransmit number resend_count fires. Index 0 applies to the
	// first retransmit (resend_count==0), and the last entry is reused for
	// any resend_count beyond the slice's length.
	RetransmitSchedule []time.Duration
	MaxSessions        int
	// RetransmitRatePerSec bounds the total proactive-retransmit rate
	// across all sessions combined.
	RetransmitRatePerSec int64
	// TextEnabled controls whether the engine accepts the text dialect.
	// When false, a text-classified datagram is dropped as if malformed,
	// per the udpserver CLI's --text flag (spec.md §6).
	TextEnabled bool
	// Quiet suppresses the once-per-second diagnostic log line.
	Quiet bool
}

// DefaultConfig returns spec.md §4.2's default timing parameters.
func DefaultConfig() Config {
	return Config{
		TaskLifetime:  10 * time.Second,
		FinalizeGrace: 2 * time.Second,
		SelectTick:    10 * time.Millisecond,
		RetransmitSchedule: []time.Duration{
			120 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
			400 * time.Millisecond, 500 * time.Millisecond, 650 * time.Millisecond,
			800 * time.Millisecond, 1000 * time.Millisecond, 1200 * time.Millisecond,
			1500 * time.Millisecond,
		},
		MaxSessions:          500,
		RetransmitRatePerSec: 200,
		TextEnabled:          true,
	}
}

// Counters tracks the engine-wide diagnostic counters spec.md §4.2 names.
// Fields are accessed with sync/atomic even though the dispatch loop itself
// is single-threaded, so Engine.Counters can be called from another
// goroutine (such as the udpserver command's --exit-on-complete watcher)
// without racing the loop.
type Counters struct {
	PacketsReceived int64
	BinaryPackets   int64
	TextPackets     int64
	TasksIssued     int64
	AnswersOK       int64
	AnswersNotOK    int64
	Retransmits     int64
	ReAcks          int64
	SessionsEvicted int64
}

func (c *Counters) snapshot() Counters {
	return Counters{
		PacketsReceived: atomic.LoadInt64(&c.PacketsReceived),
		BinaryPackets:   atomic.LoadInt64(&c.BinaryPackets),
		TextPackets:     atomic.LoadInt64(&c.TextPackets),
		TasksIssued:     atomic.LoadInt64(&c.TasksIssued),
		AnswersOK:       atomic.LoadInt64(&c.AnswersOK),
		AnswersNotOK:    atomic.LoadInt64(&c.AnswersNotOK),
		Retransmits:     atomic.LoadInt64(&c.Retransmits),
		ReAcks:          atomic.LoadInt64(&c.ReAcks),
		SessionsEvicted: atomic.LoadInt64(&c.SessionsEvicted),
	}
}

// Engine runs the UDP dispatch loop on a single bound socket.
type Engine struct {
	cfg      Config
	conn     *net.UDPConn
	reg      *registry.Store
	gen      *task.Generator
	shaper   *ratelimit.TokenBucket
	log      *zap.Logger
	counters Counters

	lastDiag time.Time
}

// ResolveBindAddr resolves a bind address string ("host:port"), applying
// spec.md §4.2's address family policy: the literal hosts localhost,
// ip4-localhost, and 127.0.0.1 bind IPv4 loopback; ip6-localhost and ::1
// bind IPv6 loopback; any other host resolves via the system resolver with
// no dual-stack fan-out.
func ResolveBindAddr(address string) (*net.UDPAddr, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("udpserver: invalid bind address %q: %w", address, err)
	}
	switch host {
	case "localhost", "ip4-localhost", "127.0.0.1":
		return net.ResolveUDPAddr("udp4", net.JoinHostPort("127.0.0.1", port))
	case "ip6-localhost", "::1":
		return net.ResolveUDPAddr("udp6", net.JoinHostPort("::1", port))
	default:
		return net.ResolveUDPAddr("udp", address)
	}
}

// NewEngine binds a UDP socket at address and constructs an Engine ready to
// run. The caller owns the returned Engine's lifetime and should call Run.
func NewEngine(address string, cfg Config, log *zap.Logger) (*Engine, error) {
	addr, err := ResolveBindAddr(address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpserver: listen on %s: %w", address, err)
	}
	fmt.Printf("udp engine listening on %s\n", conn.LocalAddr())
	return &Engine{
		cfg:    cfg,
		conn:   conn,
		reg:    registry.NewStore(cfg.MaxSessions),
		gen:    task.NewDefaultGenerator(),
		shaper: ratelimit.NewTokenBucket(cfg.RetransmitRatePerSec, cfg.RetransmitRatePerSec),
		log:    log,
	}, nil
}

// Close releases the engine's socket.
func (e *Engine) Close() error { return e.conn.Close() }

// Counters returns a point-in-time snapshot of the engine's diagnostic
// counters, safe to call concurrently with Run.
func (e *Engine) Counters() Counters { return e.counters.snapshot() }

// Run drives the dispatch loop until stop is closed or the read deadline
// cannot be set; any other read error is logged and the loop continues.
// Each iteration blocks for at most SelectTick waiting for a datagram, then
// runs the eviction/retransmit sweep if a read timed out or SelectTick has
// passed since the last sweep.
func (e *Engine) Run(stop <-chan struct{}) error {
	buf := make([]byte, 64*1024)
	lastSweep := time.Now()
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := e.conn.SetReadDeadline(time.Now().Add(e.cfg.SelectTick)); err != nil {
			return fmt.Errorf("udpserver: set read deadline: %w", err)
		}
		n, raddr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				lastSweep = time.Now()
				e.sweep(lastSweep)
				continue
			}
			select {
			case <-stop:
				return nil
			default:
			}
			e.log.Warn("udp read error", zap.Error(err))
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		e.dispatch(payload, raddr, time.Now())
		if now := time.Now(); now.Sub(lastSweep) >= e.cfg.SelectTick {
			lastSweep = now
			e.sweep(now)
		}
		e.maybeLogDiagnostics(time.Now())
	}
}

func (e *Engine) dispatch(payload []byte, raddr *net.UDPAddr, now time.Time) {
	atomic.AddInt64(&e.counters.PacketsReceived, 1)
	switch protocol.Classify(payload) {
	case protocol.KindText:
		atomic.AddInt64(&e.counters.TextPackets, 1)
	case protocol.KindBinaryHandshake, protocol.KindBinaryProtocol:
		atomic.AddInt64(&e.counters.BinaryPackets, 1)
	}

	ev, ok := ParseDatagram(payload)
	if !ok {
		e.log.Debug("dropped malformed datagram", zap.Stringer("peer", raddr), zap.Int("len", len(payload)))
		return
	}
	if ev.Dialect == registry.DialectText && !e.cfg.TextEnabled {
		e.log.Debug("dropped text datagram, text dialect disabled", zap.Stringer("peer", raddr))
		return
	}

	key := registry.KeyFromUDPAddr(raddr)
	existing, hasSession := e.reg.Lookup(key)
	var existingPtr *registry.Session
	if hasSession {
		existingPtr = &existing
	}

	next, frame, outcome := Transition(existingPtr, ev, now, e.cfg.TaskLifetime, e.gen)
	e.bumpOutcome(outcome)

	if next != nil {
		var err error
		if hasSession {
			err = e.reg.Save(key, *next)
		} else {
			err = e.reg.Insert(key, *next)
		}
		if err != nil {
			e.log.Warn("registry write failed", zap.Error(err), zap.Stringer("peer", raddr))
		}
	}

	if frame != nil {
		if _, err := e.conn.WriteToUDP(frame.Payload, raddr); err != nil {
			e.log.Warn("udp send failed", zap.Error(err), zap.Stringer("peer", raddr))
		}
	}
}

func (e *Engine) bumpOutcome(o Outcome) {
	switch o {
	case OutcomeTaskIssued:
		atomic.AddInt64(&e.counters.TasksIssued, 1)
	case OutcomeAnswerOK:
		atomic.AddInt64(&e.counters.AnswersOK, 1)
	case OutcomeAnswerNotOK:
		atomic.AddInt64(&e.counters.AnswersNotOK, 1)
	case OutcomeRetransmit:
		atomic.AddInt64(&e.counters.Retransmits, 1)
	case OutcomeReAck:
		atomic.AddInt64(&e.counters.ReAcks, 1)
	}
}

// sweep evicts stale sessions and issues proactive retransmits for the rest,
// capped by the shaper's token bucket.
func (e *Engine) sweep(now time.Time) {
	stats := e.reg.Sweep(now, e.cfg.TaskLifetime, e.cfg.FinalizeGrace)
	evicted := int64(stats.Expired + stats.Finalized)
	if evicted > 0 {
		atomic.AddInt64(&e.counters.SessionsEvicted, evicted)
	}

	for _, key := range stats.Retransmits {
		sess, ok := e.reg.Lookup(key)
		if !ok || sess.Phase != registry.PhaseAwaitingAnswer {
			continue
		}
		if !e.dueForRetransmit(sess, now) {
			continue
		}
		if allowed, _ := e.shaper.Allow(1); !allowed {
			continue
		}
		frame := taskFrame(sess.Task, sess.Dialect)
		addr := &net.UDPAddr{IP: peerIP(key), Port: int(key.Port)}
		if _, err := e.conn.WriteToUDP(frame.Payload, addr); err != nil {
			e.log.Warn("retransmit failed", zap.Error(err), zap.String("peer", key.String()))
			continue
		}
		sess.LastSentAt = now
		sess.ResendCount++
		if err := e.reg.Save(key, sess); err != nil {
			e.log.Warn("registry save failed during retransmit", zap.Error(err))
			continue
		}
		atomic.AddInt64(&e.counters.Retransmits, 1)
	}
}

func (e *Engine) dueForRetransmit(sess registry.Session, now time.Time) bool {
	sched := e.cfg.RetransmitSchedule
	if len(sched) == 0 {
		return false
	}
	idx := sess.ResendCount
	if idx >= len(sched) {
		idx = len(sched) - 1
	}
	return now.Sub(sess.LastSentAt) >= sched[idx]
}

func peerIP(k registry.PeerKey) net.IP {
	if k.Family == 4 {
		return net.IP(k.Addr[:4])
	}
	return net.IP(k.Addr[:])
}

// maybeLogDiagnostics prints the counters at most once per second, per
// spec.md §4.2.
func (e *Engine) maybeLogDiagnostics(now time.Time) {
	if e.cfg.Quiet {
		return
	}
	if !e.lastDiag.IsZero() && now.Sub(e.lastDiag) < time.Second {
		return
	}
	e.lastDiag = now
	c := e.Counters()
	e.log.Info("udp diagnostics",
		zap.Int64("packets_received", c.PacketsReceived),
		zap.Int64("binary_packets", c.BinaryPackets),
		zap.Int64("text_packets", c.TextPackets),
		zap.Int64("tasks_issued", c.TasksIssued),
		zap.Int64("answers_ok", c.AnswersOK),
		zap.Int64("answers_not_ok", c.AnswersNotOK),
		zap.Int64("retransmits", c.Retransmits),
		zap.Int64("re_acks", c.ReAcks),
		zap.Int("sessions", e.reg.Len()),
	)
}

// Package task implements the arithmetic task model: generation of an
// assignment and evaluation of its reference answer.
package task

import (
	"time"

	"calcmesh/pkg/protocol"
)

// Task is a single arithmetic assignment issued to a client.
type Task struct {
	ID        uint32
	Op        protocol.Operation
	V1, V2    int32
	CreatedAt time.Time
}

// Age reports how long ago the task was created, relative to now.
func (t Task) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// Eval computes the reference answer for the task's operation, matching
// the wraparound rule: overflow wraps modulo 2^32 two's complement. Going
// through int64 and truncating to int32 gives the same bit pattern as
// native 32-bit wraparound arithmetic would.
func Eval(op protocol.Operation, v1, v2 int32) int32 {
	a, b := int64(v1), int64(v2)
	var r int64
	switch op {
	case protocol.OpAdd:
		r = a + b
	case protocol.OpSub:
		r = a - b
	case protocol.OpMul:
		r = a * b
	case protocol.OpDiv:
		if b == 0 {
			return 0
		}
		r = a / b // truncating integer division
	default:
		return 0
	}
	return int32(uint32(r))
}

// Eval returns Eval(t.Op, t.V1, t.V2).
func (t Task) Eval() int32 { return Eval(t.Op, t.V1, t.V2) }

package task

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"calcmesh/pkg/protocol"
)

// operandBound is the inclusive magnitude bound for generated operands,
// matching the reference generator's range.
const operandBound = 1000

// RandInt returns a pseudo-random int32 in [lo, hi], inclusive.
type RandInt func(lo, hi int32) int32

// Generator produces Tasks with unique, monotonically increasing ids and an
// injectable RandInt source, so tests can supply deterministic sequences.
type Generator struct {
	rnd    RandInt
	nextID uint32
}

// NewGenerator constructs a Generator from the given RandInt collaborator.
// ids start at 1, since 0 is reserved to mean "no task" on the wire.
func NewGenerator(rnd RandInt) *Generator {
	return &Generator{rnd: rnd, nextID: 0}
}

// NewDefaultGenerator builds a Generator seeded from the system clock at
// construction, never reseeded afterward (spec: "seeded once at startup").
func NewDefaultGenerator() *Generator {
	src := rand.NewPCG(uint64(time.Now().UnixNano()), 0xA5A5A5A5)
	r := rand.New(src)
	rnd := func(lo, hi int32) int32 {
		if hi <= lo {
			return lo
		}
		return lo + int32(r.Int64N(int64(hi-lo+1)))
	}
	return NewGenerator(rnd)
}

// Next allocates a fresh task id and generates a random task. DIV operands
// are redrawn until v2 != 0, matching the reference implementation's
// retry-until-valid loop.
func (g *Generator) Next(now time.Time) Task {
	id := atomic.AddUint32(&g.nextID, 1)
	op := protocol.Operation(1 + g.rnd(0, 3))
	v1 := g.rnd(-operandBound, operandBound)
	v2 := g.rnd(-operandBound, operandBound)
	if op == protocol.OpDiv {
		for v2 == 0 {
			v2 = g.rnd(-operandBound, operandBound)
		}
	}
	return Task{ID: id, Op: op, V1: v1, V2: v2, CreatedAt: now}
}

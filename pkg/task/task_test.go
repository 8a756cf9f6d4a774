package task

import (
	"testing"
	"time"

	"calcmesh/pkg/protocol"
)

func TestEvalBasicOps(t *testing.T) {
	cases := []struct {
		op       protocol.Operation
		v1, v2   int32
		expected int32
	}{
		{protocol.OpAdd, 3, 4, 7},
		{protocol.OpSub, 10, 4, 6},
		{protocol.OpMul, 6, 5, 30},
		{protocol.OpDiv, 10, 3, 3},
		{protocol.OpDiv, -10, 3, -3}, // truncating toward zero
	}
	for _, c := range cases {
		if got := Eval(c.op, c.v1, c.v2); got != c.expected {
			t.Fatalf("Eval(%v, %d, %d) = %d, want %d", c.op, c.v1, c.v2, got, c.expected)
		}
	}
}

func TestEvalOverflowWraps(t *testing.T) {
	// math.MaxInt32 + 1 wraps to math.MinInt32 under two's complement.
	got := Eval(protocol.OpAdd, 2147483647, 1)
	if got != -2147483648 {
		t.Fatalf("overflow add = %d, want -2147483648", got)
	}
}

func TestEvalDivByZero(t *testing.T) {
	if got := Eval(protocol.OpDiv, 5, 0); got != 0 {
		t.Fatalf("div by zero = %d, want 0 (never issued by the generator, but must not panic)", got)
	}
}

func TestGeneratorNeverIssuesDivByZero(t *testing.T) {
	// op selector picks DIV (rnd(0,3)=3 -> op=4), then v1, then v2=0 twice
	// before a non-zero redraw.
	seq := []int32{3, 100, 0, 0, 5}
	idx := 0
	rnd := func(lo, hi int32) int32 {
		v := seq[idx%len(seq)]
		idx++
		return v
	}
	g := NewGenerator(rnd)
	tk := g.Next(time.Now())
	if tk.Op != protocol.OpDiv {
		t.Fatalf("expected DIV task, got %v", tk.Op)
	}
	if tk.V2 == 0 {
		t.Fatalf("generator issued a DIV task with v2=0")
	}
}

func TestGeneratorUniqueIncreasingIDs(t *testing.T) {
	g := NewGenerator(func(lo, hi int32) int32 { return lo })
	now := time.Now()
	t1 := g.Next(now)
	t2 := g.Next(now)
	if t2.ID <= t1.ID {
		t.Fatalf("expected increasing ids, got %d then %d", t1.ID, t2.ID)
	}
	if t1.ID == 0 || t2.ID == 0 {
		t.Fatalf("task ids must be non-zero")
	}
}

func TestTaskAge(t *testing.T) {
	now := time.Now()
	tk := Task{CreatedAt: now.Add(-5 * time.Second)}
	if age := tk.Age(now); age < 5*time.Second || age > 6*time.Second {
		t.Fatalf("unexpected age: %v", age)
	}
}

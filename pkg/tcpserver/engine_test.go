package tcpserver

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"calcmesh/pkg/protocol"
	"calcmesh/pkg/task"
)

func startEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	gen := task.NewGenerator(func(lo, hi int32) int32 { return 3 })
	eng, err := NewEngine("127.0.0.1:0", DefaultConfig(), gen, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = eng.Serve(stop)
		close(done)
	}()
	return eng, func() {
		close(stop)
		eng.Close()
		<-done
	}
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.SetDeadline(time.Now().Add(3 * time.Second))
	return c
}

func TestTCPTextDialectSuccess(t *testing.T) {
	eng, stop := startEngine(t)
	defer stop()
	c := dial(t, eng.ln.Addr())
	defer c.Close()
	br := bufio.NewReader(c)

	// Drain the offer: two dialect lines plus a blank terminator.
	for i := 0; i < 3; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			t.Fatalf("read offer line %d: %v", i, err)
		}
	}
	if _, err := c.Write([]byte("TEXT TCP 1.1 OK\n")); err != nil {
		t.Fatalf("write selection: %v", err)
	}
	assignment, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read assignment: %v", err)
	}
	fields := strings.Fields(assignment)
	if len(fields) != 4 || fields[0] != "ASSIGNMENT:" {
		t.Fatalf("unexpected assignment line: %q", assignment)
	}
	v1 := mustAtoi(t, fields[2])
	v2 := mustAtoi(t, fields[3])
	op, ok := protocol.ParseOperation(fields[1])
	if !ok {
		t.Fatalf("unrecognized op %q", fields[1])
	}
	result := task.Eval(op, int32(v1), int32(v2))

	if _, err := c.Write([]byte(strconv.Itoa(int(result)) + "\n")); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	reply, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !strings.HasPrefix(reply, "OK") {
		t.Fatalf("reply = %q, want OK prefix", reply)
	}
}

func TestTCPBinaryDialectSuccess(t *testing.T) {
	eng, stop := startEngine(t)
	defer stop()
	c := dial(t, eng.ln.Addr())
	defer c.Close()
	br := bufio.NewReader(c)
	for i := 0; i < 3; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			t.Fatalf("read offer line %d: %v", i, err)
		}
	}
	if _, err := c.Write([]byte("BINARY TCP 1.1 OK\n")); err != nil {
		t.Fatalf("write selection: %v", err)
	}
	buf := make([]byte, 26)
	if _, err := readFullN(br, buf); err != nil {
		t.Fatalf("read task: %v", err)
	}
	p, err := protocol.DecodeProtocol(buf)
	if err != nil {
		t.Fatalf("decode task: %v", err)
	}
	result := task.Eval(p.Op, p.V1, p.V2)
	if _, err := c.Write(protocol.EncodeAnswer(p.ID, p.Op, p.V1, p.V2, result)); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	ackBuf := make([]byte, 12)
	if _, err := readFullN(br, ackBuf); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	m, err := protocol.DecodeMessage(ackBuf)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if m.Message != protocol.AckOK {
		t.Fatalf("ack = %d, want AckOK", m.Message)
	}
}

func TestTCPUnrecognizedSelectionGetsError(t *testing.T) {
	eng, stop := startEngine(t)
	defer stop()
	c := dial(t, eng.ln.Addr())
	defer c.Close()
	br := bufio.NewReader(c)
	for i := 0; i < 3; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			t.Fatalf("read offer line %d: %v", i, err)
		}
	}
	if _, err := c.Write([]byte("GARBAGE\n")); err != nil {
		t.Fatalf("write selection: %v", err)
	}
	reply, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !strings.HasPrefix(reply, "ERROR") {
		t.Fatalf("reply = %q, want ERROR prefix", reply)
	}
}

func readFullN(br *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := br.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("strconv.Atoi(%q): %v", s, err)
	}
	return n
}

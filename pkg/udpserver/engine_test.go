package udpserver

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"calcmesh/pkg/protocol"
)

func TestResolveBindAddrNamedForms(t *testing.T) {
	cases := []struct {
		addr    string
		wantIP  string
		wantNet string
	}{
		{"localhost:9000", "127.0.0.1", "udp4"},
		{"ip4-localhost:9000", "127.0.0.1", "udp4"},
		{"127.0.0.1:9000", "127.0.0.1", "udp4"},
		{"ip6-localhost:9000", "::1", "udp6"},
		{"[::1]:9000", "::1", "udp6"},
	}
	for _, c := range cases {
		got, err := ResolveBindAddr(c.addr)
		if err != nil {
			t.Fatalf("ResolveBindAddr(%q): %v", c.addr, err)
		}
		if got.IP.String() != c.wantIP {
			t.Fatalf("ResolveBindAddr(%q).IP = %v, want %v", c.addr, got.IP, c.wantIP)
		}
	}
}

func TestResolveBindAddrArbitraryHost(t *testing.T) {
	got, err := ResolveBindAddr("0.0.0.0:9001")
	if err != nil {
		t.Fatalf("ResolveBindAddr: %v", err)
	}
	if got.Port != 9001 {
		t.Fatalf("Port = %d, want 9001", got.Port)
	}
}

func TestEngineHandshakeAndAnswerRoundTrip(t *testing.T) {
	log := zap.NewNop()
	eng, err := NewEngine("127.0.0.1:0", DefaultConfig(), log)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = eng.Run(stop)
		close(done)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	client, err := net.DialUDP("udp", nil, eng.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := client.Write(protocol.EncodeMessage(protocol.NewHandshake())); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read task: %v", err)
	}
	p, err := protocol.DecodeProtocol(buf[:n])
	if err != nil {
		t.Fatalf("decode task: %v", err)
	}
	result := p.V1 + p.V2
	switch p.Op {
	case protocol.OpSub:
		result = p.V1 - p.V2
	case protocol.OpMul:
		result = p.V1 * p.V2
	case protocol.OpDiv:
		result = p.V1 / p.V2
	}

	if _, err := client.Write(protocol.EncodeAnswer(p.ID, p.Op, p.V1, p.V2, result)); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	m, err := protocol.DecodeMessage(buf[:n])
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if m.Message != protocol.AckOK {
		t.Fatalf("ack = %d, want AckOK", m.Message)
	}

	if eng.Counters().AnswersOK != 1 {
		t.Fatalf("AnswersOK = %d, want 1", eng.Counters().AnswersOK)
	}
}

func TestEngineDropsTextWhenDisabled(t *testing.T) {
	log := zap.NewNop()
	cfg := DefaultConfig()
	cfg.TextEnabled = false
	eng, err := NewEngine("127.0.0.1:0", cfg, log)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer eng.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = eng.Run(stop)
		close(done)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	client, err := net.DialUDP("udp", nil, eng.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(300 * time.Millisecond))

	if _, err := client.Write([]byte(protocol.TextUDPHandshake + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected no reply when text dialect is disabled")
	}
}

package protocol

import (
	"strings"
	"testing"
)

func TestFormatTextTask(t *testing.T) {
	got := FormatTextTask(7, OpMul, 6, 5)
	want := "7 mul 6 5\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestParseTextAnswer(t *testing.T) {
	id, result, err := ParseTextAnswer("7 30\r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 7 || result != 30 {
		t.Fatalf("got id=%d result=%d", id, result)
	}
}

func TestParseTextAnswerMalformed(t *testing.T) {
	if _, _, err := ParseTextAnswer("not-a-number 5"); err == nil {
		t.Fatalf("expected error")
	}
	if _, _, err := ParseTextAnswer("5"); err == nil {
		t.Fatalf("expected error for missing field")
	}
}

func TestParseTextHandshake(t *testing.T) {
	if !ParseTextHandshake("TEXT UDP 1.1\r\n") {
		t.Fatalf("expected handshake match")
	}
	if ParseTextHandshake("TEXT UDP 1.2") {
		t.Fatalf("expected version mismatch to fail")
	}
}

func TestTextRoundTrip(t *testing.T) {
	line := FormatTextTask(42, OpDiv, 10, 3)
	id, result, err := ParseTextAnswer(strings.Fields(line)[0] + " 3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 42 || result != 3 {
		t.Fatalf("unexpected parse result from line %q", line)
	}
}

func TestParseTCPSelection(t *testing.T) {
	cases := map[string]TCPDialect{
		"TEXT TCP 1.1 OK\n":      TCPDialectText,
		"binary tcp 1.1 ok\r\n":  TCPDialectBinary,
		"BOGUS\n":                TCPDialectUnknown,
	}
	for line, want := range cases {
		if got := ParseTCPSelection(line); got != want {
			t.Fatalf("ParseTCPSelection(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestParseTextResultToleratesFloat(t *testing.T) {
	n, err := ParseTextResult("7.00009\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != 7 {
		t.Fatalf("got %d want 7", n)
	}
	if _, err := ParseTextResult("7.1\n"); err == nil {
		t.Fatalf("expected error for result outside tolerance")
	}
}

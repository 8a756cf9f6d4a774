package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TextUDPHandshake is the exact line a UDP client sends to request the text
// dialect.
const TextUDPHandshake = "TEXT UDP 1.1"

// Text TCP dialect offer/selection tokens (see the TCP engine package).
const (
	TextTCPOffer     = "TEXT TCP 1.1"
	BinaryTCPOffer   = "BINARY TCP 1.1"
	textTCPSelectSuf = " OK"
)

// FormatTextTask renders a task as the text-dialect assignment line:
// "<id> <op-name> <v1> <v2>\n".
func FormatTextTask(id uint32, op Operation, v1, v2 int32) string {
	return fmt.Sprintf("%d %s %d %d\n", id, op, v1, v2)
}

// FormatTextAck renders the text-dialect UDP acknowledgement.
func FormatTextAck(ok bool) string {
	if ok {
		return "OK\n"
	}
	return "NOT OK\n"
}

// ParseTextAnswer parses a text-dialect UDP answer line of the form
// "<uint> <int>", tolerating a trailing CR/LF and surrounding whitespace.
func ParseTextAnswer(line string) (id uint32, result int32, err error) {
	line = stripEOL(line)
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("protocol: malformed text answer %q", line)
	}
	id64, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("protocol: bad answer id: %w", err)
	}
	res64, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("protocol: bad answer result: %w", err)
	}
	return uint32(id64), int32(res64), nil
}

// ParseTextHandshake reports whether line (after stripping CR/LF) is exactly
// the UDP text handshake line.
func ParseTextHandshake(line string) bool {
	return stripEOL(line) == TextUDPHandshake
}

// FormatTCPOffer renders the server's dialect offer: one line per supported
// dialect followed by a blank terminator line.
func FormatTCPOffer(text, binary bool) string {
	var b strings.Builder
	if text {
		b.WriteString(TextTCPOffer + "\n")
	}
	if binary {
		b.WriteString(BinaryTCPOffer + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// TCPDialect identifies the dialect a client selected during TCP negotiation.
type TCPDialect int

const (
	TCPDialectUnknown TCPDialect = iota
	TCPDialectText
	TCPDialectBinary
)

// ParseTCPSelection parses a client's selection line, case-insensitively.
func ParseTCPSelection(line string) TCPDialect {
	line = strings.ToUpper(stripEOL(line))
	switch line {
	case strings.ToUpper(TextTCPOffer + textTCPSelectSuf):
		return TCPDialectText
	case strings.ToUpper(BinaryTCPOffer + textTCPSelectSuf):
		return TCPDialectBinary
	default:
		return TCPDialectUnknown
	}
}

// FormatTextAssignment renders the TCP text dialect's assignment line.
func FormatTextAssignment(op Operation, v1, v2 int32) string {
	return fmt.Sprintf("ASSIGNMENT: %s %d %d\n", op, v1, v2)
}

// FormatTextResultOK renders the TCP text dialect's success reply.
func FormatTextResultOK(n int64) string {
	return fmt.Sprintf("OK (myresult=%d)\n", n)
}

// ParseTextResult parses a TCP text dialect answer line, accepting a value
// within 1e-4 of an integer as equivalent to that integer (spec allows
// floating point client replies that round-trip to the same result).
func ParseTextResult(line string) (int64, error) {
	line = stripEOL(line)
	f, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("protocol: malformed TCP text result %q: %w", line, err)
	}
	rounded := math.Round(f)
	if math.Abs(f-rounded) > 1e-4 {
		return 0, fmt.Errorf("protocol: TCP text result %q not integer-equivalent", line)
	}
	return int64(rounded), nil
}

func stripEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return strings.TrimSpace(s)
}

// Command calcclient is a reference test client exercising both transports
// and dialects of the calc service, with optional fault injection for
// exercising server-side retry/timeout paths (spec component C6).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"calcmesh/pkg/protocol"
	"calcmesh/pkg/task"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		transport = flag.String("transport", "udp", "transport to use: udp or tcp")
		dialect   = flag.String("dialect", "binary", "dialect to use: binary or text")
		wrong     = flag.Bool("wrong", false, "deliberately send an incorrect result")
		dropN     = flag.Int("drop-n", 0, "silently drop the first N answers (UDP only), to exercise retransmission")
		delay     = flag.Duration("delay", 0, "sleep this long before answering, to exercise lifetime/timeout expiry")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <host>:<port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	addr := flag.Arg(0)

	var err error
	switch strings.ToLower(*transport) {
	case "udp":
		err = runUDP(addr, *dialect, *wrong, *dropN, *delay)
	case "tcp":
		err = runTCP(addr, *dialect, *wrong, *delay)
	default:
		err = fmt.Errorf("unknown transport %q", *transport)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "calcclient: %v\n", err)
		return 1
	}
	return 0
}

func runUDP(addr, dialect string, wrong bool, dropN int, delay time.Duration) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(15 * time.Second))

	text := strings.EqualFold(dialect, "text")
	if text {
		if _, err := conn.Write([]byte(protocol.TextUDPHandshake + "\n")); err != nil {
			return fmt.Errorf("send handshake: %w", err)
		}
	} else {
		if _, err := conn.Write(protocol.EncodeMessage(protocol.NewHandshake())); err != nil {
			return fmt.Errorf("send handshake: %w", err)
		}
	}

	buf := make([]byte, 1024)
	for attempt := 0; ; attempt++ {
		n, err := conn.Read(buf)
		if err != nil {
			return fmt.Errorf("read task: %w", err)
		}
		var id uint32
		var op protocol.Operation
		var v1, v2 int32
		if text {
			parts := strings.Fields(strings.TrimSpace(string(buf[:n])))
			if len(parts) != 4 {
				return fmt.Errorf("malformed text task %q", buf[:n])
			}
			id64, _ := strconv.ParseUint(parts[0], 10, 32)
			parsedOp, ok := protocol.ParseOperation(parts[1])
			if !ok {
				return fmt.Errorf("unknown op %q", parts[1])
			}
			v164, _ := strconv.ParseInt(parts[2], 10, 32)
			v264, _ := strconv.ParseInt(parts[3], 10, 32)
			id, op, v1, v2 = uint32(id64), parsedOp, int32(v164), int32(v264)
		} else {
			p, err := protocol.DecodeProtocol(buf[:n])
			if err != nil {
				return fmt.Errorf("decode task: %w", err)
			}
			id, op, v1, v2 = p.ID, p.Op, p.V1, p.V2
		}

		if attempt < dropN {
			continue // drop this answer; wait for the server's retransmission
		}

		if delay > 0 {
			time.Sleep(delay)
		}
		result := task.Eval(op, v1, v2)
		if wrong {
			result++
		}
		if text {
			_, err = conn.Write([]byte(fmt.Sprintf("%d %d\n", id, result)))
		} else {
			_, err = conn.Write(protocol.EncodeAnswer(id, op, v1, v2, result))
		}
		if err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
		n, err = conn.Read(buf)
		if err != nil {
			return fmt.Errorf("read ack: %w", err)
		}
		if text {
			fmt.Println(strings.TrimSpace(string(buf[:n])))
		} else {
			m, err := protocol.DecodeMessage(buf[:n])
			if err != nil {
				return fmt.Errorf("decode ack: %w", err)
			}
			if m.Message == protocol.AckOK {
				fmt.Println("OK")
			} else {
				fmt.Println("NOT OK")
			}
		}
		return nil
	}
}

func runTCP(addr, dialect string, wrong bool, delay time.Duration) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(15 * time.Second))
	br := bufio.NewReader(conn)

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read offer: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	binary := strings.EqualFold(dialect, "binary")
	if binary {
		if _, err := conn.Write([]byte(protocol.BinaryTCPOffer + " OK\n")); err != nil {
			return fmt.Errorf("send selection: %w", err)
		}
		return tcpBinarySession(conn, br, wrong, delay)
	}
	if _, err := conn.Write([]byte(protocol.TextTCPOffer + " OK\n")); err != nil {
		return fmt.Errorf("send selection: %w", err)
	}
	return tcpTextSession(conn, br, wrong, delay)
}

func tcpTextSession(conn net.Conn, br *bufio.Reader, wrong bool, delay time.Duration) error {
	line, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read assignment: %w", err)
	}
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 4 || fields[0] != "ASSIGNMENT:" {
		return fmt.Errorf("malformed assignment %q", line)
	}
	op, ok := protocol.ParseOperation(fields[1])
	if !ok {
		return fmt.Errorf("unknown op %q", fields[1])
	}
	v164, _ := strconv.ParseInt(fields[2], 10, 32)
	v264, _ := strconv.ParseInt(fields[3], 10, 32)
	result := task.Eval(op, int32(v164), int32(v264))
	if wrong {
		result++
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if _, err := conn.Write([]byte(strconv.Itoa(int(result)) + "\n")); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	reply, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	fmt.Println(strings.TrimSpace(reply))
	return nil
}

func tcpBinarySession(conn net.Conn, br *bufio.Reader, wrong bool, delay time.Duration) error {
	buf := make([]byte, 26)
	if _, err := io.ReadFull(br, buf); err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	p, err := protocol.DecodeProtocol(buf)
	if err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	result := task.Eval(p.Op, p.V1, p.V2)
	if wrong {
		result++
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if _, err := conn.Write(protocol.EncodeAnswer(p.ID, p.Op, p.V1, p.V2, result)); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	ackBuf := make([]byte, 12)
	if _, err := io.ReadFull(br, ackBuf); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	m, err := protocol.DecodeMessage(ackBuf)
	if err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	if m.Message == protocol.AckOK {
		fmt.Println("OK")
	} else {
		fmt.Println("NOT OK")
	}
	return nil
}

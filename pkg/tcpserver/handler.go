package tcpserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"calcmesh/pkg/protocol"
	"calcmesh/pkg/task"
)

// handler runs the offer/selection exchange and one dialect session on a
// single accepted connection, then closes it. One assignment per
// connection, per spec.md §4.3.
type handler struct {
	conn net.Conn
	cfg  Config
	gen  *task.Generator
	log  *zap.Logger
}

func (h *handler) run() {
	defer h.conn.Close()
	br := bufio.NewReader(h.conn)

	if err := h.writeLine(protocol.FormatTCPOffer(h.cfg.SupportsText, h.cfg.SupportsBinary)); err != nil {
		h.logErr("write offer", err)
		return
	}

	line, err := h.readLine(br)
	if err != nil {
		h.handleReadErr("selection", err)
		return
	}

	switch protocol.ParseTCPSelection(line) {
	case protocol.TCPDialectText:
		h.runText(br)
	case protocol.TCPDialectBinary:
		h.runBinary(br)
	default:
		_ = h.writeLine("ERROR unrecognized selection\n")
	}
}

func (h *handler) runText(br *bufio.Reader) {
	tk := h.gen.Next(time.Now())
	if err := h.writeLine(protocol.FormatTextAssignment(tk.Op, tk.V1, tk.V2)); err != nil {
		h.logErr("write assignment", err)
		return
	}
	line, err := h.readLine(br)
	if err != nil {
		h.handleReadErr("text answer", err)
		return
	}
	n, err := protocol.ParseTextResult(line)
	if err != nil {
		_ = h.writeLine("ERROR\n")
		return
	}
	if n == int64(tk.Eval()) {
		_ = h.writeLine(protocol.FormatTextResultOK(n))
	} else {
		_ = h.writeLine("ERROR\n")
	}
}

func (h *handler) runBinary(br *bufio.Reader) {
	tk := h.gen.Next(time.Now())
	if err := h.writeBytes(protocol.EncodeTask(tk.ID, tk.Op, tk.V1, tk.V2)); err != nil {
		h.logErr("write task", err)
		return
	}
	buf := make([]byte, 26)
	if err := h.readFull(br, buf); err != nil {
		h.handleReadErrBinary("binary answer", err)
		return
	}
	p, err := protocol.DecodeProtocol(buf)
	if err != nil {
		return
	}
	ok := p.Type == protocol.RecordTypeAnswer && p.ID == tk.ID && p.Result == tk.Eval()
	_ = h.writeBytes(protocol.EncodeMessage(protocol.NewAck(ok)))
}

func (h *handler) readLine(br *bufio.Reader) (string, error) {
	if err := h.conn.SetReadDeadline(time.Now().Add(h.cfg.OpTimeout)); err != nil {
		return "", err
	}
	return br.ReadString('\n')
}

func (h *handler) readFull(br *bufio.Reader, buf []byte) error {
	if err := h.conn.SetReadDeadline(time.Now().Add(h.cfg.OpTimeout)); err != nil {
		return err
	}
	_, err := io.ReadFull(br, buf)
	return err
}

func (h *handler) writeLine(s string) error {
	return h.writeBytes([]byte(s))
}

func (h *handler) writeBytes(b []byte) error {
	if err := h.conn.SetWriteDeadline(time.Now().Add(h.cfg.OpTimeout)); err != nil {
		return err
	}
	_, err := h.conn.Write(b)
	return err
}

// handleReadErr responds to a timed-out or failed read during a text-dialect
// exchange (including the offer/selection stage, which is always textual)
// with "ERROR TO\n" on timeout, per spec.md §4.3.
func (h *handler) handleReadErr(what string, err error) {
	if isTimeout(err) {
		_ = h.writeLine("ERROR TO\n")
		return
	}
	if !errors.Is(err, io.EOF) {
		h.logErr(what, err)
	}
}

// handleReadErrBinary responds to a binary-dialect read failure by closing
// the connection with no reply, per spec.md §4.3's "closes (binary)" rule.
func (h *handler) handleReadErrBinary(what string, err error) {
	if !isTimeout(err) && !errors.Is(err, io.EOF) {
		h.logErr(what, err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (h *handler) logErr(what string, err error) {
	if h.log == nil {
		return
	}
	h.log.Warn("tcp handler error", zap.String("stage", what), zap.Error(err), zap.Stringer("peer", h.conn.RemoteAddr()))
}

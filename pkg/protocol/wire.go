package protocol

import (
	"encoding/binary"
	"errors"
)

// Fixed record sizes. Dialect disambiguation (see Classify) keys off these.
const (
	calcMessageSize  = 12
	calcProtocolSize = 26
)

// CalcMessage is the 12-byte handshake/acknowledgement record.
//
//	offset size field
//	 0      2   Type
//	 2      4   Message
//	 6      2   Protocol
//	 8      2   MajorVersion
//	10      2   MinorVersion
//
// All fields are big-endian; there is no padding between them.
type CalcMessage struct {
	Type         uint16
	Message      uint32
	Protocol     uint16
	MajorVersion uint16
	MinorVersion uint16
}

// EncodeMessage serializes m field-by-field into a 12-byte big-endian buffer.
func EncodeMessage(m CalcMessage) []byte {
	buf := make([]byte, calcMessageSize)
	binary.BigEndian.PutUint16(buf[0:2], m.Type)
	binary.BigEndian.PutUint32(buf[2:6], m.Message)
	binary.BigEndian.PutUint16(buf[6:8], m.Protocol)
	binary.BigEndian.PutUint16(buf[8:10], m.MajorVersion)
	binary.BigEndian.PutUint16(buf[10:12], m.MinorVersion)
	return buf
}

// DecodeMessage parses a CalcMessage from exactly 12 bytes.
func DecodeMessage(buf []byte) (CalcMessage, error) {
	if len(buf) != calcMessageSize {
		return CalcMessage{}, errors.New("protocol: CalcMessage requires exactly 12 bytes")
	}
	return CalcMessage{
		Type:         binary.BigEndian.Uint16(buf[0:2]),
		Message:      binary.BigEndian.Uint32(buf[2:6]),
		Protocol:     binary.BigEndian.Uint16(buf[6:8]),
		MajorVersion: binary.BigEndian.Uint16(buf[8:10]),
		MinorVersion: binary.BigEndian.Uint16(buf[10:12]),
	}, nil
}

// NewHandshake builds the canonical client->server handshake message.
func NewHandshake() CalcMessage {
	return CalcMessage{
		Type:         MsgTypeHandshake,
		Message:      1,
		Protocol:     ProtocolID,
		MajorVersion: VersionMajor,
		MinorVersion: VersionMinor,
	}
}

// NewAck builds the server->client acknowledgement message carrying ok/not-ok.
func NewAck(ok bool) CalcMessage {
	result := AckNotOK
	if ok {
		result = AckOK
	}
	return CalcMessage{
		Type:         MsgTypeAcknowledge,
		Message:      result,
		Protocol:     ProtocolID,
		MajorVersion: VersionMajor,
		MinorVersion: VersionMinor,
	}
}

// IsHandshake reports whether m is a well-formed client handshake: the
// fixed type/protocol/version triple required by the wire spec.
func (m CalcMessage) IsHandshake() bool {
	return m.Type == MsgTypeHandshake && m.Protocol == ProtocolID &&
		m.MajorVersion == VersionMajor && m.MinorVersion == VersionMinor
}

// CalcProtocol is the 26-byte task/answer record.
//
//	offset size field
//	 0      2   Type (record-type: 1=task, 2=answer)
//	 2      2   MajorVersion
//	 4      2   MinorVersion
//	 6      4   ID
//	10      4   Op
//	14      4   V1
//	18      4   V2
//	22      4   Result
//
// All fields are big-endian; there is no padding between them.
type CalcProtocol struct {
	Type         uint16
	MajorVersion uint16
	MinorVersion uint16
	ID           uint32
	Op           Operation
	V1           int32
	V2           int32
	Result       int32
}

// EncodeProtocol serializes p field-by-field into a 26-byte big-endian buffer.
func EncodeProtocol(p CalcProtocol) []byte {
	buf := make([]byte, calcProtocolSize)
	binary.BigEndian.PutUint16(buf[0:2], p.Type)
	binary.BigEndian.PutUint16(buf[2:4], p.MajorVersion)
	binary.BigEndian.PutUint16(buf[4:6], p.MinorVersion)
	binary.BigEndian.PutUint32(buf[6:10], p.ID)
	binary.BigEndian.PutUint32(buf[10:14], uint32(p.Op))
	binary.BigEndian.PutUint32(buf[14:18], uint32(p.V1))
	binary.BigEndian.PutUint32(buf[18:22], uint32(p.V2))
	binary.BigEndian.PutUint32(buf[22:26], uint32(p.Result))
	return buf
}

// DecodeProtocol parses a CalcProtocol from exactly 26 bytes.
func DecodeProtocol(buf []byte) (CalcProtocol, error) {
	if len(buf) != calcProtocolSize {
		return CalcProtocol{}, errors.New("protocol: CalcProtocol requires exactly 26 bytes")
	}
	return CalcProtocol{
		Type:         binary.BigEndian.Uint16(buf[0:2]),
		MajorVersion: binary.BigEndian.Uint16(buf[2:4]),
		MinorVersion: binary.BigEndian.Uint16(buf[4:6]),
		ID:           binary.BigEndian.Uint32(buf[6:10]),
		Op:           Operation(binary.BigEndian.Uint32(buf[10:14])),
		V1:           int32(binary.BigEndian.Uint32(buf[14:18])),
		V2:           int32(binary.BigEndian.Uint32(buf[18:22])),
		Result:       int32(binary.BigEndian.Uint32(buf[22:26])),
	}, nil
}

// IsZero reports whether p is the all-zero record used to probe a session
// without an implicit handshake (transition table case 4 of the UDP engine).
func (p CalcProtocol) IsZero() bool {
	return p == CalcProtocol{}
}

// EncodeTask builds the wire bytes for a server->client task record.
func EncodeTask(id uint32, op Operation, v1, v2 int32) []byte {
	return EncodeProtocol(CalcProtocol{
		Type:         RecordTypeTask,
		MajorVersion: VersionMajor,
		MinorVersion: VersionMinor,
		ID:           id,
		Op:           op,
		V1:           v1,
		V2:           v2,
	})
}

// EncodeAnswer builds the wire bytes for a client->server answer record.
func EncodeAnswer(id uint32, op Operation, v1, v2, result int32) []byte {
	return EncodeProtocol(CalcProtocol{
		Type:         RecordTypeAnswer,
		MajorVersion: VersionMajor,
		MinorVersion: VersionMinor,
		ID:           id,
		Op:           op,
		V1:           v1,
		V2:           v2,
		Result:       result,
	})
}

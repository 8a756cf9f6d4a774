package udpserver

import (
	"calcmesh/pkg/protocol"
	"calcmesh/pkg/registry"
)

// ParseDatagram classifies and decodes one inbound UDP payload into an
// InboundEvent the state machine understands. ok is false for anything the
// engine should drop silently: malformed-length payloads, unrecognized
// binary records, and unparsable text lines.
func ParseDatagram(payload []byte) (ev InboundEvent, ok bool) {
	switch protocol.Classify(payload) {
	case protocol.KindBinaryHandshake:
		m, err := protocol.DecodeMessage(payload)
		if err != nil || !m.IsHandshake() {
			return InboundEvent{}, false
		}
		return InboundEvent{Kind: EventHandshake, Dialect: registry.DialectBinary}, true

	case protocol.KindBinaryProtocol:
		p, err := protocol.DecodeProtocol(payload)
		if err != nil {
			return InboundEvent{}, false
		}
		switch {
		case p.IsZero():
			return InboundEvent{Kind: EventZeroProbe, Dialect: registry.DialectBinary}, true
		case p.ID == 0 && p.MajorVersion == protocol.VersionMajor && p.MinorVersion == protocol.VersionMinor:
			// Implicit handshake: rule 3.
			return InboundEvent{Kind: EventHandshake, Dialect: registry.DialectBinary}, true
		case p.Type == protocol.RecordTypeAnswer:
			return InboundEvent{
				Kind:         EventAnswer,
				Dialect:      registry.DialectBinary,
				AnswerID:     p.ID,
				AnswerResult: p.Result,
			}, true
		default:
			return InboundEvent{}, false
		}

	case protocol.KindText:
		line := string(payload)
		if protocol.ParseTextHandshake(line) {
			return InboundEvent{Kind: EventHandshake, Dialect: registry.DialectText}, true
		}
		id, result, err := protocol.ParseTextAnswer(line)
		if err != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{
			Kind:         EventAnswer,
			Dialect:      registry.DialectText,
			AnswerID:     id,
			AnswerResult: result,
		}, true

	default:
		return InboundEvent{}, false
	}
}

// Package protocol implements the calc service wire protocol: the two
// fixed binary records (CalcMessage, CalcProtocol), the text line framing,
// and a length-first classifier that disambiguates an inbound datagram or
// byte stream into one of the two dialects before any field is trusted.
package protocol

// Operation identifies an arithmetic operation requested in a Task.
type Operation uint32

const (
	OpUnknown Operation = 0
	OpAdd     Operation = 1
	OpSub     Operation = 2
	OpMul     Operation = 3
	OpDiv     Operation = 4
)

// String returns the text-dialect operation name.
func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	default:
		return "unknown"
	}
}

// ParseOperation maps a text-dialect operation name back to an Operation.
func ParseOperation(name string) (Operation, bool) {
	switch name {
	case "add":
		return OpAdd, true
	case "sub":
		return OpSub, true
	case "mul":
		return OpMul, true
	case "div":
		return OpDiv, true
	default:
		return OpUnknown, false
	}
}

// Protocol/version constants fixed by the wire spec.
const (
	ProtocolID = uint16(17)

	VersionMajor = uint16(1)
	VersionMinor = uint16(1)

	// CalcMessage.Type values.
	MsgTypeHandshake   = uint16(22)
	MsgTypeAcknowledge = uint16(2)

	// CalcProtocol.Type (record-type) values.
	RecordTypeTask   = uint16(1)
	RecordTypeAnswer = uint16(2)

	// Acknowledgement results carried in CalcMessage.Message.
	AckOK    = uint32(1)
	AckNotOK = uint32(2)
)

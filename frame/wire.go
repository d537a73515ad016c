package frame

import "encoding/binary"

// WireFrame is the transport-ready encoding of a Frame: a gorilla/websocket
// message type plus its raw payload bytes. TransportDriver implementations
// consume WireFrame directly; the core never builds raw WS frames itself.
type WireFrame struct {
	// MessageType mirrors gorilla/websocket's TextMessage/BinaryMessage/
	// PingMessage/PongMessage/CloseMessage constants (1, 2, 9, 10, 8) so a
	// transport.Driver can pass WireFrame.MessageType straight to
	// (*websocket.Conn).WriteMessage without translation.
	MessageType int
	Payload     []byte
}

const (
	wireText   = 1
	wireBinary = 2
	wireClose  = 8
	wirePing   = 9
	wirePong   = 10
)

// ParseError reports a WireFrame that cannot be decoded into a Frame.
type ParseError struct{ Reason string }

func (e *ParseError) Error() string { return "frame decode: " + e.Reason }

// Encode converts a validated Frame into its wire representation.
func Encode(f Frame) WireFrame {
	switch f.Kind {
	case Text:
		return WireFrame{MessageType: wireText, Payload: []byte(f.Text)}
	case Binary:
		return WireFrame{MessageType: wireBinary, Payload: f.Binary}
	case Ping:
		return WireFrame{MessageType: wirePing, Payload: f.Binary}
	case Pong:
		return WireFrame{MessageType: wirePong, Payload: f.Binary}
	case Close:
		return WireFrame{MessageType: wireClose, Payload: encodeClosePayload(f)}
	default:
		return WireFrame{}
	}
}

// Decode converts a wire frame back into the core's Frame representation.
func Decode(w WireFrame) (Frame, error) {
	switch w.MessageType {
	case wireText:
		return Frame{Kind: Text, Text: string(w.Payload)}, nil
	case wireBinary:
		return Frame{Kind: Binary, Binary: w.Payload}, nil
	case wirePing:
		return Frame{Kind: Ping, Binary: w.Payload}, nil
	case wirePong:
		return Frame{Kind: Pong, Binary: w.Payload}, nil
	case wireClose:
		return decodeClosePayload(w.Payload)
	default:
		return Frame{}, &ParseError{Reason: "unrecognized message type"}
	}
}

// encodeClosePayload packs an optional close code + UTF-8 reason into the
// two-byte-code-prefixed payload RFC 6455 §5.5.1 specifies.
func encodeClosePayload(f Frame) []byte {
	if !f.HasCode {
		return nil
	}
	buf := make([]byte, 2+len(f.CloseReason))
	binary.BigEndian.PutUint16(buf, f.CloseCode)
	copy(buf[2:], f.CloseReason)
	return buf
}

func decodeClosePayload(payload []byte) (Frame, error) {
	if len(payload) == 0 {
		return Frame{Kind: Close}, nil
	}
	if len(payload) < 2 {
		return Frame{}, &ParseError{Reason: "close payload shorter than 2 bytes"}
	}
	code := binary.BigEndian.Uint16(payload[:2])
	return Frame{
		Kind:        Close,
		CloseCode:   code,
		HasCode:     true,
		CloseReason: string(payload[2:]),
	}, nil
}

package protocol

import (
	"bytes"
	"fmt"
)

// MessageType is the outer varUint tag of every frame.
type MessageType uint64

const (
	MessageSync      MessageType = 0
	MessageAwareness MessageType = 1
)

// SyncSubType tags the body of a MessageSync frame.
type SyncSubType uint64

const (
	SyncStep1 SyncSubType = 0 // body: sender's state vector
	SyncStep2 SyncSubType = 1 // body: an update
	SyncUpdate SyncSubType = 2 // body: an incremental update, rebroadcast verbatim
)

// Frame is a decoded wire message. Exactly one of SyncSubType/Payload or
// AwarenessPayload is meaningful, selected by Type.
type Frame struct {
	Type MessageType

	// populated when Type == MessageSync
	SyncSubType SyncSubType
	Payload     []byte

	// populated when Type == MessageAwareness
	AwarenessPayload []byte
}

// Decode parses a single WebSocket binary message into a Frame. Unknown
// top-level message types are reported via ErrUnknownMessageType so the
// caller can silently drop them per the forward-compatibility contract;
// any other error is a malformed-frame decode error.
func Decode(raw []byte) (*Frame, error) {
	c := newCursor(raw)
	t, err := c.uvarint()
	if err != nil {
		return nil, fmt.Errorf("decode message type: %w", err)
	}

	switch MessageType(t) {
	case MessageSync:
		sub, err := c.uvarint()
		if err != nil {
			return nil, fmt.Errorf("decode sync sub-type: %w", err)
		}
		payload, err := c.bytes()
		if err != nil {
			return nil, fmt.Errorf("decode sync payload: %w", err)
		}
		return &Frame{Type: MessageSync, SyncSubType: SyncSubType(sub), Payload: payload}, nil

	case MessageAwareness:
		payload, err := c.bytes()
		if err != nil {
			return nil, fmt.Errorf("decode awareness payload: %w", err)
		}
		return &Frame{Type: MessageAwareness, AwarenessPayload: payload}, nil

	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnknownMessageType, t)
	}
}

// ErrUnknownMessageType marks a frame whose top-level type the hub does
// not recognize. Per §4.1 these are dropped silently, not treated as a
// decode failure that would otherwise be logged loudly.
var ErrUnknownMessageType = fmt.Errorf("protocol: unknown message type")

// EncodeSyncStep1 builds a messageSync/syncStep1 frame carrying stateVector.
func EncodeSyncStep1(stateVector []byte) []byte {
	return encodeSync(SyncStep1, stateVector)
}

// EncodeSyncStep2 builds a messageSync/syncStep2 frame carrying update.
func EncodeSyncStep2(update []byte) []byte {
	return encodeSync(SyncStep2, update)
}

// EncodeUpdate builds a messageSync/update frame carrying an incremental update.
func EncodeUpdate(update []byte) []byte {
	return encodeSync(SyncUpdate, update)
}

func encodeSync(sub SyncSubType, payload []byte) []byte {
	var buf bytes.Buffer
	WriteUvarint(&buf, uint64(MessageSync))
	WriteUvarint(&buf, uint64(sub))
	WriteBytes(&buf, payload)
	return buf.Bytes()
}

// EncodeAwareness builds a messageAwareness frame carrying an
// awareness-delta payload.
func EncodeAwareness(delta []byte) []byte {
	var buf bytes.Buffer
	WriteUvarint(&buf, uint64(MessageAwareness))
	WriteBytes(&buf, delta)
	return buf.Bytes()
}

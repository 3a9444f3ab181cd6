package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
const (
	KeyKind      = 1
	KeyMessageID = 2
	KeyChannel   = 3
	KeyMethod    = 4
	KeyArguments = 5
	KeyStatus    = 6
	KeyPayload   = 7
	KeyError     = 8
	KeyDetails   = 9
)

// MessageKind identifies the role of a message.
type MessageKind uint8

const (
	KindUnknown MessageKind = iota
	KindCall
	KindReply
	KindEvent
	KindEndOfStream
)

// String returns the kind name.
func (k MessageKind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindReply:
		return "REPLY"
	case KindEvent:
		return "EVENT"
	case KindEndOfStream:
		return "END_OF_STREAM"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for the four defined kinds.
func (k MessageKind) IsValid() bool {
	return k >= KindCall && k <= KindEndOfStream
}

// Reserved method names on event channels.
const (
	MethodListen = "listen"
	MethodCancel = "cancel"
)

// Message is the single envelope for every message kind.
//
// CBOR encoding:
//
//	{
//	  1: kind,         // uint8: 1=Call, 2=Reply, 3=Event, 4=EndOfStream
//	  2: messageId,    // uint32: Call and Reply only, non-zero
//	  3: channel,      // string
//	  4: method,       // string: Call only
//	  5: arguments,    // map[string]any: Call only
//	  6: status,       // uint8: Reply only, absent means success
//	  7: payload,      // Reply result or Event record, always present
//	  8: error,        // string: Reply only, failure message
//	  9: details       // any: Reply only, failure details
//	}
type Message struct {
	Kind      MessageKind    `cbor:"1,keyasint"`
	MessageID uint32         `cbor:"2,keyasint,omitempty"`
	Channel   string         `cbor:"3,keyasint"`
	Method    string         `cbor:"4,keyasint,omitempty"`
	Arguments map[string]any `cbor:"5,keyasint,omitempty"`
	Status    Status         `cbor:"6,keyasint,omitempty"`
	Payload   any            `cbor:"7,keyasint"`
	Error     string         `cbor:"8,keyasint,omitempty"`
	Details   any            `cbor:"9,keyasint,omitempty"`
}

// NewCall creates a method call.
func NewCall(messageID uint32, channel, method string, args map[string]any) *Message {
	return &Message{
		Kind:      KindCall,
		MessageID: messageID,
		Channel:   channel,
		Method:    method,
		Arguments: args,
	}
}

// NewReply creates a successful reply to call.
func NewReply(call *Message, payload any) *Message {
	return &Message{
		Kind:      KindReply,
		MessageID: call.MessageID,
		Channel:   call.Channel,
		Payload:   payload,
	}
}

// NewErrorReply creates a failed reply to call.
func NewErrorReply(call *Message, status Status, message string, details any) *Message {
	return &Message{
		Kind:      KindReply,
		MessageID: call.MessageID,
		Channel:   call.Channel,
		Status:    status,
		Error:     message,
		Details:   details,
	}
}

// NewEvent creates an event on channel.
func NewEvent(channel string, payload any) *Message {
	return &Message{
		Kind:    KindEvent,
		Channel: channel,
		Payload: payload,
	}
}

// NewEndOfStream creates the end-of-stream marker for channel.
func NewEndOfStream(channel string) *Message {
	return &Message{
		Kind:    KindEndOfStream,
		Channel: channel,
	}
}

// IsSuccess returns true if the reply indicates success.
func (m *Message) IsSuccess() bool {
	return m.Status.IsSuccess()
}

// Validate checks the fields required by the message kind.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %d", m.Kind)
	}
	if m.Channel == "" {
		return fmt.Errorf("%s without channel", m.Kind)
	}
	switch m.Kind {
	case KindCall:
		if m.MessageID == 0 {
			return fmt.Errorf("call without message id")
		}
		if m.Method == "" {
			return fmt.Errorf("call without method")
		}
	case KindReply:
		if m.MessageID == 0 {
			return fmt.Errorf("reply without message id")
		}
	}
	return nil
}

// String returns a short description for logs.
func (m *Message) String() string {
	switch m.Kind {
	case KindCall:
		return fmt.Sprintf("CALL #%d %s.%s", m.MessageID, m.Channel, m.Method)
	case KindReply:
		return fmt.Sprintf("REPLY #%d %s %s", m.MessageID, m.Channel, m.Status)
	default:
		return fmt.Sprintf("%s %s", m.Kind, m.Channel)
	}
}

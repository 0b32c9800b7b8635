package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version is the single protocol version this engine speaks.
// Peers declaring any other value are rejected before semantic processing.
const Version = "1.0"

// Role identifies the kind of peer a message originates from.
type Role string

const (
	RolePlayer    Role = "player"
	RoleConductor Role = "conductor"
	RoleLeague    Role = "league"
)

// SenderID is the composite sender identity carried on every envelope,
// serialized as "role:identifier" (e.g. "player:alice").
type SenderID struct {
	Role Role
	ID   string
}

// String renders the wire form of the sender identity.
func (s SenderID) String() string {
	return string(s.Role) + ":" + s.ID
}

// ParseSenderID parses the "role:identifier" wire form.
func ParseSenderID(raw string) (SenderID, error) {
	role, id, ok := strings.Cut(raw, ":")
	if !ok || role == "" || id == "" {
		return SenderID{}, fmt.Errorf("malformed sender id %q", raw)
	}
	switch Role(role) {
	case RolePlayer, RoleConductor, RoleLeague:
		return SenderID{Role: Role(role), ID: id}, nil
	default:
		return SenderID{}, fmt.Errorf("unknown sender role %q", role)
	}
}

// MarshalJSON implements json.Marshaler using the wire form.
func (s SenderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler for the wire form.
func (s *SenderID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSenderID(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Envelope is the control frame wrapped around every message.
//
// Every field except AuthToken is mandatory; AuthToken may be absent only
// on an initial Register message (the peer does not yet hold a credential).
// Payload is opaque to the validator - each message type defines its own
// payload schema, decoded by whichever component consumes the message.
type Envelope struct {
	ProtocolVersion string          `json:"protocol_version"`
	Type            MessageType     `json:"message_type"`
	Sender          SenderID        `json:"sender_id"`
	Timestamp       time.Time       `json:"timestamp"`
	ConversationID  string          `json:"conversation_id"`
	AuthToken       string          `json:"auth_token,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an outbound envelope stamped with the current UTC time.
func NewEnvelope(t MessageType, sender SenderID, conversationID, authToken string, payload json.RawMessage) Envelope {
	return Envelope{
		ProtocolVersion: Version,
		Type:            t,
		Sender:          sender,
		Timestamp:       time.Now().UTC(),
		ConversationID:  conversationID,
		AuthToken:       authToken,
		Payload:         payload,
	}
}

// Parity is a player's declared value: the parity they bet the drawn
// number will have.
type Parity string

const (
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// ParseParity validates a declared value from the wire.
func ParseParity(raw string) (Parity, error) {
	switch Parity(raw) {
	case ParityEven, ParityOdd:
		return Parity(raw), nil
	default:
		return "", NewError(CodeInvalidChoice, fmt.Sprintf("declared value %q is not a parity", raw))
	}
}

// ParityOf classifies a drawn number.
func ParityOf(n int) Parity {
	if n%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

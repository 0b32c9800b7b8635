package protocol

import (
	"encoding/json"
	"fmt"
)

// Payload schemas for the message types the match engine exchanges.
// The envelope treats payloads as opaque; these types are the contract
// between the conductor/coordinator and their peers.

// InvitePayload rides on MATCH_INVITE.
type InvitePayload struct {
	FixtureID string `json:"fixture_id"`
	Round     int    `json:"round"`
	Opponent  string `json:"opponent"`
}

// AcceptPayload rides on MATCH_ACCEPT.
type AcceptPayload struct {
	FixtureID string `json:"fixture_id"`
}

// ChoiceRequestPayload rides on CHOICE_REQUEST.
type ChoiceRequestPayload struct {
	FixtureID string `json:"fixture_id"`
}

// ChoiceResponsePayload rides on CHOICE_RESPONSE.
type ChoiceResponsePayload struct {
	FixtureID string `json:"fixture_id"`
	Choice    string `json:"choice"`
}

// ResultPayload rides on MATCH_RESULT and RESULT_REPORT.
type ResultPayload struct {
	FixtureID  string `json:"fixture_id"`
	Round      int    `json:"round"`
	Outcome    string `json:"outcome"`
	Winner     string `json:"winner,omitempty"`
	DrawnValue int    `json:"drawn_value,omitempty"`
}

// ErrorPayload rides on ERROR.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Fixture string    `json:"fixture_id,omitempty"`
}

// MarshalPayload encodes a payload struct for an envelope.
func MarshalPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Payload types are plain structs; failure here is a programming error.
		panic(fmt.Sprintf("marshal payload: %v", err))
	}
	return data
}

// UnmarshalPayload decodes an envelope payload into out, mapping decode
// failures to a malformed-envelope rejection.
func UnmarshalPayload(env Envelope, out any) error {
	if len(env.Payload) == 0 {
		return NewError(CodeMalformedEnvelope, fmt.Sprintf("%s payload missing", env.Type)).
			WithConversation(env.ConversationID)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return NewError(CodeMalformedEnvelope, fmt.Sprintf("%s payload: %v", env.Type, err)).
			WithConversation(env.ConversationID)
	}
	return nil
}

package protocol

import "fmt"

// CredentialResolver resolves an auth token to a registered identity.
// Implemented by the credential registry; tests supply fakes.
type CredentialResolver interface {
	// Resolve returns the identity holding the token, or false if the
	// token is unknown or revoked.
	Resolve(token string) (SenderID, bool)
}

// Validator is the envelope gate run on every message, inbound and
// outbound, before any semantic processing. Pure: no side effects.
type Validator struct {
	creds CredentialResolver
}

// NewValidator creates a validator backed by the given credential resolver.
func NewValidator(creds CredentialResolver) *Validator {
	return &Validator{creds: creds}
}

// Validate checks an envelope's control fields in order:
// field presence, protocol version, message type, then auth resolution.
// Register messages are exempt from the auth check - the sender does not
// hold a token yet.
//
// The first failed check wins; the returned error carries the rejection
// code and the envelope's conversation ID for correlation.
func (v *Validator) Validate(env Envelope) (*Envelope, error) {
	if err := checkFields(env); err != nil {
		return nil, err
	}
	if env.ProtocolVersion != Version {
		return nil, NewError(CodeVersionMismatch,
			fmt.Sprintf("unsupported protocol version %q (want %q)", env.ProtocolVersion, Version)).
			WithConversation(env.ConversationID)
	}
	if !env.Type.Known() {
		return nil, NewError(CodeMalformedEnvelope,
			fmt.Sprintf("unrecognized message type %d", int(env.Type))).
			WithConversation(env.ConversationID)
	}
	if env.Type != TypeRegister {
		if env.AuthToken == "" {
			return nil, NewError(CodeAuthTokenInvalid, "auth token missing").
				WithConversation(env.ConversationID)
		}
		identity, ok := v.creds.Resolve(env.AuthToken)
		if !ok {
			return nil, NewError(CodeAuthTokenInvalid, "auth token does not resolve").
				WithConversation(env.ConversationID)
		}
		if identity != env.Sender {
			return nil, NewError(CodeAuthTokenInvalid,
				fmt.Sprintf("token belongs to %s, not %s", identity, env.Sender)).
				WithConversation(env.ConversationID)
		}
	}
	return &env, nil
}

// checkFields verifies mandatory field presence and basic well-formedness.
func checkFields(env Envelope) error {
	switch {
	case env.ProtocolVersion == "":
		return NewError(CodeMalformedEnvelope, "protocol_version missing")
	case env.Type == 0:
		return NewError(CodeMalformedEnvelope, "message_type missing")
	case env.Sender.Role == "" || env.Sender.ID == "":
		return NewError(CodeMalformedEnvelope, "sender_id missing or incomplete")
	case env.Timestamp.IsZero():
		return NewError(CodeMalformedEnvelope, "timestamp missing")
	case env.ConversationID == "":
		return NewError(CodeMalformedEnvelope, "conversation_id missing")
	}
	if _, err := ParseSenderID(env.Sender.String()); err != nil {
		return NewError(CodeMalformedEnvelope, err.Error())
	}
	return nil
}

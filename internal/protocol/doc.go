// Package protocol defines the wire-independent message model for the
// Ludus match engine: the envelope carried by every message, the closed
// enum of message types, the classified error taxonomy, and the envelope
// validator that gates every inbound and outbound message.
//
// The concrete wire encoding (HTTP framing, JSON-RPC, etc.) lives outside
// the engine; components here only see typed envelopes.
package protocol

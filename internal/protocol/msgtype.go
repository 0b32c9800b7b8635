package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType is the closed set of message kinds the engine recognizes.
//
// The enum is deliberately closed: dispatch switches over it are exhaustive
// and an unrecognized wire value is rejected at validation, never silently
// ignored.
type MessageType int

const (
	// TypeRegister enrolls a new participant. The only message allowed
	// to arrive without an auth token.
	TypeRegister MessageType = iota + 1
	// TypeRegisterAck confirms registration and delivers the minted token.
	TypeRegisterAck
	// TypeMatchInvite invites a participant into a contest.
	TypeMatchInvite
	// TypeMatchAccept acknowledges a match invite.
	TypeMatchAccept
	// TypeChoiceRequest asks a participant for its declared parity.
	TypeChoiceRequest
	// TypeChoiceResponse carries a participant's declared parity.
	TypeChoiceResponse
	// TypeMatchResult notifies participants of a resolved contest.
	TypeMatchResult
	// TypeMatchResultAck acknowledges a result notification.
	TypeMatchResultAck
	// TypeResultReport carries a contest outcome to the standings ledger.
	TypeResultReport
	// TypeResultReportAck acknowledges ledger application of a report.
	TypeResultReportAck
	// TypeRoundAnnounce announces the start of a round.
	TypeRoundAnnounce
	// TypeRoundComplete marks all fixtures of a round complete.
	TypeRoundComplete
	// TypeStandingsUpdate publishes the standings after a round.
	TypeStandingsUpdate
	// TypeTournamentStart announces the tournament.
	TypeTournamentStart
	// TypeTournamentComplete declares the champion(s).
	TypeTournamentComplete
	// TypeHeartbeat probes peer liveness.
	TypeHeartbeat
	// TypeHeartbeatAck answers a heartbeat probe.
	TypeHeartbeatAck
	// TypeError carries a protocol error code to a peer.
	TypeError
)

var msgTypeNames = map[MessageType]string{
	TypeRegister:           "REGISTER",
	TypeRegisterAck:        "REGISTER_ACK",
	TypeMatchInvite:        "MATCH_INVITE",
	TypeMatchAccept:        "MATCH_ACCEPT",
	TypeChoiceRequest:      "CHOICE_REQUEST",
	TypeChoiceResponse:     "CHOICE_RESPONSE",
	TypeMatchResult:        "MATCH_RESULT",
	TypeMatchResultAck:     "MATCH_RESULT_ACK",
	TypeResultReport:       "RESULT_REPORT",
	TypeResultReportAck:    "RESULT_REPORT_ACK",
	TypeRoundAnnounce:      "ROUND_ANNOUNCE",
	TypeRoundComplete:      "ROUND_COMPLETE",
	TypeStandingsUpdate:    "STANDINGS_UPDATE",
	TypeTournamentStart:    "TOURNAMENT_START",
	TypeTournamentComplete: "TOURNAMENT_COMPLETE",
	TypeHeartbeat:          "HEARTBEAT",
	TypeHeartbeatAck:       "HEARTBEAT_ACK",
	TypeError:              "ERROR",
}

var msgTypeValues = func() map[string]MessageType {
	m := make(map[string]MessageType, len(msgTypeNames))
	for t, name := range msgTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the wire name of the message type.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Known reports whether t is one of the recognized message types.
func (t MessageType) Known() bool {
	_, ok := msgTypeNames[t]
	return ok
}

// ParseMessageType resolves a wire name to its enum value.
func ParseMessageType(name string) (MessageType, error) {
	if t, ok := msgTypeValues[name]; ok {
		return t, nil
	}
	return 0, NewError(CodeMalformedEnvelope, fmt.Sprintf("unrecognized message type %q", name))
}

// MarshalJSON serializes the wire name.
func (t MessageType) MarshalJSON() ([]byte, error) {
	if !t.Known() {
		return nil, fmt.Errorf("cannot marshal unknown message type %d", int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the wire name.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMessageType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

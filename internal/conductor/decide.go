package conductor

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/protocol"
)

// drawRange is the inclusive upper bound of the drawn value (1..drawRange).
const drawRange = 10

// DrawValue draws uniformly from 1..10 using a cryptographically strong
// source. The drawn value and both choices are logged with the outcome,
// which is the extent of the fairness audit trail.
func DrawValue() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(drawRange))
	if err != nil {
		return 0, fmt.Errorf("draw value: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

// Resolve computes the outcome from both declared parities and the parity
// of the drawn value. Pure: the result depends only on the three inputs
// and is symmetric in submission order.
//
// Same declaration from both sides is a draw; otherwise exactly one side
// matches the drawn parity and wins.
func Resolve(choiceA, choiceB, drawn protocol.Parity) ledger.OutcomeKind {
	if choiceA == choiceB {
		return ledger.Draw
	}
	if choiceA == drawn {
		return ledger.WinA
	}
	return ledger.WinB
}

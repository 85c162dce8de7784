// Package ledger is the typed client for an external capability ledger node.
// The client handle is constructed explicitly and passed in; there is no
// shared global connection.
package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// Call identifies one contract method invocation with JSON-shaped arguments.
// The method set per contract is fixed at compile time by the typed wrappers
// in core/capability.
type Call struct {
	Contract string          `json:"contract"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args"`
}

// Receipt acknowledges a submitted transaction.
type Receipt struct {
	TxID      string    `json:"txId"`
	Status    string    `json:"status"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Client submits state-changing transactions and runs read-only calls against
// the ledger. Both are bounded by the caller's context.
type Client interface {
	Submit(ctx context.Context, call Call) (Receipt, error)
	Call(ctx context.Context, call Call) (json.RawMessage, error)
}

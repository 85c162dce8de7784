package capability

import (
	"context"
	"time"

	"medvault/types/ids"
)

// State of a (patient, doctor) pair. Transitions follow
// NONE -> GRANTED -> REVOKED -> GRANTED -> ... and the last applied event
// always wins.
type State string

const (
	StateNone    State = "NONE"
	StateGranted State = "GRANTED"
	StateRevoked State = "REVOKED"
)

// EventType is the kind of capability event appended to the ledger.
type EventType string

const (
	EventGrant  EventType = "grant"
	EventRevoke EventType = "revoke"
)

// Event is one append-only ledger entry for a (patient, doctor) pair.
// Events are never deleted, only superseded by later events.
type Event struct {
	EventID   string      `json:"eventId"`
	Type      EventType   `json:"type"`
	PatientID ids.Address `json:"patientId"`
	DoctorID  ids.Address `json:"doctorId"`
	Seq       uint64      `json:"seq"`
	AppliedAt time.Time   `json:"appliedAt"`
}

// Capability is the current grant for a pair as derived from its event log.
type Capability struct {
	PatientID ids.Address `json:"patientId"`
	DoctorID  ids.Address `json:"doctorId"`
	State     State       `json:"state"`
	GrantedAt *time.Time  `json:"grantedAt,omitempty"`
	RevokedAt *time.Time  `json:"revokedAt,omitempty"`
	Seq       uint64      `json:"seq"`
}

// Ledger is the capability ledger contract. Grant and Revoke are
// self-authorized: only the patient may change a pair involving them.
// HasAccess reflects the latest finalized ledger state.
type Ledger interface {
	Grant(ctx context.Context, actorID, patientID, doctorID ids.Address) error
	Revoke(ctx context.Context, actorID, patientID, doctorID ids.Address) error
	HasAccess(ctx context.Context, patientID, doctorID ids.Address) (bool, error)
}

// History is implemented by ledgers that can list the event log for a pair,
// in applied order. The chain-backed ledger delegates this to the contract.
type History interface {
	Events(ctx context.Context, patientID, doctorID ids.Address) ([]Event, error)
}

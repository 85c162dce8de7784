package capability

import (
	"context"
	"encoding/json"

	"medvault/core/audit"
	"medvault/core/fault"
	"medvault/core/ledger"
	"medvault/types/ids"
)

// Contract and method names of the on-chain access control contract. The
// method set is fixed here at compile time; nothing is dispatched by runtime
// property lookup.
const (
	contractName    = "AccessControl"
	methodGrant     = "grantAccess"
	methodRevoke    = "revokeAccess"
	methodHasAccess = "hasAccess"
	methodEvents    = "accessEvents"
)

// ChainLedger implements Ledger against an external ledger node through the
// typed client. The client handle is injected; the ledger's own total order
// decides concurrent grant/revoke winners.
type ChainLedger struct {
	client ledger.Client
	audit  audit.AuditLogger
}

func NewChainLedger(client ledger.Client, auditLogger audit.AuditLogger) *ChainLedger {
	return &ChainLedger{client: client, audit: auditLogger}
}

type pairArgs struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

func pairCall(method string, patientID, doctorID ids.Address) ledger.Call {
	args, _ := json.Marshal(pairArgs{PatientID: patientID.String(), DoctorID: doctorID.String()})
	return ledger.Call{Contract: contractName, Method: method, Args: args}
}

func (c *ChainLedger) Grant(ctx context.Context, actorID, patientID, doctorID ids.Address) error {
	if actorID != patientID {
		audit.Access(c.audit, "CapabilityGrant", actorID.String(), patientID.String(), "failure", "actor is not the patient")
		return fault.Newf(fault.AccessDenied, "capability.Grant", "only the patient may grant access")
	}
	_, err := c.client.Submit(ctx, pairCall(methodGrant, patientID, doctorID))
	if err != nil {
		return err
	}
	audit.Access(c.audit, "CapabilityGrant", actorID.String(), patientID.String(), "success", "doctor "+doctorID.String())
	return nil
}

func (c *ChainLedger) Revoke(ctx context.Context, actorID, patientID, doctorID ids.Address) error {
	if actorID != patientID {
		audit.Access(c.audit, "CapabilityRevoke", actorID.String(), patientID.String(), "failure", "actor is not the patient")
		return fault.Newf(fault.AccessDenied, "capability.Revoke", "only the patient may revoke access")
	}
	_, err := c.client.Submit(ctx, pairCall(methodRevoke, patientID, doctorID))
	if err != nil {
		return err
	}
	audit.Access(c.audit, "CapabilityRevoke", actorID.String(), patientID.String(), "success", "doctor "+doctorID.String())
	return nil
}

func (c *ChainLedger) HasAccess(ctx context.Context, patientID, doctorID ids.Address) (bool, error) {
	raw, err := c.client.Call(ctx, pairCall(methodHasAccess, patientID, doctorID))
	if err != nil {
		return false, err
	}
	var result struct {
		HasAccess bool `json:"hasAccess"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fault.New(fault.LedgerUnavailable, "capability.HasAccess", err)
	}
	return result.HasAccess, nil
}

// Events lists the pair's event log as reported by the contract.
func (c *ChainLedger) Events(ctx context.Context, patientID, doctorID ids.Address) ([]Event, error) {
	raw, err := c.client.Call(ctx, pairCall(methodEvents, patientID, doctorID))
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fault.New(fault.LedgerUnavailable, "capability.Events", err)
	}
	return events, nil
}

package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"medvault/core/audit"
	"medvault/core/fault"
	"medvault/types/ids"
)

// LocalLedger is a LevelDB-backed capability ledger for single-node
// deployments. Appends are serialized under one mutex so the event log has a
// total order; the sequence counter is the ledger height.
type LocalLedger struct {
	mu    sync.Mutex
	db    *leveldb.DB
	audit audit.AuditLogger
}

func NewLocalLedger(path string, auditLogger audit.AuditLogger) (*LocalLedger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LocalLedger{db: db, audit: auditLogger}, nil
}

func (l *LocalLedger) Close() error {
	return l.db.Close()
}

func pairKey(patientID, doctorID ids.Address) []byte {
	return []byte("cap:" + patientID.String() + ":" + doctorID.String())
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("capev:%016d", seq))
}

// Grant appends a grant event for (patient, doctor). Only the patient may
// grant. Granting an already granted pair is a no-op.
func (l *LocalLedger) Grant(ctx context.Context, actorID, patientID, doctorID ids.Address) error {
	const op = "capability.Grant"
	if err := ctx.Err(); err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	if actorID != patientID {
		audit.Access(l.audit, "CapabilityGrant", actorID.String(), patientID.String(), "failure", "actor is not the patient")
		return fault.Newf(fault.AccessDenied, op, "only the patient may grant access")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cap, err := l.loadPair(patientID, doctorID)
	if err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	if cap.State == StateGranted {
		return nil // idempotent re-grant
	}
	if err := l.appendEvent(EventGrant, patientID, doctorID, cap); err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	audit.Access(l.audit, "CapabilityGrant", actorID.String(), patientID.String(), "success", "doctor "+doctorID.String())
	return nil
}

// Revoke appends a revoke event for (patient, doctor). Only the patient may
// revoke. Revoking a pair that is not granted is a no-op.
func (l *LocalLedger) Revoke(ctx context.Context, actorID, patientID, doctorID ids.Address) error {
	const op = "capability.Revoke"
	if err := ctx.Err(); err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	if actorID != patientID {
		audit.Access(l.audit, "CapabilityRevoke", actorID.String(), patientID.String(), "failure", "actor is not the patient")
		return fault.Newf(fault.AccessDenied, op, "only the patient may revoke access")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cap, err := l.loadPair(patientID, doctorID)
	if err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	if cap.State != StateGranted {
		return nil // nothing to revoke
	}
	if err := l.appendEvent(EventRevoke, patientID, doctorID, cap); err != nil {
		return fault.New(fault.LedgerUnavailable, op, err)
	}
	audit.Access(l.audit, "CapabilityRevoke", actorID.String(), patientID.String(), "success", "doctor "+doctorID.String())
	return nil
}

// HasAccess reports whether the pair is currently GRANTED.
func (l *LocalLedger) HasAccess(ctx context.Context, patientID, doctorID ids.Address) (bool, error) {
	const op = "capability.HasAccess"
	if err := ctx.Err(); err != nil {
		return false, fault.New(fault.LedgerUnavailable, op, err)
	}
	cap, err := l.loadPair(patientID, doctorID)
	if err != nil {
		return false, fault.New(fault.LedgerUnavailable, op, err)
	}
	return cap.State == StateGranted, nil
}

// Capability returns the derived current grant for the pair.
func (l *LocalLedger) Capability(ctx context.Context, patientID, doctorID ids.Address) (Capability, error) {
	cap, err := l.loadPair(patientID, doctorID)
	if err != nil {
		return Capability{}, fault.New(fault.LedgerUnavailable, "capability.Capability", err)
	}
	return cap, nil
}

// Events lists the full event log for the pair, in applied order.
func (l *LocalLedger) Events(ctx context.Context, patientID, doctorID ids.Address) ([]Event, error) {
	var events []Event
	iter := l.db.NewIterator(util.BytesPrefix([]byte("capev:")), nil)
	defer iter.Release()
	for iter.Next() {
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			continue
		}
		if ev.PatientID == patientID && ev.DoctorID == doctorID {
			events = append(events, ev)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fault.New(fault.LedgerUnavailable, "capability.Events", err)
	}
	return events, nil
}

func (l *LocalLedger) loadPair(patientID, doctorID ids.Address) (Capability, error) {
	data, err := l.db.Get(pairKey(patientID, doctorID), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return Capability{PatientID: patientID, DoctorID: doctorID, State: StateNone}, nil
		}
		return Capability{}, err
	}
	var cap Capability
	if err := json.Unmarshal(data, &cap); err != nil {
		return Capability{}, err
	}
	return cap, nil
}

func (l *LocalLedger) nextSeq() (uint64, error) {
	data, err := l.db.Get([]byte("capseq"), nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return 0, err
	}
	var seq uint64
	if len(data) > 0 {
		if err := json.Unmarshal(data, &seq); err != nil {
			return 0, err
		}
	}
	return seq + 1, nil
}

// appendEvent writes the event and the derived pair state in one batch.
// Caller holds l.mu.
func (l *LocalLedger) appendEvent(evType EventType, patientID, doctorID ids.Address, prev Capability) error {
	seq, err := l.nextSeq()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	ev := Event{
		EventID:   uuid.NewString(),
		Type:      evType,
		PatientID: patientID,
		DoctorID:  doctorID,
		Seq:       seq,
		AppliedAt: now,
	}

	cap := prev
	cap.PatientID = patientID
	cap.DoctorID = doctorID
	cap.Seq = seq
	switch evType {
	case EventGrant:
		cap.State = StateGranted
		cap.GrantedAt = &now
		cap.RevokedAt = nil
	case EventRevoke:
		cap.State = StateRevoked
		cap.RevokedAt = &now
	}

	evBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	capBytes, err := json.Marshal(cap)
	if err != nil {
		return err
	}
	seqBytes, err := json.Marshal(seq)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(eventKey(seq), evBytes)
	batch.Put(pairKey(patientID, doctorID), capBytes)
	batch.Put([]byte("capseq"), seqBytes)
	return l.db.Write(batch, nil)
}

// Height returns the number of applied capability events.
func (l *LocalLedger) Height() (uint64, error) {
	seq, err := l.nextSeq()
	if err != nil {
		return 0, err
	}
	return seq - 1, nil
}

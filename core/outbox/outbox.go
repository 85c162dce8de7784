// Package outbox durably queues capability writes that could not reach the
// ledger and retries them with backoff. Degraded operation is explicit: the
// queue depth is reported through status and metrics, and nothing ever falls
// back to a weaker store silently.
package outbox

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
	"medvault/core/capability"
	"medvault/core/fault"
	"medvault/types/ids"
)

// Status reports how a submission was handled.
type Status string

const (
	// StatusApplied means the ledger accepted the write synchronously.
	StatusApplied Status = "applied"
	// StatusQueued means the ledger was unreachable and the write is
	// durably queued for retry. Callers must report this, not hide it.
	StatusQueued Status = "queued"
)

// Submission is one queued capability write.
type Submission struct {
	ID         string                `json:"id"`
	Type       capability.EventType  `json:"type"`
	ActorID    ids.Address           `json:"actorId"`
	PatientID  ids.Address           `json:"patientId"`
	DoctorID   ids.Address           `json:"doctorId"`
	Seq        uint64                `json:"seq"`
	EnqueuedAt time.Time             `json:"enqueuedAt"`
	Attempts   int                   `json:"attempts"`
	LastError  string                `json:"lastError,omitempty"`
}

// Outbox wraps a capability ledger with a durable retry queue.
type Outbox struct {
	mu          sync.Mutex
	db          *leveldb.DB
	target      capability.Ledger
	audit       audit.AuditLogger
	maxAttempts int
	backoff     time.Duration
	drainEvery  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Options tune retry behavior. Zero values get defaults.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	DrainEvery  time.Duration
}

func New(path string, target capability.Ledger, auditLogger audit.AuditLogger, opts Options) (*Outbox, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 8
	}
	if opts.Backoff == 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.DrainEvery == 0 {
		opts.DrainEvery = 5 * time.Second
	}
	return &Outbox{
		db:          db,
		target:      target,
		audit:       auditLogger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		drainEvery:  opts.DrainEvery,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

func (o *Outbox) Close() error {
	o.stopOnce.Do(func() { close(o.stopCh) })
	return o.db.Close()
}

// SubmitGrant applies a grant, queueing it durably when the ledger is
// unreachable. Policy failures (AccessDenied) surface immediately and are
// never queued.
func (o *Outbox) SubmitGrant(ctx context.Context, actorID, patientID, doctorID ids.Address) (Status, error) {
	return o.submit(ctx, capability.EventGrant, actorID, patientID, doctorID)
}

// SubmitRevoke applies a revoke, queueing it durably when the ledger is
// unreachable.
func (o *Outbox) SubmitRevoke(ctx context.Context, actorID, patientID, doctorID ids.Address) (Status, error) {
	return o.submit(ctx, capability.EventRevoke, actorID, patientID, doctorID)
}

func (o *Outbox) submit(ctx context.Context, evType capability.EventType, actorID, patientID, doctorID ids.Address) (Status, error) {
	err := o.apply(ctx, evType, actorID, patientID, doctorID)
	if err == nil {
		return StatusApplied, nil
	}
	if !fault.Retryable(err) {
		return "", err
	}
	if qerr := o.enqueue(evType, actorID, patientID, doctorID, err); qerr != nil {
		// Could not even queue durably; surface the original outage.
		return "", err
	}
	return StatusQueued, nil
}

func (o *Outbox) apply(ctx context.Context, evType capability.EventType, actorID, patientID, doctorID ids.Address) error {
	switch evType {
	case capability.EventGrant:
		return o.target.Grant(ctx, actorID, patientID, doctorID)
	case capability.EventRevoke:
		return o.target.Revoke(ctx, actorID, patientID, doctorID)
	}
	return fault.Newf(fault.InvalidInput, "outbox.apply", "unknown event type %q", evType)
}

func subKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("ob:%016d", seq))
}

func (o *Outbox) enqueue(evType capability.EventType, actorID, patientID, doctorID ids.Address, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	seq, err := o.nextSeq()
	if err != nil {
		return err
	}
	sub := Submission{
		ID:         uuid.NewString(),
		Type:       evType,
		ActorID:    actorID,
		PatientID:  patientID,
		DoctorID:   doctorID,
		Seq:        seq,
		EnqueuedAt: time.Now().UTC(),
		LastError:  cause.Error(),
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	seqBytes, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(subKey(seq), data)
	batch.Put([]byte("obseq"), seqBytes)
	if err := o.db.Write(batch, nil); err != nil {
		return err
	}
	audit.Access(o.audit, "OutboxQueued", actorID.String(), patientID.String(), "queued",
		fmt.Sprintf("%s queued after: %v", evType, cause))
	return nil
}

func (o *Outbox) nextSeq() (uint64, error) {
	data, err := o.db.Get([]byte("obseq"), nil)
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

// Depth returns the number of submissions still waiting for the ledger.
func (o *Outbox) Depth() int {
	depth := 0
	iter := o.db.NewIterator(util.BytesPrefix([]byte("ob:")), nil)
	defer iter.Release()
	for iter.Next() {
		depth++
	}
	return depth
}

// Degraded reports whether capability writes are currently queueing instead
// of reaching the ledger.
func (o *Outbox) Degraded() bool {
	return o.Depth() > 0
}

// Pending lists queued submissions in enqueue order.
func (o *Outbox) Pending() ([]Submission, error) {
	var subs []Submission
	iter := o.db.NewIterator(util.BytesPrefix([]byte("ob:")), nil)
	defer iter.Release()
	for iter.Next() {
		var sub Submission
		if err := json.Unmarshal(iter.Value(), &sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, iter.Error()
}

// Start runs the background drainer until Close.
func (o *Outbox) Start() {
	go func() {
		defer close(o.doneCh)
		ticker := time.NewTicker(o.drainEvery)
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.Drain(context.Background())
			}
		}
	}()
}

// Drain attempts every queued submission once, in order. Exhausted
// submissions are moved to the dead queue and audited as failures; they do
// not block later writes.
func (o *Outbox) Drain(ctx context.Context) {
	subs, err := o.Pending()
	if err != nil {
		return
	}
	for i := range subs {
		sub := subs[i]
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := o.apply(attemptCtx, sub.Type, sub.ActorID, sub.PatientID, sub.DoctorID)
		cancel()

		switch {
		case err == nil:
			o.db.Delete(subKey(sub.Seq), nil)
			audit.Access(o.audit, "OutboxDrained", sub.ActorID.String(), sub.PatientID.String(), "success",
				string(sub.Type)+" applied after retry")
		case !fault.Retryable(err):
			// Policy failures cannot succeed later; drop and audit.
			o.db.Delete(subKey(sub.Seq), nil)
			audit.Access(o.audit, "OutboxRejected", sub.ActorID.String(), sub.PatientID.String(), "failure", err.Error())
		default:
			sub.Attempts++
			sub.LastError = err.Error()
			if sub.Attempts >= o.maxAttempts {
				o.db.Delete(subKey(sub.Seq), nil)
				if data, merr := json.Marshal(sub); merr == nil {
					o.db.Put([]byte(fmt.Sprintf("obdead:%016d", sub.Seq)), data, nil)
				}
				audit.Access(o.audit, "OutboxExhausted", sub.ActorID.String(), sub.PatientID.String(), "failure", sub.LastError)
			} else {
				if data, merr := json.Marshal(sub); merr == nil {
					o.db.Put(subKey(sub.Seq), data, nil)
				}
			}
			// Ledger still down; later submissions would hit the same
			// wall, but keep trying them so one poisoned entry cannot
			// stall the queue.
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.backoff):
			}
		}
	}
}

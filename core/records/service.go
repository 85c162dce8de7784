// Package records orchestrates the capability ledger, the encrypted blob
// store and the record registry. Every read or append is gated by a
// capability check performed immediately before the guarded operation.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medvault/core/audit"
	"medvault/core/blob"
	"medvault/core/capability"
	"medvault/core/fault"
	"medvault/core/registry"
	"medvault/types/ids"
)

// BlobStore is the encrypted blob store surface the service needs.
type BlobStore interface {
	Put(ctx context.Context, plaintext []byte) (blob.BlobRef, error)
	Get(ctx context.Context, ref blob.BlobRef) ([]byte, error)
}

// Registry is the per-patient append-only record registry surface.
type Registry interface {
	Append(ctx context.Context, patientID ids.Address, entry *registry.Entry) error
	ListByPatient(ctx context.Context, patientID ids.Address) ([]registry.Entry, error)
}

// Metadata is the caller-supplied description of a record.
type Metadata struct {
	Title      string `json:"title"`
	RecordType string `json:"recordType"`
}

// RecordView is one registry entry with its decrypted payload attached. Err
// is set when this entry's blob could not be fetched or verified; the error
// is surfaced per entry and does not abort retrieval of the others.
type RecordView struct {
	Entry     registry.Entry
	Plaintext []byte
	Err       error
}

// Options tune retry and staleness behavior. Zero values get defaults.
type Options struct {
	// RetryAttempts bounds retries of transient ledger/blob failures.
	RetryAttempts int
	// RetryBackoff is the base backoff between attempts.
	RetryBackoff time.Duration
	// StalenessWindow is how long a capability check result may be acted
	// upon before it must be re-checked.
	StalenessWindow time.Duration
}

// Service composes the three subsystems. All dependencies are injected.
type Service struct {
	ledger   capability.Ledger
	blobs    BlobStore
	registry Registry
	audit    audit.AuditLogger

	retryAttempts int
	retryBackoff  time.Duration
	staleness     time.Duration

	now func() time.Time
}

func NewService(ledger capability.Ledger, blobs BlobStore, reg Registry, auditLogger audit.AuditLogger, opts Options) *Service {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 250 * time.Millisecond
	}
	if opts.StalenessWindow == 0 {
		opts.StalenessWindow = 5 * time.Second
	}
	return &Service{
		ledger:        ledger,
		blobs:         blobs,
		registry:      reg,
		audit:         auditLogger,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
		staleness:     opts.StalenessWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddRecord encrypts payload, persists the ciphertext and appends a reference
// to the patient's registry. The capability check happens first; on denial
// nothing is written. A failure between blob write and registry append leaves
// an unreferenced ciphertext blob behind, which is inert and unreadable
// without the ref. The operation is not idempotent: a retry creates a new
// blob and a new entry.
func (s *Service) AddRecord(ctx context.Context, actorID, patientID ids.Address, payload []byte, meta Metadata) (registry.Entry, error) {
	const op = "records.AddRecord"

	if actorID.IsZero() || patientID.IsZero() {
		return registry.Entry{}, fault.Newf(fault.InvalidInput, op, "actor and patient identities are required")
	}
	if len(payload) == 0 {
		return registry.Entry{}, fault.Newf(fault.InvalidInput, op, "payload is empty")
	}
	if meta.Title == "" || meta.RecordType == "" {
		return registry.Entry{}, fault.Newf(fault.InvalidInput, op, "title and recordType are required")
	}

	checkedAt, err := s.authorize(ctx, op, actorID, patientID)
	if err != nil {
		return registry.Entry{}, err
	}

	var ref blob.BlobRef
	err = s.withRetry(ctx, func() error {
		var perr error
		ref, perr = s.blobs.Put(ctx, payload)
		return perr
	})
	if err != nil {
		return registry.Entry{}, err
	}

	// The blob exists now; re-check the grant if too much time passed
	// between the capability check and the append it guards.
	if err := s.recheckIfStale(ctx, op, actorID, patientID, checkedAt); err != nil {
		return registry.Entry{}, err
	}

	createdAt := s.now()
	entry := &registry.Entry{
		RecordID:   fmt.Sprintf("%d-%s", createdAt.UnixNano(), uuid.NewString()),
		PatientID:  patientID,
		AddedBy:    actorID,
		BlobRef:    ref,
		Title:      meta.Title,
		RecordType: meta.RecordType,
		CreatedAt:  createdAt,
	}
	if err := s.registry.Append(ctx, patientID, entry); err != nil {
		return registry.Entry{}, err
	}

	audit.Access(s.audit, "RecordAdded", actorID.String(), patientID.String(), "success", entry.RecordID)
	return *entry, nil
}

// ReadRecords returns the patient's entries in registry order with decrypted
// payloads. A DecryptionFailure on one entry is reported on that entry and
// does not abort the others.
func (s *Service) ReadRecords(ctx context.Context, actorID, patientID ids.Address) ([]RecordView, error) {
	const op = "records.ReadRecords"

	if actorID.IsZero() || patientID.IsZero() {
		return nil, fault.Newf(fault.InvalidInput, op, "actor and patient identities are required")
	}

	if _, err := s.authorize(ctx, op, actorID, patientID); err != nil {
		return nil, err
	}

	entries, err := s.registry.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	views := make([]RecordView, 0, len(entries))
	for _, entry := range entries {
		view := RecordView{Entry: entry}
		var plaintext []byte
		gerr := s.withRetry(ctx, func() error {
			var e error
			plaintext, e = s.blobs.Get(ctx, entry.BlobRef)
			return e
		})
		if gerr != nil {
			view.Err = gerr
			if fault.Is(gerr, fault.DecryptionFailure) {
				audit.Access(s.audit, "DecryptionFailure", actorID.String(), patientID.String(), "failure", entry.RecordID)
			}
		} else {
			view.Plaintext = plaintext
		}
		views = append(views, view)
	}

	audit.Access(s.audit, "RecordsRead", actorID.String(), patientID.String(), "success",
		fmt.Sprintf("%d entries", len(views)))
	return views, nil
}

// authorize fails closed: the patient always has access to their own
// records, anyone else needs an active grant on the ledger.
func (s *Service) authorize(ctx context.Context, op string, actorID, patientID ids.Address) (time.Time, error) {
	if actorID == patientID {
		return s.now(), nil
	}
	var allowed bool
	err := s.withRetry(ctx, func() error {
		var herr error
		allowed, herr = s.ledger.HasAccess(ctx, patientID, actorID)
		return herr
	})
	if err != nil {
		return time.Time{}, err
	}
	if !allowed {
		audit.Access(s.audit, "AccessDenied", actorID.String(), patientID.String(), "failure", op)
		return time.Time{}, fault.Newf(fault.AccessDenied, op, "actor %s holds no grant from patient %s", actorID, patientID)
	}
	return s.now(), nil
}

func (s *Service) recheckIfStale(ctx context.Context, op string, actorID, patientID ids.Address, checkedAt time.Time) error {
	if s.now().Sub(checkedAt) <= s.staleness {
		return nil
	}
	_, err := s.authorize(ctx, op, actorID, patientID)
	return err
}

// withRetry retries fn on transient infrastructure failures only, with
// doubling backoff, honoring ctx. Policy and integrity failures return
// immediately.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.retryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !fault.Retryable(err) || attempt >= s.retryAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

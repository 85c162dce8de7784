package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"medvault/core/blob"
	"medvault/core/fault"
	"medvault/types/ids"
)

// Entry is one immutable medical record reference. Entries are append-only:
// there is no update or delete, corrections are new entries.
type Entry struct {
	RecordID   string       `json:"recordId"`
	PatientID  ids.Address  `json:"patientId"`
	AddedBy    ids.Address  `json:"addedBy"`
	BlobRef    blob.BlobRef `json:"blobRef"`
	Title      string       `json:"title"`
	RecordType string       `json:"recordType"`
	CreatedAt  time.Time    `json:"createdAt"`
	Seq        uint64       `json:"seq"`
}

// Registry keeps a per-patient ordered sequence of record references in
// LevelDB. Appends for the same patient are serialized by a per-patient lock;
// different patients proceed concurrently.
type Registry struct {
	db    *leveldb.DB
	locks sync.Map // patient address -> *sync.Mutex
}

func New(path string) (*Registry, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) patientLock(patientID ids.Address) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(patientID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func recordKey(patientID ids.Address, seq uint64) []byte {
	return []byte(fmt.Sprintf("record:%s:%016d", patientID, seq))
}

func headKey(patientID ids.Address) []byte {
	return []byte("recseq:" + patientID.String())
}

// Append adds entry to the end of the patient's sequence and assigns its
// sequence index. The entry and the new head are written in one batch so an
// append either lands completely or not at all.
func (r *Registry) Append(ctx context.Context, patientID ids.Address, entry *Entry) error {
	const op = "registry.Append"
	if err := ctx.Err(); err != nil {
		return fault.New(fault.BlobStoreUnavailable, op, err)
	}
	if entry.PatientID != patientID {
		return fault.Newf(fault.InvalidInput, op, "entry patient %s does not match %s", entry.PatientID, patientID)
	}

	mu := r.patientLock(patientID)
	mu.Lock()
	defer mu.Unlock()

	head, err := r.head(patientID)
	if err != nil {
		return fault.New(fault.BlobStoreUnavailable, op, err)
	}
	entry.Seq = head + 1

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fault.New(fault.InvalidInput, op, err)
	}
	headBytes, err := json.Marshal(entry.Seq)
	if err != nil {
		return fault.New(fault.InvalidInput, op, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(recordKey(patientID, entry.Seq), entryBytes)
	batch.Put(headKey(patientID), headBytes)
	if err := r.db.Write(batch, nil); err != nil {
		return fault.New(fault.BlobStoreUnavailable, op, err)
	}
	return nil
}

// ListByPatient returns all entries for the patient in insertion order. An
// unknown patient yields an empty slice, not an error.
func (r *Registry) ListByPatient(ctx context.Context, patientID ids.Address) ([]Entry, error) {
	const op = "registry.ListByPatient"
	if err := ctx.Err(); err != nil {
		return nil, fault.New(fault.BlobStoreUnavailable, op, err)
	}

	prefix := []byte("record:" + patientID.String() + ":")
	iter := r.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	entries := []Entry{}
	for iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fault.New(fault.BlobStoreUnavailable, op, err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fault.New(fault.BlobStoreUnavailable, op, err)
	}
	return entries, nil
}

// Count returns the number of entries stored for a patient.
func (r *Registry) Count(patientID ids.Address) (uint64, error) {
	return r.head(patientID)
}

// CountAll returns the total number of entries across all patients.
func (r *Registry) CountAll() (uint64, error) {
	var total uint64
	iter := r.db.NewIterator(util.BytesPrefix([]byte("record:")), nil)
	defer iter.Release()
	for iter.Next() {
		total++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Registry) head(patientID ids.Address) (uint64, error) {
	data, err := r.db.Get(headKey(patientID), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var head uint64
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, err
	}
	return head, nil
}

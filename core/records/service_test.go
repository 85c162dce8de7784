package records

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/blob"
	"medvault/core/capability"
	"medvault/core/fault"
	"medvault/core/registry"
	"medvault/types/ids"
)

var (
	p1 = ids.FromContent([]byte("patient-P1"))
	d1 = ids.FromContent([]byte("doctor-D1"))
)

// newIntegrationService wires a real local ledger, registry and encrypted
// blob store on temp LevelDB instances.
func newIntegrationService(t *testing.T, opts Options) (*Service, *capability.LocalLedger) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "records-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	ledger, err := capability.NewLocalLedger(filepath.Join(tmpDir, "ledger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	reg, err := registry.New(filepath.Join(tmpDir, "registry"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	local, err := blob.NewLocalStore(filepath.Join(tmpDir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	return NewService(ledger, blob.NewEncryptedStore(local), reg, nil, opts), ledger
}

func TestGrantRevokeScenario(t *testing.T) {
	svc, ledger := newIntegrationService(t, Options{})
	ctx := context.Background()

	// Patient adds their own record.
	entry, err := svc.AddRecord(ctx, p1, p1, []byte("lab result A"), Metadata{Title: "CBC", RecordType: "lab_result"})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.RecordID)
	assert.NotEmpty(t, entry.BlobRef.ContentAddress)

	// Doctor without a grant is denied.
	_, err = svc.ReadRecords(ctx, d1, p1)
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))

	// Patient grants; doctor reads the decrypted payload.
	require.NoError(t, ledger.Grant(ctx, p1, p1, d1))
	views, err := svc.ReadRecords(ctx, d1, p1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NoError(t, views[0].Err)
	assert.Equal(t, []byte("lab result A"), views[0].Plaintext)
	assert.Equal(t, "CBC", views[0].Entry.Title)

	// Revoke; doctor is denied again.
	require.NoError(t, ledger.Revoke(ctx, p1, p1, d1))
	_, err = svc.ReadRecords(ctx, d1, p1)
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))
}

func TestAddRecordDeniedHasNoSideEffects(t *testing.T) {
	svc, _ := newIntegrationService(t, Options{})
	ctx := context.Background()

	_, err := svc.AddRecord(ctx, d1, p1, []byte("unauthorized"), Metadata{Title: "x", RecordType: "lab_result"})
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))

	views, err := svc.ReadRecords(ctx, p1, p1)
	require.NoError(t, err)
	assert.Empty(t, views, "denied write must leave nothing behind")
}

func TestReadRecordsPreservesAppendOrder(t *testing.T) {
	svc, _ := newIntegrationService(t, Options{})
	ctx := context.Background()

	for _, title := range []string{"r1", "r2", "r3"} {
		_, err := svc.AddRecord(ctx, p1, p1, []byte("payload "+title), Metadata{Title: title, RecordType: "clinical_note"})
		require.NoError(t, err)
	}

	views, err := svc.ReadRecords(ctx, p1, p1)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "r1", views[0].Entry.Title)
	assert.Equal(t, "r2", views[1].Entry.Title)
	assert.Equal(t, "r3", views[2].Entry.Title)
}

func TestGrantLetsDoctorAppend(t *testing.T) {
	svc, ledger := newIntegrationService(t, Options{})
	ctx := context.Background()

	require.NoError(t, ledger.Grant(ctx, p1, p1, d1))
	entry, err := svc.AddRecord(ctx, d1, p1, []byte("visit notes"), Metadata{Title: "consult", RecordType: "clinical_note"})
	require.NoError(t, err)
	assert.Equal(t, d1, entry.AddedBy)
	assert.Equal(t, p1, entry.PatientID)
}

func TestAddRecordValidatesInput(t *testing.T) {
	svc, _ := newIntegrationService(t, Options{})
	ctx := context.Background()

	_, err := svc.AddRecord(ctx, p1, p1, nil, Metadata{Title: "t", RecordType: "lab_result"})
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))

	_, err = svc.AddRecord(ctx, p1, p1, []byte("x"), Metadata{})
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))

	_, err = svc.AddRecord(ctx, ids.Empty, p1, []byte("x"), Metadata{Title: "t", RecordType: "lab_result"})
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}

// fakeBlobs is an in-memory blob store that can mark addresses as corrupted.
type fakeBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	broken map[string]bool
	puts   int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}, broken: map[string]bool{}}
}

func (f *fakeBlobs) Put(ctx context.Context, plaintext []byte) (blob.BlobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	addr := fmt.Sprintf("addr-%d", f.puts)
	f.data[addr] = append([]byte(nil), plaintext...)
	return blob.BlobRef{ContentAddress: addr, Algorithm: blob.Algorithm}, nil
}

func (f *fakeBlobs) Get(ctx context.Context, ref blob.BlobRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[ref.ContentAddress] {
		return nil, fault.Newf(fault.DecryptionFailure, "blob.Get", "auth tag mismatch for %s", ref.ContentAddress)
	}
	data, ok := f.data[ref.ContentAddress]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "blob.Get", "no blob at %s", ref.ContentAddress)
	}
	return data, nil
}

// fakeLedger scripts HasAccess answers and counts calls.
type fakeLedger struct {
	mu      sync.Mutex
	answers []interface{} // bool or error, consumed in order; last repeats
	calls   int
}

func (f *fakeLedger) Grant(ctx context.Context, a, p, d ids.Address) error  { return nil }
func (f *fakeLedger) Revoke(ctx context.Context, a, p, d ids.Address) error { return nil }

func (f *fakeLedger) HasAccess(ctx context.Context, p, d ids.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	switch v := f.answers[idx].(type) {
	case bool:
		return v, nil
	case error:
		return false, v
	}
	return false, nil
}

func newFakeRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "records-fakereg-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	reg, err := registry.New(filepath.Join(tmpDir, "registry"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestDecryptionFailureIsSurfacedPerEntry(t *testing.T) {
	blobs := newFakeBlobs()
	reg := newFakeRegistry(t)
	svc := NewService(&fakeLedger{answers: []interface{}{true}}, blobs, reg, nil, Options{})
	ctx := context.Background()

	for _, title := range []string{"r1", "r2", "r3"} {
		_, err := svc.AddRecord(ctx, p1, p1, []byte(title+" payload"), Metadata{Title: title, RecordType: "lab_result"})
		require.NoError(t, err)
	}

	// Corrupt the middle entry's blob.
	blobs.mu.Lock()
	blobs.broken["addr-2"] = true
	blobs.mu.Unlock()

	views, err := svc.ReadRecords(ctx, p1, p1)
	require.NoError(t, err)
	require.Len(t, views, 3, "one bad entry must not abort the others")

	assert.NoError(t, views[0].Err)
	assert.Equal(t, []byte("r1 payload"), views[0].Plaintext)
	assert.Equal(t, fault.DecryptionFailure, fault.KindOf(views[1].Err))
	assert.Nil(t, views[1].Plaintext)
	assert.NoError(t, views[2].Err)
}

func TestTransientLedgerFailureIsRetried(t *testing.T) {
	outage := fault.Newf(fault.LedgerUnavailable, "ledger.Call", "timeout")
	ledger := &fakeLedger{answers: []interface{}{outage, outage, true}}
	svc := NewService(ledger, newFakeBlobs(), newFakeRegistry(t), nil,
		Options{RetryAttempts: 3, RetryBackoff: time.Millisecond})

	_, err := svc.AddRecord(context.Background(), d1, p1, []byte("x"), Metadata{Title: "t", RecordType: "lab_result"})
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.calls)
}

func TestLedgerOutageSurfacesAfterRetriesExhausted(t *testing.T) {
	outage := fault.Newf(fault.LedgerUnavailable, "ledger.Call", "timeout")
	ledger := &fakeLedger{answers: []interface{}{outage}}
	svc := NewService(ledger, newFakeBlobs(), newFakeRegistry(t), nil,
		Options{RetryAttempts: 2, RetryBackoff: time.Millisecond})

	_, err := svc.ReadRecords(context.Background(), d1, p1)
	assert.Equal(t, fault.LedgerUnavailable, fault.KindOf(err))
	assert.Equal(t, 3, ledger.calls, "initial attempt plus two retries")
}

func TestDenialIsNotRetried(t *testing.T) {
	ledger := &fakeLedger{answers: []interface{}{false}}
	svc := NewService(ledger, newFakeBlobs(), newFakeRegistry(t), nil,
		Options{RetryAttempts: 5, RetryBackoff: time.Millisecond})

	_, err := svc.ReadRecords(context.Background(), d1, p1)
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))
	assert.Equal(t, 1, ledger.calls)
}

func TestStaleCapabilityCheckIsReverified(t *testing.T) {
	// Grant visible on the first check, revoked by the time the stale
	// re-check runs: the append must fail closed.
	ledger := &fakeLedger{answers: []interface{}{true, false}}
	reg := newFakeRegistry(t)
	svc := NewService(ledger, newFakeBlobs(), reg, nil,
		Options{StalenessWindow: time.Nanosecond, RetryBackoff: time.Millisecond})

	_, err := svc.AddRecord(context.Background(), d1, p1, []byte("x"), Metadata{Title: "t", RecordType: "lab_result"})
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))

	entries, lerr := reg.ListByPatient(context.Background(), p1)
	require.NoError(t, lerr)
	assert.Empty(t, entries, "stale grant must not be acted upon")
}

func TestRecordIDsAreMonotonicPerPatient(t *testing.T) {
	svc, _ := newIntegrationService(t, Options{})
	ctx := context.Background()

	var prev registry.Entry
	for i := 0; i < 5; i++ {
		entry, err := svc.AddRecord(ctx, p1, p1, []byte(fmt.Sprintf("payload %d", i)), Metadata{Title: "t", RecordType: "lab_result"})
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, entry.Seq, prev.Seq)
			assert.NotEqual(t, entry.RecordID, prev.RecordID)
		}
		prev = entry
	}
}

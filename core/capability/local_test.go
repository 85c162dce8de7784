package capability

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/fault"
	"medvault/types/ids"
)

var (
	patient = ids.FromContent([]byte("patient-1"))
	doctor  = ids.FromContent([]byte("doctor-1"))
	other   = ids.FromContent([]byte("doctor-2"))
)

func newTestLedger(t *testing.T) *LocalLedger {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "capability-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	l, err := NewLocalLedger(filepath.Join(tmpDir, "ledger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNoAccessBeforeGrant(t *testing.T) {
	l := newTestLedger(t)
	ok, err := l.HasAccess(context.Background(), patient, doctor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantRevokeRegrant(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	ok, err := l.HasAccess(ctx, patient, doctor)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Revoke(ctx, patient, patient, doctor))
	ok, err = l.HasAccess(ctx, patient, doctor)
	require.NoError(t, err)
	assert.False(t, ok, "revoke must be visible to subsequent reads")

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	ok, err = l.HasAccess(ctx, patient, doctor)
	require.NoError(t, err)
	assert.True(t, ok, "a further grant restores access")
}

func TestGrantIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	require.NoError(t, l.Grant(ctx, patient, patient, doctor))

	events, err := l.Events(ctx, patient, doctor)
	require.NoError(t, err)
	assert.Len(t, events, 1, "re-granting a granted pair must not append an event")
}

func TestRevokeWithoutGrantIsNoop(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Revoke(ctx, patient, patient, doctor))
	events, err := l.Events(ctx, patient, doctor)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOnlyPatientMayGrantOrRevoke(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.Grant(ctx, doctor, patient, doctor)
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	err = l.Revoke(ctx, doctor, patient, doctor)
	assert.Equal(t, fault.AccessDenied, fault.KindOf(err))

	ok, err := l.HasAccess(ctx, patient, doctor)
	require.NoError(t, err)
	assert.True(t, ok, "foreign revoke must not change state")
}

func TestEventLogIsAppendOnly(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	require.NoError(t, l.Revoke(ctx, patient, patient, doctor))
	require.NoError(t, l.Grant(ctx, patient, patient, doctor))

	events, err := l.Events(ctx, patient, doctor)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventGrant, events[0].Type)
	assert.Equal(t, EventRevoke, events[1].Type)
	assert.Equal(t, EventGrant, events[2].Type)
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Less(t, events[1].Seq, events[2].Seq)

	cap, err := l.Capability(ctx, patient, doctor)
	require.NoError(t, err)
	assert.Equal(t, StateGranted, cap.State)
	assert.Equal(t, events[2].Seq, cap.Seq, "last applied event wins")
}

func TestPairsAreIndependent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, patient, patient, doctor))
	ok, err := l.HasAccess(ctx, patient, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentGrantRevokeKeepsTotalOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Grant(ctx, patient, patient, doctor)
		}()
		go func() {
			defer wg.Done()
			l.Revoke(ctx, patient, patient, doctor)
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the derived state must match the last
	// applied event.
	events, err := l.Events(ctx, patient, doctor)
	require.NoError(t, err)
	cap, err := l.Capability(ctx, patient, doctor)
	require.NoError(t, err)
	if len(events) == 0 {
		assert.Equal(t, StateNone, cap.State)
		return
	}
	last := events[len(events)-1]
	if last.Type == EventGrant {
		assert.Equal(t, StateGranted, cap.State)
	} else {
		assert.Equal(t, StateRevoked, cap.State)
	}
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].Seq, events[i].Seq)
	}
}

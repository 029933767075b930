package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySignupRegister_ConcurrentIncrements(t *testing.T) {
	r := NewMemorySignupRegister(newTestSigner(t), false, nopLogger, nil)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.IncrementSignup(context.Background(), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := r.GetSignedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Count)
	assert.Equal(t, SignupModeMemory, r.Mode())
}

func TestMemorySignupRegister_SignedCount(t *testing.T) {
	signer := newTestSigner(t)
	r := NewMemorySignupRegister(signer, false, nopLogger, nil)
	r.now = fixedClock(time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC))

	n, err := r.IncrementSignup(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.GetSignedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T03:04:05.006Z", got.Timestamp)
	assert.NotContains(t, got.Signature, signing.Prefix, "count signature is bare hex")
	assert.Len(t, got.Signature, 64)
	assert.True(t, signer.Verify("count:1|timestamp:2025-01-02T03:04:05.006Z", got.Signature))
	assert.False(t, signer.Verify("count:2|timestamp:2025-01-02T03:04:05.006Z", got.Signature))
}

func TestMemorySignupRegister_Reset(t *testing.T) {
	ctx := context.Background()

	dev := NewMemorySignupRegister(newTestSigner(t), false, nopLogger, nil)
	_, _ = dev.IncrementSignup(ctx, "")
	require.NoError(t, dev.Reset(ctx))
	c, _ := dev.GetSignedCount(ctx)
	assert.Zero(t, c.Count)

	prod := NewMemorySignupRegister(newTestSigner(t), true, nopLogger, nil)
	_, _ = prod.IncrementSignup(ctx, "")
	assert.ErrorIs(t, prod.Reset(ctx), common.ErrResetForbidden)
	c, _ = prod.GetSignedCount(ctx)
	assert.Equal(t, int64(1), c.Count)
}

func newPersistedRegister(t *testing.T, rm *fakeRepoManager, ledger AuditLedger, production bool) *PersistedSignupRegister {
	t.Helper()
	return NewPersistedSignupRegister(nil, nil, rm, ledger, newTestSigner(t), "cvm-1", production, nopLogger, nil)
}

func TestPersistedSignupRegister_Increment(t *testing.T) {
	rm := newFakeRepoManager()
	r := newPersistedRegister(t, rm, NewPostgresAuditLedger(nil, nil, rm), false)

	n, err := r.IncrementSignup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{common.HashIdentifier("alice")}, rm.signups.hashes)
	assert.Equal(t, []string{"cvm-1"}, rm.signups.sources)

	require.Len(t, rm.audit.entries, 1)
	e := rm.audit.entries[0]
	assert.Equal(t, models.ActionSignup, e.Action)
	assert.Equal(t, common.HashIdentifier("alice"), e.Details["userIdHash"])
	assert.Nil(t, e.Signature)
	assert.Equal(t, SignupModePersisted, r.Mode())
}

func TestPersistedSignupRegister_AnonymousUser(t *testing.T) {
	rm := newFakeRepoManager()
	r := newPersistedRegister(t, rm, NopAuditLedger{}, false)
	at := time.UnixMilli(1700000000123)
	r.now = fixedClock(at)

	_, err := r.IncrementSignup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{common.HashIdentifier("anonymous_1700000000123")}, rm.signups.hashes)
}

func TestPersistedSignupRegister_AuditFailureIsSwallowed(t *testing.T) {
	rm := newFakeRepoManager()
	rm.audit.appendErr = errors.New("audit down")
	r := newPersistedRegister(t, rm, NewPostgresAuditLedger(nil, nil, rm), false)

	n, err := r.IncrementSignup(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPersistedSignupRegister_InsertError(t *testing.T) {
	rm := newFakeRepoManager()
	rm.signups.insertErr = errors.New("boom")
	r := newPersistedRegister(t, rm, NopAuditLedger{}, false)

	_, err := r.IncrementSignup(context.Background(), "bob")
	assert.ErrorContains(t, err, "boom")
	assert.Empty(t, rm.audit.entries, "no audit entry for a signup that was not recorded")
}

func TestPersistedSignupRegister_SignedCount(t *testing.T) {
	rm := newFakeRepoManager()
	r := newPersistedRegister(t, rm, NopAuditLedger{}, false)
	r.now = fixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	for _, u := range []string{"a", "b", "c"} {
		_, err := r.IncrementSignup(context.Background(), u)
		require.NoError(t, err)
	}

	got, err := r.GetSignedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Count)
	assert.True(t, r.signer.Verify(signing.CountMessage(3, got.Timestamp), got.Signature))

	rm.signups.countErr = errors.New("replica lag")
	_, err = r.GetSignedCount(context.Background())
	assert.ErrorContains(t, err, "replica lag")
}

func TestPersistedSignupRegister_Reset(t *testing.T) {
	rm := newFakeRepoManager()
	dev := newPersistedRegister(t, rm, NopAuditLedger{}, false)
	require.NoError(t, dev.Reset(context.Background()))
	assert.True(t, rm.signups.truncated)

	rm2 := newFakeRepoManager()
	prod := newPersistedRegister(t, rm2, NopAuditLedger{}, true)
	assert.ErrorIs(t, prod.Reset(context.Background()), common.ErrResetForbidden)
	assert.False(t, rm2.signups.truncated)
}

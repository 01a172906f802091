package seeds

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

func newTestManager(t *testing.T, ceiling uint64) *Manager {
	t.Helper()
	m, err := Open(Options{InMemory: true, NonceCeiling: ceiling})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

type pendingBets struct {
	mu sync.Mutex
	n  map[string]int
}

func (p *pendingBets) CountPending(_ context.Context, seedID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n[seedID], nil
}

func (p *pendingBets) set(seedID string, n int) {
	p.mu.Lock()
	p.n[seedID] = n
	p.mu.Unlock()
}

func TestCommitHidesSeedUntilReveal(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 10)

	committed, err := m.Commit(ctx, "alice", "dice", "lucky")
	require.NoError(t, err)
	assert.Nil(t, committed.ServerSeed)
	assert.Len(t, committed.ServerSeedHash, 64)
	assert.Equal(t, StatusActive, committed.Status)

	view, err := m.Fairness(ctx, committed.ID)
	require.NoError(t, err)
	assert.Nil(t, view.ServerSeed)

	revealed, err := m.Reveal(ctx, committed.ID)
	require.NoError(t, err)
	require.NotNil(t, revealed.ServerSeed)
	assert.Equal(t, StatusRevealed, revealed.Status)
	assert.True(t, engine.VerifyCommitment(*revealed.ServerSeed, committed.ServerSeedHash))

	_, err = m.Active(ctx, "alice", "dice")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAcquireLeasesSequentialNonces(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 100)

	var seedID string
	for want := uint64(0); want < 5; want++ {
		lease, err := m.Acquire(ctx, "alice", "dice", "lucky")
		require.NoError(t, err)
		assert.Equal(t, want, lease.Nonce)
		if seedID == "" {
			seedID = lease.SeedID
		}
		assert.Equal(t, seedID, lease.SeedID)
		m.Release(lease)
	}

	active, err := m.Active(ctx, "alice", "dice")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), active.Nonce)
}

func TestLeaseStreamMatchesRevealedSeed(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 100)

	lease, err := m.Acquire(ctx, "alice", "limbo", "abc")
	require.NoError(t, err)
	drawn := lease.Stream().Floats(3)
	m.Release(lease)

	revealed, err := m.Reveal(ctx, lease.SeedID)
	require.NoError(t, err)
	require.NotNil(t, revealed.ServerSeed)

	replayed := engine.Floats(*revealed.ServerSeed, "abc", lease.Nonce, 0, 3)
	assert.Equal(t, drawn, replayed)
}

func TestCeilingRotatesAndNoncesStayMonotonic(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 3)

	seen := make(map[string]bool)
	var last uint64
	for i := 0; i < 7; i++ {
		lease, err := m.Acquire(ctx, "bob", "mines", "cs")
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, lease.Nonce, last)
		}
		last = lease.Nonce
		seen[lease.SeedID] = true
		m.Release(lease)
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, uint64(6), last)
}

func TestClientSeedChangeRotates(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 100)

	first, err := m.Acquire(ctx, "carol", "dice", "one")
	require.NoError(t, err)
	m.Release(first)

	second, err := m.Acquire(ctx, "carol", "dice", "two")
	require.NoError(t, err)
	m.Release(second)

	assert.NotEqual(t, first.SeedID, second.SeedID)
	assert.Equal(t, first.Nonce+1, second.Nonce)
	assert.Equal(t, "two", second.ClientSeed)

	old, err := m.Fairness(ctx, first.SeedID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevealed, old.Status)
	assert.NotNil(t, old.ServerSeed)
}

func TestRevealWithOpenLeaseIsRejected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 100)

	lease, err := m.Acquire(ctx, "dave", "dice", "cs")
	require.NoError(t, err)

	_, err = m.Reveal(ctx, lease.SeedID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSeedInUse)
	assert.True(t, errs.IsInvariant(err))

	m.Release(lease)
	revealed, err := m.Reveal(ctx, lease.SeedID)
	require.NoError(t, err)
	assert.NotNil(t, revealed.ServerSeed)

	// A revealed seed is never handed out again.
	next, err := m.Acquire(ctx, "dave", "dice", "cs")
	require.NoError(t, err)
	assert.NotEqual(t, lease.SeedID, next.SeedID)
	assert.Equal(t, lease.Nonce+1, next.Nonce)
	m.Release(next)
}

func TestRotateReturnsPreviousSeed(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 100)

	lease, err := m.Acquire(ctx, "erin", "wheel", "cs")
	require.NoError(t, err)
	m.Release(lease)

	prev, next, err := m.Rotate(ctx, "erin", "wheel", "fresh")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, lease.SeedID, prev.ID)
	assert.Equal(t, StatusRevealed, prev.Status)
	require.NotNil(t, prev.ServerSeed)
	assert.Equal(t, "fresh", next.ClientSeed)
	assert.Equal(t, uint64(1), next.FirstNonce)

	_, _, err = m.Rotate(ctx, "erin", "wheel", "")
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)
}

func TestRotateIfExhausted(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 2)

	rotated, err := m.RotateIfExhausted(ctx, "house", "crash")
	require.NoError(t, err)
	assert.False(t, rotated)

	for i := 0; i < 2; i++ {
		lease, err := m.Acquire(ctx, "house", "crash", "cs")
		require.NoError(t, err)
		m.Release(lease)
	}
	before, err := m.Active(ctx, "house", "crash")
	require.NoError(t, err)

	rotated, err = m.RotateIfExhausted(ctx, "house", "crash")
	require.NoError(t, err)
	assert.True(t, rotated)

	after, err := m.Active(ctx, "house", "crash")
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, uint64(2), after.FirstNonce)
}

func TestFairnessUnknownSeed(t *testing.T) {
	m := newTestManager(t, 10)
	_, err := m.Fairness(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = m.Reveal(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAuditRevealedSeeds(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := Open(Options{InMemory: true, NonceCeiling: 1, Clock: func() time.Time { return fixed }})
	require.NoError(t, err)
	defer m.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		lease, err := m.Acquire(ctx, "frank", "dice", "cs")
		require.NoError(t, err)
		m.Release(lease)
		ids = append(ids, lease.SeedID)
	}
	// The first three are retired and get revealed on lookup.
	for _, id := range ids[:3] {
		view, err := m.Fairness(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusRevealed, view.Status)
		require.NotNil(t, view.RevealedAt)
		assert.True(t, fixed.Equal(*view.RevealedAt))
	}

	checked, failed, err := m.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	assert.Empty(t, failed)
}

func TestPendingBetsBlockReveal(t *testing.T) {
	ctx := context.Background()
	pending := &pendingBets{n: map[string]int{}}
	m, err := Open(Options{InMemory: true, NonceCeiling: 100, Pending: pending})
	require.NoError(t, err)
	defer m.Close()

	lease, err := m.Acquire(ctx, "house", "crash", "cs")
	require.NoError(t, err)
	m.Release(lease)
	pending.set(lease.SeedID, 1)

	// Reveal retires the seed but keeps it secret.
	seed, err := m.Reveal(ctx, lease.SeedID)
	assert.ErrorIs(t, err, errs.ErrSeedInUse)
	assert.Equal(t, StatusRetired, seed.Status)
	assert.Nil(t, seed.ServerSeed)

	view, err := m.Fairness(ctx, lease.SeedID)
	require.NoError(t, err)
	assert.Nil(t, view.ServerSeed)

	// The next round gets a fresh seed.
	next, err := m.Acquire(ctx, "house", "crash", "cs")
	require.NoError(t, err)
	assert.NotEqual(t, lease.SeedID, next.SeedID)
	m.Release(next)

	prev, _, err := m.Rotate(ctx, "house", "crash", "cs")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, next.SeedID, prev.ID)

	pending.set(lease.SeedID, 0)
	view, err = m.Fairness(ctx, lease.SeedID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevealed, view.Status)
	require.NotNil(t, view.ServerSeed)
	assert.True(t, engine.VerifyCommitment(*view.ServerSeed, lease.ServerSeedHash))
}

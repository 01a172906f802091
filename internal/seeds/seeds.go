package seeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/logger"
)

// HouseOwner owns the seeds of shared round tables.
const HouseOwner = "house"

// Status is the lifecycle state of a server seed.
type Status string

const (
	StatusActive   Status = "active"
	StatusRetired  Status = "retired"
	StatusRevealed Status = "revealed"
)

type seedRecord struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Table      string     `json:"table"`
	ServerSeed string     `json:"server_seed"`
	Hash       string     `json:"hash"`
	ClientSeed string     `json:"client_seed"`
	FirstNonce uint64     `json:"first_nonce"`
	NextNonce  uint64     `json:"next_nonce"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	RetiredAt  *time.Time `json:"retired_at,omitempty"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
}

type pairRecord struct {
	ActiveSeedID string `json:"active_seed_id"`
	ClientSeed   string `json:"client_seed"`
	NextNonce    uint64 `json:"next_nonce"`
}

// Seed is the public view of a seed. ServerSeed is nil until revealed.
type Seed struct {
	ID             string     `json:"seedId"`
	Owner          string     `json:"owner"`
	Table          string     `json:"table"`
	ServerSeedHash string     `json:"serverSeedHash"`
	ServerSeed     *string    `json:"serverSeed"`
	ClientSeed     string     `json:"clientSeed"`
	FirstNonce     uint64     `json:"firstNonce"`
	Nonce          uint64     `json:"nonce"` // next unused nonce
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	RetiredAt      *time.Time `json:"retiredAt,omitempty"`
	RevealedAt     *time.Time `json:"revealedAt,omitempty"`
}

func (r seedRecord) public() Seed {
	s := Seed{
		ID:             r.ID,
		Owner:          r.Owner,
		Table:          r.Table,
		ServerSeedHash: r.Hash,
		ClientSeed:     r.ClientSeed,
		FirstNonce:     r.FirstNonce,
		Nonce:          r.NextNonce,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		RetiredAt:      r.RetiredAt,
		RevealedAt:     r.RevealedAt,
	}
	if r.Status == StatusRevealed {
		seed := r.ServerSeed
		s.ServerSeed = &seed
	}
	return s
}

// Lease grants one nonce on a committed seed. It must be released after the
// wager it backs is settled or voided.
type Lease struct {
	SeedID         string `json:"seedId"`
	Owner          string `json:"owner"`
	Table          string `json:"table"`
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`

	serverSeed string
}

// Stream derives the RNG stream for the leased nonce.
func (l Lease) Stream() *engine.Stream {
	return engine.NewStream(l.serverSeed, l.ClientSeed, l.Nonce)
}

// PendingCounter reports bets on a seed that are not yet settled or voided.
type PendingCounter interface {
	CountPending(ctx context.Context, seedID string) (int, error)
}

type Options struct {
	Dir      string
	InMemory bool
	// NonceCeiling is the number of nonces served by one seed before it is rotated.
	NonceCeiling uint64
	// Pending blocks reveal while the bet log still holds unsettled bets on a seed.
	Pending PendingCounter
	Clock   func() time.Time
}

// Manager commits, leases, rotates and reveals server seeds.
//
// Each (owner, table) pair has at most one active seed. Nonces increase
// monotonically per pair across rotations, so no (seed, nonce) is ever served twice.
type Manager struct {
	vault   *vault
	ceiling uint64
	pending PendingCounter
	now     func() time.Time
	log     *slog.Logger

	mu     sync.Mutex
	leases map[string]int // seed id → open leases
}

func Open(opts Options) (*Manager, error) {
	if opts.NonceCeiling == 0 {
		opts.NonceCeiling = 1000
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	v, err := openVault(opts.Dir, opts.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open seed vault: %w", err)
	}

	return &Manager{
		vault:   v,
		ceiling: opts.NonceCeiling,
		pending: opts.Pending,
		now:     opts.Clock,
		log:     logger.With("component", "seeds"),
		leases:  make(map[string]int),
	}, nil
}

func (m *Manager) Close() error { return m.vault.close() }

// commitLocked creates a fresh seed for the pair, retiring the previous active one.
func (m *Manager) commitLocked(txn *badger.Txn, owner, table, clientSeed string) (seedRecord, error) {
	var pair pairRecord
	if err := getJSON(txn, pairKey(owner, table), &pair); err != nil && !errors.Is(err, errKeyNotFound) {
		return seedRecord{}, err
	}

	now := m.now().UTC()
	if pair.ActiveSeedID != "" {
		if err := m.retireLocked(txn, pair.ActiveSeedID, now); err != nil {
			return seedRecord{}, err
		}
	}

	serverSeed, err := engine.NewServerSeed()
	if err != nil {
		return seedRecord{}, err
	}

	rec := seedRecord{
		ID:         uuid.NewString(),
		Owner:      owner,
		Table:      table,
		ServerSeed: serverSeed,
		Hash:       engine.HashSeed(serverSeed),
		ClientSeed: clientSeed,
		FirstNonce: pair.NextNonce,
		NextNonce:  pair.NextNonce,
		Status:     StatusActive,
		CreatedAt:  now,
	}
	if err := setJSON(txn, seedKey(rec.ID), rec); err != nil {
		return seedRecord{}, err
	}

	pair.ActiveSeedID = rec.ID
	pair.ClientSeed = clientSeed
	if err := setJSON(txn, pairKey(owner, table), pair); err != nil {
		return seedRecord{}, err
	}

	m.log.Info("Server seed committed", "owner", owner, "table", table, "seed_id", rec.ID, "hash", logger.SeedTag(rec.Hash))
	return rec, nil
}

func (m *Manager) retireLocked(txn *badger.Txn, seedID string, now time.Time) error {
	var rec seedRecord
	if err := getJSON(txn, seedKey(seedID), &rec); err != nil {
		return err
	}
	if rec.Status != StatusActive {
		return nil
	}
	rec.Status = StatusRetired
	rec.RetiredAt = &now
	return setJSON(txn, seedKey(seedID), rec)
}

// Commit generates a new server seed for the pair and returns its public view.
// Only the hash is exposed until the seed is revealed.
func (m *Manager) Commit(ctx context.Context, owner, table, clientSeed string) (Seed, error) {
	if owner == "" || table == "" {
		return Seed{}, errs.Invalid("owner and table are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var rec seedRecord
	err := m.vault.db.Update(func(txn *badger.Txn) error {
		var err error
		rec, err = m.commitLocked(txn, owner, table, clientSeed)
		return err
	})
	if err != nil {
		return Seed{}, fmt.Errorf("commit seed: %w", err)
	}
	return rec.public(), nil
}

// Acquire leases the next nonce for the pair. A missing, exhausted or
// differently client-seeded active seed is rotated first.
func (m *Manager) Acquire(ctx context.Context, owner, table, clientSeed string) (Lease, error) {
	if owner == "" || table == "" {
		return Lease{}, errs.Invalid("owner and table are required")
	}
	if clientSeed == "" {
		return Lease{}, errs.Invalid("client seed is required")
	}
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var lease Lease
	err := m.vault.db.Update(func(txn *badger.Txn) error {
		var pair pairRecord
		if err := getJSON(txn, pairKey(owner, table), &pair); err != nil && !errors.Is(err, errKeyNotFound) {
			return err
		}

		var rec seedRecord
		if pair.ActiveSeedID != "" {
			if err := getJSON(txn, seedKey(pair.ActiveSeedID), &rec); err != nil {
				return err
			}
		}

		if pair.ActiveSeedID == "" || rec.ClientSeed != clientSeed || rec.NextNonce-rec.FirstNonce >= m.ceiling {
			var err error
			if rec, err = m.commitLocked(txn, owner, table, clientSeed); err != nil {
				return err
			}
			if err := getJSON(txn, pairKey(owner, table), &pair); err != nil {
				return err
			}
		}

		if rec.NextNonce != pair.NextNonce {
			return errs.New(errs.CodeSeedReuse, "seed %s next nonce %d disagrees with pair nonce %d", rec.ID, rec.NextNonce, pair.NextNonce)
		}

		lease = Lease{
			SeedID:         rec.ID,
			Owner:          owner,
			Table:          table,
			ServerSeedHash: rec.Hash,
			ClientSeed:     rec.ClientSeed,
			Nonce:          rec.NextNonce,
			serverSeed:     rec.ServerSeed,
		}

		rec.NextNonce++
		pair.NextNonce = rec.NextNonce
		if err := setJSON(txn, seedKey(rec.ID), rec); err != nil {
			return err
		}
		return setJSON(txn, pairKey(owner, table), pair)
	})
	if err != nil {
		if errs.IsInvariant(err) {
			m.log.Error("Seed invariant violation", "owner", owner, "table", table, "error", err)
			return Lease{}, err
		}
		return Lease{}, fmt.Errorf("acquire nonce: %w", err)
	}

	m.leases[lease.SeedID]++
	return lease, nil
}

// Release closes a lease.
func (m *Manager) Release(lease Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.leases[lease.SeedID] <= 1 {
		delete(m.leases, lease.SeedID)
		return
	}
	m.leases[lease.SeedID]--
}

// Rotate retires the pair's active seed and commits a new one. It returns the
// retired seed (revealed when no lease is open) and the new commitment.
func (m *Manager) Rotate(ctx context.Context, owner, table, clientSeed string) (previous *Seed, next Seed, err error) {
	if owner == "" || table == "" {
		return nil, Seed{}, errs.Invalid("owner and table are required")
	}
	if clientSeed == "" {
		return nil, Seed{}, errs.Invalid("client seed is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var prevID string
	err = m.vault.db.Update(func(txn *badger.Txn) error {
		var pair pairRecord
		if err := getJSON(txn, pairKey(owner, table), &pair); err != nil && !errors.Is(err, errKeyNotFound) {
			return err
		}
		prevID = pair.ActiveSeedID

		rec, err := m.commitLocked(txn, owner, table, clientSeed)
		if err != nil {
			return err
		}
		next = rec.public()
		return nil
	})
	if err != nil {
		return nil, Seed{}, fmt.Errorf("rotate seed: %w", err)
	}

	if prevID != "" {
		prev, err := m.revealLocked(ctx, prevID, false)
		if err != nil && !errors.Is(err, errs.ErrSeedInUse) {
			return nil, next, err
		}
		previous = &prev
	}
	return previous, next, nil
}

// RotateIfExhausted commits a new seed once the active seed has served the nonce ceiling.
func (m *Manager) RotateIfExhausted(ctx context.Context, owner, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rotated := false
	err := m.vault.db.Update(func(txn *badger.Txn) error {
		var pair pairRecord
		if err := getJSON(txn, pairKey(owner, table), &pair); err != nil {
			if errors.Is(err, errKeyNotFound) {
				return nil
			}
			return err
		}
		if pair.ActiveSeedID == "" {
			return nil
		}

		var rec seedRecord
		if err := getJSON(txn, seedKey(pair.ActiveSeedID), &rec); err != nil {
			return err
		}
		if rec.NextNonce-rec.FirstNonce < m.ceiling {
			return nil
		}

		rotated = true
		_, err := m.commitLocked(txn, owner, table, rec.ClientSeed)
		return err
	})
	return rotated, err
}

// Reveal returns the raw seed and retires it permanently. While the seed has
// an open lease or a pending bet it is only retired, and the call fails with
// seed_in_use.
func (m *Manager) Reveal(ctx context.Context, seedID string) (Seed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revealLocked(ctx, seedID, true)
}

// busyLocked describes what still depends on the seed, or returns "".
func (m *Manager) busyLocked(ctx context.Context, seedID string) (string, error) {
	if n := m.leases[seedID]; n > 0 {
		return fmt.Sprintf("%d open leases", n), nil
	}
	if m.pending == nil {
		return "", nil
	}
	n, err := m.pending.CountPending(ctx, seedID)
	if err != nil {
		return "", fmt.Errorf("count pending bets: %w", err)
	}
	if n > 0 {
		return fmt.Sprintf("%d pending bets", n), nil
	}
	return "", nil
}

// revealLocked reveals a seed. With retireActive false an active seed is left untouched.
func (m *Manager) revealLocked(ctx context.Context, seedID string, retireActive bool) (Seed, error) {
	var (
		rec  seedRecord
		busy string
	)
	err := m.vault.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, seedKey(seedID), &rec); err != nil {
			if errors.Is(err, errKeyNotFound) {
				return errs.New(errs.CodeNotFound, "seed %s not found", seedID)
			}
			return err
		}
		if rec.Status == StatusRevealed {
			return nil
		}
		if rec.Status == StatusActive && !retireActive {
			return nil
		}

		var err error
		if busy, err = m.busyLocked(ctx, seedID); err != nil {
			return err
		}

		now := m.now().UTC()
		if rec.Status == StatusActive {
			var pair pairRecord
			if err := getJSON(txn, pairKey(rec.Owner, rec.Table), &pair); err != nil {
				return err
			}
			if pair.ActiveSeedID == rec.ID {
				pair.ActiveSeedID = ""
				if err := setJSON(txn, pairKey(rec.Owner, rec.Table), pair); err != nil {
					return err
				}
			}
			rec.Status = StatusRetired
			rec.RetiredAt = &now
		}
		if busy == "" {
			rec.Status = StatusRevealed
			rec.RevealedAt = &now
		}
		return setJSON(txn, seedKey(seedID), rec)
	})
	if err != nil {
		return Seed{}, err
	}
	if busy != "" {
		return rec.public(), errs.New(errs.CodeSeedInUse, "seed %s has %s", seedID, busy)
	}

	if !engine.VerifyCommitment(rec.ServerSeed, rec.Hash) {
		return Seed{}, errs.Invariant("seed %s does not match its commitment", seedID)
	}
	if rec.Status == StatusRevealed {
		m.log.Info("Server seed revealed", "seed_id", seedID, "hash", logger.SeedTag(rec.Hash))
	}
	return rec.public(), nil
}

func (m *Manager) getSeed(seedID string) (seedRecord, error) {
	var rec seedRecord
	err := m.vault.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, seedKey(seedID), &rec)
	})
	if errors.Is(err, errKeyNotFound) {
		return seedRecord{}, errs.New(errs.CodeNotFound, "seed %s not found", seedID)
	}
	return rec, err
}

// Fairness returns the public view of a seed. A retired seed is revealed on
// first lookup once no lease or pending bet depends on it.
func (m *Manager) Fairness(ctx context.Context, seedID string) (Seed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getSeed(seedID)
	if err != nil {
		return Seed{}, err
	}
	if rec.Status != StatusRetired {
		return rec.public(), nil
	}
	seed, err := m.revealLocked(ctx, seedID, false)
	if errors.Is(err, errs.ErrSeedInUse) {
		return seed, nil
	}
	return seed, err
}

// Active returns the pair's active seed, or not_found.
func (m *Manager) Active(ctx context.Context, owner, table string) (Seed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rec seedRecord
	err := m.vault.db.View(func(txn *badger.Txn) error {
		var pair pairRecord
		if err := getJSON(txn, pairKey(owner, table), &pair); err != nil {
			return err
		}
		if pair.ActiveSeedID == "" {
			return errKeyNotFound
		}
		return getJSON(txn, seedKey(pair.ActiveSeedID), &rec)
	})
	if errors.Is(err, errKeyNotFound) {
		return Seed{}, errs.New(errs.CodeNotFound, "no active seed for %s/%s", owner, table)
	}
	if err != nil {
		return Seed{}, err
	}
	return rec.public(), nil
}

// Audit re-checks every revealed seed against its published hash and returns
// the ids that fail.
func (m *Manager) Audit(ctx context.Context) (checked int, failed []string, err error) {
	records, err := m.vault.listSeeds()
	if err != nil {
		return 0, nil, err
	}
	for _, rec := range records {
		if rec.Status != StatusRevealed {
			continue
		}
		checked++
		if !engine.VerifyCommitment(rec.ServerSeed, rec.Hash) {
			failed = append(failed, rec.ID)
		}
	}
	return checked, failed, nil
}

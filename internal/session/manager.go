// Package session orchestrates the seed pair lifecycle: commit, stake,
// settle. It glues the pure outcome derivation to the persistent store
// and the money ledger while holding a per-owner serialization guard so
// concurrent requests for the same player cannot interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/lanerush/pf-engine-go/internal/engine"
	"github.com/lanerush/pf-engine-go/internal/lanes"
	"github.com/lanerush/pf-engine-go/internal/ledger"
	"github.com/lanerush/pf-engine-go/internal/lib/logger/sl"
	"github.com/lanerush/pf-engine-go/internal/store"
)

const (
	maxClientSeedLen = 128

	resolvedCacheTTL   = 10 * time.Minute
	resolvedCacheSweep = time.Minute
)

// Manager drives seed pairs through created -> active -> resolved.
type Manager struct {
	db     store.DB
	ledger ledger.Transactor
	log    *slog.Logger

	// resolved remembers recently settled ids so repeat resolve calls
	// get their benign AlreadyResolved answer without a database trip.
	resolved *cache.Cache

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

func NewManager(db store.DB, l ledger.Transactor, log *slog.Logger) *Manager {
	return &Manager{
		db:       db,
		ledger:   l,
		log:      log,
		resolved: cache.New(resolvedCacheTTL, resolvedCacheSweep),
		owners:   make(map[string]*sync.Mutex),
	}
}

// ownerLock returns the mutex serializing all transitions for one owner.
func (m *Manager) ownerLock(owner string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.owners[owner]
	if !ok {
		mu = &sync.Mutex{}
		m.owners[owner] = mu
	}
	return mu
}

// Create commits a new round: generates the secret, derives the crash
// lane, snapshots the table, and supersedes any prior live session for
// the owner. The crash lane is part of the result; the secret is not.
// A positive wager makes the round a stake round; zero means practice.
func (m *Manager) Create(ctx context.Context, owner, clientSeed, tier string, wager decimal.Decimal) (*CreateResult, error) {
	const op = "session.Create"

	if owner == "" {
		return nil, validationf("owner must not be empty")
	}
	if clientSeed == "" || len(clientSeed) > maxClientSeedLen {
		return nil, validationf("client seed must be 1..%d characters", maxClientSeedLen)
	}
	t, err := lanes.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if wager.Sign() < 0 {
		return nil, validationf("wager must not be negative")
	}
	md := lanes.ModePractice
	if wager.Sign() > 0 {
		md = lanes.ModeStake
	}

	mu := m.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	prior, err := m.db.ActiveSeedPair(ctx, owner)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	secret, err := engine.NewServerSecret()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	commitment := engine.Commitment(secret)
	outcome := engine.DeriveOutcome(secret, clientSeed, 0)

	reserve := decimal.Zero
	if md == lanes.ModeStake {
		reserve, err = m.ledger.GetReserve(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	crashLane, table, err := lanes.SelectCrashLane(outcome, t, md, wager, reserve)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sp := &store.SeedPair{
		ID:           uuid.New().String(),
		Owner:        owner,
		ServerSecret: secret,
		Commitment:   commitment,
		ClientSeed:   clientSeed,
		RoundCounter: 0,
		Tier:         t,
		Mode:         md,
		CrashLane:    crashLane,
		Table:        table,
		Wager:        wager,
		Status:       store.StatusCreated,
		CreatedAt:    time.Now().UTC(),
	}
	// A superseded active stake round settles with zero payout. Its
	// wager was already taken, so the history record is the only
	// mutation, written in the same transaction as the supersede. A
	// merely created round never held a stake and leaves no trace.
	var settle func(ledger.Ledger) error
	if prior != nil && prior.Status == store.StatusActive && prior.Mode == lanes.ModeStake {
		settle = func(l ledger.Ledger) error {
			return l.AppendHistory(ctx, &ledger.HistoryRecord{
				Owner:      owner,
				SeedPairID: prior.ID,
				Wager:      prior.Wager,
				Payout:     decimal.Zero,
				CrashLane:  prior.CrashLane,
				Tier:       string(prior.Tier),
			})
		}
	}
	if err := m.db.CreateSeedPair(ctx, sp, settle); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("session created",
		sl.Op(op),
		slog.String("seed_pair_id", sp.ID),
		slog.String("owner", owner),
		slog.String("tier", string(t)),
		slog.String("mode", string(md)),
		slog.Int("crash_lane", crashLane),
	)

	return &CreateResult{
		ID:         sp.ID,
		Commitment: commitment,
		ClientSeed: clientSeed,
		Tier:       t,
		Mode:       md,
		CrashLane:  crashLane,
		Table:      table,
		Wager:      wager,
	}, nil
}

// Activate takes the stake. In stake mode the wager moves from the
// player's balance into the reserve in one transaction; practice mode
// touches no balances. A failed funds check leaves the session created
// so the caller can retry with a different wager on a fresh round.
func (m *Manager) Activate(ctx context.Context, owner, id string) (*ActivateResult, error) {
	const op = "session.Activate"

	mu := m.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	sp, err := m.lookup(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if sp.Status != store.StatusCreated {
		return nil, ErrAlreadyResolved
	}

	// The status claim and the stake movement share one transaction:
	// a failed funds check rolls the claim back, leaving the session
	// created; practice mode moves no money.
	var settle func(ledger.Ledger) error
	if sp.Mode == lanes.ModeStake {
		settle = func(l ledger.Ledger) error {
			if _, err := l.AdjustBalance(ctx, owner, sp.Wager.Neg()); err != nil {
				return err
			}
			_, err := l.AdjustReserve(ctx, sp.Wager)
			return err
		}
	}
	if err := m.db.MarkActivated(ctx, sp.ID, settle); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return nil, err
		case errors.Is(err, store.ErrAlreadyResolved):
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	balance, err := m.ledger.GetBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("session activated",
		sl.Op(op), slog.String("seed_pair_id", sp.ID), slog.String("owner", owner))

	return &ActivateResult{ID: sp.ID, NewBalance: balance}, nil
}

// Resolve settles the round and reveals the server secret. A cash-out
// strictly before the crash lane pays that lane's multiplier; reaching
// or passing the crash lane, or abandoning, pays zero. Cash-out, crash,
// and abandonment all flow through this one settlement path.
func (m *Manager) Resolve(ctx context.Context, owner, id string, reachedLane *int) (*ResolveResult, error) {
	const op = "session.Resolve"

	mu := m.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	// Keyed by owner as well as id: a foreign owner probing someone
	// else's resolved id must still get the not-found answer.
	cacheKey := owner + "/" + id
	if _, found := m.resolved.Get(cacheKey); found {
		return nil, ErrAlreadyResolved
	}

	sp, err := m.lookup(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == store.StatusResolved {
		m.resolved.SetDefault(cacheKey, struct{}{})
		return nil, ErrAlreadyResolved
	}

	if reachedLane != nil && (*reachedLane < 1 || *reachedLane > len(sp.Table)) {
		return nil, validationf("reached lane %d outside table of %d lanes", *reachedLane, len(sp.Table))
	}

	payout := decimal.Zero
	if reachedLane != nil && *reachedLane <= sp.CrashLane-1 {
		mult := decimal.NewFromFloat(sp.Table[*reachedLane-1].Multiplier)
		payout = sp.Wager.Mul(mult)
	}

	// Settlement mutates money only for a funded stake round. A stake
	// session resolved straight from created was never funded; practice
	// rounds never touch balances at all. The payout, the history
	// record, and the terminal status claim commit in one transaction,
	// so an interrupted resolve can never pay twice.
	var settle func(ledger.Ledger) error
	if sp.Mode == lanes.ModeStake && sp.Status == store.StatusActive {
		settle = func(l ledger.Ledger) error {
			if payout.Sign() > 0 {
				if _, err := l.AdjustBalance(ctx, owner, payout); err != nil {
					return err
				}
				if _, err := l.AdjustReserve(ctx, payout.Neg()); err != nil {
					return err
				}
			}
			return l.AppendHistory(ctx, &ledger.HistoryRecord{
				Owner:       owner,
				SeedPairID:  sp.ID,
				Wager:       sp.Wager,
				Payout:      payout,
				ReachedLane: reachedLane,
				CrashLane:   sp.CrashLane,
				Tier:        string(sp.Tier),
			})
		}
	} else {
		payout = decimal.Zero
	}

	if err := m.db.MarkResolved(ctx, sp.ID, sp.RoundCounter+1, settle); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.resolved.SetDefault(cacheKey, struct{}{})

	balance, err := m.ledger.GetBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("session resolved",
		sl.Op(op),
		slog.String("seed_pair_id", sp.ID),
		slog.String("owner", owner),
		slog.String("payout", payout.String()),
	)

	return &ResolveResult{
		ID:           sp.ID,
		ServerSecret: sp.ServerSecret,
		Commitment:   sp.Commitment,
		ClientSeed:   sp.ClientSeed,
		RoundCounter: sp.RoundCounter + 1,
		CrashLane:    sp.CrashLane,
		ReachedLane:  reachedLane,
		Payout:       payout,
		NewBalance:   balance,
	}, nil
}

// Active returns the owner's live session without the server secret.
func (m *Manager) Active(ctx context.Context, owner string) (*View, error) {
	sp, err := m.db.ActiveSeedPair(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session.Active: %w", err)
	}
	return &View{
		ID:         sp.ID,
		Commitment: sp.Commitment,
		ClientSeed: sp.ClientSeed,
		Tier:       sp.Tier,
		Mode:       sp.Mode,
		CrashLane:  sp.CrashLane,
		Table:      sp.Table,
		Wager:      sp.Wager,
		Status:     sp.Status,
	}, nil
}

// Balance returns the owner's current balance.
func (m *Manager) Balance(ctx context.Context, owner string) (decimal.Decimal, error) {
	return m.ledger.GetBalance(ctx, owner)
}

// lookup fetches the seed pair and hides foreign sessions behind the
// not-found answer.
func (m *Manager) lookup(ctx context.Context, owner, id string) (*store.SeedPair, error) {
	sp, err := m.db.GetSeedPair(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session.lookup: %w", err)
	}
	if sp.Owner != owner {
		return nil, ErrSessionNotFound
	}
	return sp, nil
}

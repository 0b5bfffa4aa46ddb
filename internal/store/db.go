package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanerush/pf-engine-go/internal/lanes"
	"github.com/lanerush/pf-engine-go/internal/ledger"
)

// Seed pair lifecycle states. A seed pair is created with the commitment
// issued, becomes active once the stake is taken, and is terminal once
// resolved.
const (
	StatusCreated  = "created"
	StatusActive   = "active"
	StatusResolved = "resolved"
)

var (
	// ErrNotFound is returned when no seed pair matches the lookup.
	ErrNotFound = errors.New("store: seed pair not found")

	// ErrAlreadyResolved is returned when a state transition targets a
	// seed pair that is already terminal.
	ErrAlreadyResolved = errors.New("store: seed pair already resolved")
)

// SeedPair is the persisted wager round: the commit-reveal pair, the
// derived crash lane, and the table snapshot taken at creation. CrashLane
// and Table are immutable once written; settlement reuses them verbatim.
type SeedPair struct {
	ID           string
	Owner        string
	ServerSecret string
	Commitment   string
	ClientSeed   string
	RoundCounter uint64
	Tier         lanes.Tier
	Mode         lanes.Mode
	CrashLane    int
	Table        lanes.Table
	Wager        decimal.Decimal
	Status       string
	CreatedAt    time.Time
	ActivatedAt  *time.Time
	ResolvedAt   *time.Time
}

// DB is the seed pair persistence interface. Transition methods take an
// optional settle callback that runs against a transaction-bound Ledger
// inside the same transaction as the status change: either the status
// claim and every balance mutation commit together, or none do.
type DB interface {
	Close() error

	// CreateSeedPair atomically supersedes any non-terminal seed pair
	// belonging to sp.Owner and inserts sp. The supersede and the insert
	// are one transaction so two concurrent creates for the same owner
	// cannot both end up live. A non-nil settle runs in that transaction
	// after the supersede.
	CreateSeedPair(ctx context.Context, sp *SeedPair, settle func(ledger.Ledger) error) error

	// GetSeedPair returns the seed pair by id, or ErrNotFound.
	GetSeedPair(ctx context.Context, id string) (*SeedPair, error)

	// ActiveSeedPair returns the owner's current non-terminal seed pair,
	// or ErrNotFound.
	ActiveSeedPair(ctx context.Context, owner string) (*SeedPair, error)

	// MarkActivated transitions created -> active and runs settle in the
	// same transaction. Returns ErrAlreadyResolved if the seed pair is
	// not in the created state; a settle error rolls the claim back.
	MarkActivated(ctx context.Context, id string, settle func(ledger.Ledger) error) error

	// MarkResolved claims the terminal transition, bumping the round
	// counter, and runs settle in the same transaction. Returns
	// ErrAlreadyResolved if the seed pair was already terminal,
	// ErrNotFound if it does not exist; a settle error rolls the claim
	// back.
	MarkResolved(ctx context.Context, id string, roundCounter uint64, settle func(ledger.Ledger) error) error
}

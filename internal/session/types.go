package session

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lanerush/pf-engine-go/internal/lanes"
)

var (
	// ErrSessionNotFound covers unknown ids and ids owned by someone
	// else. Foreign sessions are indistinguishable from missing ones.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrAlreadyResolved marks the idempotency guard on terminal
	// sessions. Callers treat it as a benign no-op.
	ErrAlreadyResolved = errors.New("session: already resolved")

	// ErrValidation wraps malformed caller input. Never retried.
	ErrValidation = errors.New("session: validation")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// CreateResult is returned from Create. The crash lane is disclosed up
// front; only the server secret stays hidden until resolution.
type CreateResult struct {
	ID         string          `json:"id"`
	Commitment string          `json:"commitment"`
	ClientSeed string          `json:"client_seed"`
	Tier       lanes.Tier      `json:"tier"`
	Mode       lanes.Mode      `json:"mode"`
	CrashLane  int             `json:"crash_lane"`
	Table      lanes.Table     `json:"table"`
	Wager      decimal.Decimal `json:"wager"`
}

// ActivateResult is returned from Activate.
type ActivateResult struct {
	ID         string          `json:"id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ResolveResult is returned from Resolve and reveals the server secret.
type ResolveResult struct {
	ID           string          `json:"id"`
	ServerSecret string          `json:"server_secret"`
	Commitment   string          `json:"commitment"`
	ClientSeed   string          `json:"client_seed"`
	RoundCounter uint64          `json:"round_counter"`
	CrashLane    int             `json:"crash_lane"`
	ReachedLane  *int            `json:"reached_lane,omitempty"`
	Payout       decimal.Decimal `json:"payout"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}

// View is the secret-free projection of a live session, served back to
// its owner on request.
type View struct {
	ID         string          `json:"id"`
	Commitment string          `json:"commitment"`
	ClientSeed string          `json:"client_seed"`
	Tier       lanes.Tier      `json:"tier"`
	Mode       lanes.Mode      `json:"mode"`
	CrashLane  int             `json:"crash_lane"`
	Table      lanes.Table     `json:"table"`
	Wager      decimal.Decimal `json:"wager"`
	Status     string          `json:"status"`
}

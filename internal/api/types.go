package api

import (
	"github.com/shopspring/decimal"

	"github.com/lanerush/pf-engine-go/internal/lanes"
	"github.com/lanerush/pf-engine-go/internal/session"
)

// EngineError is the structured error body every failed request gets.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

// Error types surfaced to callers.
const (
	ErrTypeValidation        = "validation_error"
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeSessionNotFound   = "session_not_found"
	ErrTypeAlreadyResolved   = "already_resolved"
	ErrTypeInternal          = "internal_error"
)

// ErrorCategory buckets error types for logging and monitoring.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategorySystem     ErrorCategory = "system"
)

func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInsufficientFunds:
		return CategoryValidation
	case ErrTypeSessionNotFound, ErrTypeAlreadyResolved:
		return CategoryConflict
	default:
		return CategorySystem
	}
}

// CreateSessionRequest commits a new round. A zero wager is practice.
type CreateSessionRequest struct {
	Owner      string          `json:"owner" validate:"required,max=64"`
	ClientSeed string          `json:"client_seed" validate:"required,max=128"`
	Tier       string          `json:"tier" validate:"required"`
	Wager      decimal.Decimal `json:"wager"`
}

// ActivateSessionRequest takes the stake for a created session.
type ActivateSessionRequest struct {
	Owner string `json:"owner" validate:"required,max=64"`
}

// ResolveSessionRequest settles the session. ReachedLane omitted means
// the round was abandoned.
type ResolveSessionRequest struct {
	Owner       string `json:"owner" validate:"required,max=64"`
	ReachedLane *int   `json:"reached_lane,omitempty"`
}

type CreateSessionResponse struct {
	Session       *session.CreateResult `json:"session"`
	EngineVersion string                `json:"engine_version"`
}

type ActivateSessionResponse struct {
	Result        *session.ActivateResult `json:"result"`
	EngineVersion string                  `json:"engine_version"`
}

type ResolveSessionResponse struct {
	Result        *session.ResolveResult `json:"result"`
	EngineVersion string                 `json:"engine_version"`
}

type ActiveSessionResponse struct {
	Session       *session.View `json:"session"`
	EngineVersion string        `json:"engine_version"`
}

type TablesResponse struct {
	Tables        map[lanes.Tier]map[lanes.Mode]lanes.Table `json:"tables"`
	EngineVersion string                                    `json:"engine_version"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	EngineVersion string `json:"engine_version"`
	Timestamp     string `json:"timestamp"`
	Uptime        string `json:"uptime,omitempty"`
}

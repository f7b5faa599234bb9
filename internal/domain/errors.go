package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientBalance   = errors.New("insufficient points balance")
	ErrConflict              = errors.New("conflict")
	ErrAccountBlocked        = errors.New("loyalty account is blocked or inactive")
	ErrRedemptionExpired     = errors.New("redemption code expired")
	ErrRedemptionNotPending  = errors.New("redemption code is not pending")
	ErrLedgerMismatch        = errors.New("ledger fold does not match account balance")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrUnsupportedEventType  = errors.New("unsupported event type")
	ErrUnsupportedEventClass = errors.New("unsupported event class")
	ErrInvalidEnvelope       = errors.New("invalid event envelope")
)

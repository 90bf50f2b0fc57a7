package escrow

import "errors"

// Operation failures. Every failure is a rejected operation, never a crashed
// ledger: a returned error guarantees no observable state change.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrExceedsBudget      = errors.New("release exceeds task budget")
	ErrAlreadyPaid        = errors.New("subtask already paid")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrFeeTooHigh         = errors.New("fee exceeds cap")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrWorkAlreadyStarted = errors.New("work already started")
	ErrReentrantCall      = errors.New("reentrant call")
)

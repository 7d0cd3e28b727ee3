package service

import (
	"errors"
	"fmt"
)

// User-visible failures. Handlers map them to HTTP statuses.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrBusy              = errors.New("system busy, please retry")
)

// ErrInvalidAmount is the ValidationError raised by ledger operations.
var ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrValidation)

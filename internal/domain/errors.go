package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors, matched with errors.Is
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorageFailure    = errors.New("storage failure")
)

// Error carries the entity and state an operation failed on.
// Kind is one of the sentinel errors above.
type Error struct {
	Kind   error
	Entity string
	ID     string
	State  string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
	}
	if e.State != "" {
		msg += fmt.Sprintf(" (state %s)", e.State)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity
func NotFound(entity, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InvalidState reports an operation attempted from a forbidding state
func InvalidState(entity, id string, state fmt.Stringer, msg string) error {
	return &Error{Kind: ErrInvalidState, Entity: entity, ID: id, State: state.String(), Msg: msg}
}

// CapacityExceeded reports a full charger for a window
func CapacityExceeded(chargerID string, occupied, total int) error {
	return &Error{
		Kind:   ErrCapacityExceeded,
		Entity: "charger",
		ID:     chargerID,
		Msg:    fmt.Sprintf("%d of %d ports occupied", occupied, total),
	}
}

// Validation reports malformed input
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientFunds reports a strict debit larger than the balance
func InsufficientFunds(userID string, balance, amount decimal.Decimal) error {
	return &Error{
		Kind:   ErrInsufficientFunds,
		Entity: "wallet",
		ID:     userID,
		Msg:    fmt.Sprintf("balance %s, requested %s", balance.StringFixed(2), amount.StringFixed(2)),
	}
}

// StorageFailure wraps a store or commit error. It is the only kind a caller should retry.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: ErrStorageFailure, Msg: op, Err: err}
}

func (s BookingStatus) String() string { return string(s) }

func (s SessionStatus) String() string { return string(s) }

func (s ChargerStatus) String() string { return string(s) }

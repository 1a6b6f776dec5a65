package orders

import "errors"

// Saga outcomes surfaced to callers. Reservation and payment failures are
// recovered via compensation before one of these is returned; only
// ErrPersistenceFailure escapes without compensation because reversing an
// approved payment is out of scope and needs out-of-band reconciliation.
var (
	ErrValidation              = errors.New("invalid order request")
	ErrCapacityConflict        = errors.New("insufficient stock")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrPaymentDeclined         = errors.New("payment declined")
	ErrPersistenceFailure      = errors.New("order commit failed after payment approval")
	ErrCancellationNotAllowed  = errors.New("order cannot be cancelled")
	ErrShipmentNotAllowed      = errors.New("order cannot be shipped")
	ErrOrderNotFound           = errors.New("order not found")
)

package orders

// SagaState tracks a single PlaceOrder execution through its phases.
type SagaState string

const (
	SagaInit         SagaState = "INIT"
	SagaReserving    SagaState = "RESERVING"
	SagaReserved     SagaState = "RESERVED"
	SagaPaying       SagaState = "PAYING"
	SagaPaid         SagaState = "PAID"
	SagaCommitting   SagaState = "COMMITTING"
	SagaConfirmed    SagaState = "CONFIRMED"
	SagaCompensating SagaState = "COMPENSATING"
	SagaAborted      SagaState = "ABORTED"
)

var sagaNext = map[SagaState]map[SagaState]bool{
	SagaInit:         {SagaReserving: true},
	SagaReserving:    {SagaReserved: true, SagaCompensating: true},
	SagaReserved:     {SagaPaying: true, SagaCompensating: true},
	SagaPaying:       {SagaPaid: true, SagaCompensating: true},
	SagaPaid:         {SagaCommitting: true},
	SagaCommitting:   {SagaConfirmed: true},
	SagaConfirmed:    {},
	SagaCompensating: {SagaAborted: true},
	SagaAborted:      {},
}

// CanAdvance reports whether the saga may move from one state to the next.
func CanAdvance(from, to SagaState) bool {
	return sagaNext[from][to]
}

var statusNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true, StatusShipped: true},
	StatusShipped:   {StatusDelivered: true},
	StatusCancelled: {},
	StatusDelivered: {},
}

// CanTransition reports whether a persisted order may change status.
func CanTransition(from, to OrderStatus) bool {
	return statusNext[from][to]
}

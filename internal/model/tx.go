package model

// TxOutcome is the result tag of a conditional ledger write.
type TxOutcome uint8

const (
	TxCommitted TxOutcome = iota + 1
	TxAborted
)

// TxResult wraps every conditional write against the ledger.  Aborted
// carries the business reason the condition did not hold (for example
// ErrInsufficientCapacity); infrastructure failures are returned as plain
// errors instead.
type TxResult struct {
	Outcome TxOutcome
	Reason  error
}

// Committed is the result of a write whose condition held.
func Committed() TxResult { return TxResult{Outcome: TxCommitted} }

// Aborted is the result of a write whose condition did not hold.
func Aborted(reason error) TxResult { return TxResult{Outcome: TxAborted, Reason: reason} }

// Ok reports whether the write was applied.
func (r TxResult) Ok() bool { return r.Outcome == TxCommitted }

// Err returns nil for a committed write and the abort reason otherwise.
func (r TxResult) Err() error {
	if r.Outcome == TxCommitted {
		return nil
	}
	if r.Reason == nil {
		return ErrConflict
	}
	return r.Reason
}

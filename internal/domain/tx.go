package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the confirmed outcome of a write.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Logs        []LogRecord
}

// LogRecord is one emitted log, kept with its position for audit and linking.
type LogRecord struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	Index       uint
}

// WriteStatus is the journal state of one write step.
type WriteStatus string

const (
	WriteConfirmed WriteStatus = "CONFIRMED"
	WriteReverted  WriteStatus = "REVERTED"
	WriteFailed    WriteStatus = "FAILED"
)

// WriteRecord is one write step of an action, as stored in the journal.
type WriteRecord struct {
	ActionID  string // UUID shared by the steps of one action
	Action    string
	Step      string
	Account   common.Address
	Target    common.Address
	TxHash    common.Hash
	Status    WriteStatus
	Reason    string
	CreatedAt time.Time
}

// StepResult is the outcome of one write step.
type StepResult struct {
	Step    string
	Receipt Receipt
}

// ActionResult summarizes a multi-step action. Steps lists the writes that
// confirmed, in order; on failure the earlier steps stay on the ledger.
type ActionResult struct {
	ID     string
	Action string
	Steps  []StepResult
	// Amount is reported by actions that decode one from their receipt,
	// such as the fees of withdrawFees, or re-read one after the write, such
	// as the wrapped balance after wrap and unwrap.
	Amount *big.Int
}

// Step returns the receipt of the named step, if it ran.
func (r ActionResult) Step(name string) (Receipt, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s.Receipt, true
		}
	}
	return Receipt{}, false
}

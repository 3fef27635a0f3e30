package event

import (
	"fmt"
	"time"
)

// Type discriminator for decoded contract events.
type Type int32

const (
	TypeUnknown Type = iota
	TypeItemTransfer
	TypeLotPlaced
	TypeLotFilled
	TypeLotCanceled
)

// Event is the interface all decoded contract events implement.
// Events arrive already decoded — this package never touches raw chain logs.
type Event interface {
	// EventType returns the discriminator
	EventType() Type

	// LogIndex returns the event's position inside its block. Together
	// with the transaction hash it forms the dedup identity of the event.
	LogIndex() uint32

	// TxHash returns the hash of the transaction that emitted the event
	TxHash() string
}

// Block is one block's worth of decoded events for a single monitor,
// the unit the context editor applies and checkpoints atomically.
type Block struct {
	// Monitor is the named consumer this block belongs to
	Monitor string

	// Number is the chain block number
	Number uint64

	// Versioned input timestamp from the chain, NOT wall-clock
	Timestamp time.Time

	Events []Event
}

// ItemTransfer moves a quantity of one item between accounts.
// From == the null address models a mint, To == the null address a burn.
type ItemTransfer struct {
	From   string
	To     string
	ItemID int64
	Amount int64
	Tx     string
	Index  uint32
}

func (e *ItemTransfer) EventType() Type  { return TypeItemTransfer }
func (e *ItemTransfer) LogIndex() uint32 { return e.Index }
func (e *ItemTransfer) TxHash() string   { return e.Tx }

// LotPlaced opens a sell offer for a quantity of one item at a unit price.
type LotPlaced struct {
	Owner  string
	ItemID int64
	Price  int64
	Amount int64
	Tx     string
	Index  uint32
}

func (e *LotPlaced) EventType() Type  { return TypeLotPlaced }
func (e *LotPlaced) LogIndex() uint32 { return e.Index }
func (e *LotPlaced) TxHash() string   { return e.Tx }

// LotFilled records a partial or full purchase against an open lot.
type LotFilled struct {
	LotID  int64
	Buyer  string
	Amount int64
	Tx     string
	Index  uint32
}

func (e *LotFilled) EventType() Type  { return TypeLotFilled }
func (e *LotFilled) LogIndex() uint32 { return e.Index }
func (e *LotFilled) TxHash() string   { return e.Tx }

// LotCanceled withdraws an open lot from the market.
type LotCanceled struct {
	LotID int64
	Tx    string
	Index uint32
}

func (e *LotCanceled) EventType() Type  { return TypeLotCanceled }
func (e *LotCanceled) LogIndex() uint32 { return e.Index }
func (e *LotCanceled) TxHash() string   { return e.Tx }

func (t Type) String() string {
	switch t {
	case TypeItemTransfer:
		return "ItemTransfer"
	case TypeLotPlaced:
		return "LotPlaced"
	case TypeLotFilled:
		return "LotFilled"
	case TypeLotCanceled:
		return "LotCanceled"
	default:
		return "Unknown"
	}
}

// DedupKey is the stable per-event identity used by the applied-event log.
func DedupKey(e Event) string {
	return fmt.Sprintf("%s:%d", e.TxHash(), e.LogIndex())
}

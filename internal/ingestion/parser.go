package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"MarketLedger/internal/event"
)

// Wire formats for decoded chain events as published by the upstream
// monitor/decoder. Field names use snake_case to match the producers.
// This package never sees raw chain logs, only decoded payloads.

type blockJSON struct {
	Block       uint64          `json:"block"`
	TimestampUs int64           `json:"timestamp_us"`
	Events      []blockEventJSON `json:"events"`
}

type blockEventJSON struct {
	Type     string `json:"type"`
	TxHash   string `json:"tx_hash"`
	LogIndex uint32 `json:"log_index"`

	// item_transfer
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	ItemID int64  `json:"item_id,omitempty"`

	// lot_placed
	Owner string `json:"owner,omitempty"`
	Price int64  `json:"price,omitempty"`

	// lot_filled / lot_canceled
	LotID int64  `json:"lot_id,omitempty"`
	Buyer string `json:"buyer,omitempty"`

	// shared quantity field
	Amount int64 `json:"amount,omitempty"`
}

// ParseBlock converts one JSON payload into a typed block for a monitor.
func ParseBlock(monitor string, data []byte) (*event.Block, error) {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse block payload: %w", err)
	}
	if j.Block == 0 {
		return nil, fmt.Errorf("block payload missing block number")
	}

	blk := &event.Block{
		Monitor:   monitor,
		Number:    j.Block,
		Timestamp: time.UnixMicro(j.TimestampUs),
		Events:    make([]event.Event, 0, len(j.Events)),
	}

	for i, e := range j.Events {
		ev, err := parseEvent(e)
		if err != nil {
			return nil, fmt.Errorf("block %d event %d: %w", j.Block, i, err)
		}
		blk.Events = append(blk.Events, ev)
	}

	return blk, nil
}

func parseEvent(e blockEventJSON) (event.Event, error) {
	if e.TxHash == "" {
		return nil, fmt.Errorf("event missing tx_hash")
	}

	switch e.Type {
	case "item_transfer":
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("item_transfer missing from/to")
		}
		return &event.ItemTransfer{
			From:   e.From,
			To:     e.To,
			ItemID: e.ItemID,
			Amount: e.Amount,
			Tx:     e.TxHash,
			Index:  e.LogIndex,
		}, nil

	case "lot_placed":
		if e.Owner == "" {
			return nil, fmt.Errorf("lot_placed missing owner")
		}
		return &event.LotPlaced{
			Owner:  e.Owner,
			ItemID: e.ItemID,
			Price:  e.Price,
			Amount: e.Amount,
			Tx:     e.TxHash,
			Index:  e.LogIndex,
		}, nil

	case "lot_filled":
		if e.Buyer == "" {
			return nil, fmt.Errorf("lot_filled missing buyer")
		}
		return &event.LotFilled{
			LotID:  e.LotID,
			Buyer:  e.Buyer,
			Amount: e.Amount,
			Tx:     e.TxHash,
			Index:  e.LogIndex,
		}, nil

	case "lot_canceled":
		return &event.LotCanceled{
			LotID: e.LotID,
			Tx:    e.TxHash,
			Index: e.LogIndex,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

package ingestion

import (
	"testing"

	"MarketLedger/internal/event"
)

func TestParseBlock_AllEventTypes(t *testing.T) {
	payload := []byte(`{
		"block": 7,
		"timestamp_us": 1700000000000000,
		"events": [
			{"type": "item_transfer", "tx_hash": "0xabc", "log_index": 0,
			 "from": "0x0", "to": "0xAA", "item_id": 1, "amount": 10},
			{"type": "lot_placed", "tx_hash": "0xabc", "log_index": 1,
			 "owner": "0xAA", "item_id": 1, "price": 100, "amount": 10},
			{"type": "lot_filled", "tx_hash": "0xdef", "log_index": 0,
			 "lot_id": 3, "buyer": "0xBB", "amount": 4},
			{"type": "lot_canceled", "tx_hash": "0xdef", "log_index": 1,
			 "lot_id": 3}
		]
	}`)

	blk, err := ParseBlock("item-market", payload)
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}

	if blk.Monitor != "item-market" {
		t.Errorf("monitor = %q", blk.Monitor)
	}
	if blk.Number != 7 {
		t.Errorf("block = %d, want 7", blk.Number)
	}
	if len(blk.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(blk.Events))
	}

	transfer, ok := blk.Events[0].(*event.ItemTransfer)
	if !ok {
		t.Fatalf("event 0 is %T, want *event.ItemTransfer", blk.Events[0])
	}
	if transfer.From != "0x0" || transfer.To != "0xAA" || transfer.ItemID != 1 || transfer.Amount != 10 {
		t.Errorf("unexpected transfer: %+v", transfer)
	}

	placed, ok := blk.Events[1].(*event.LotPlaced)
	if !ok {
		t.Fatalf("event 1 is %T, want *event.LotPlaced", blk.Events[1])
	}
	if placed.Owner != "0xAA" || placed.Price != 100 {
		t.Errorf("unexpected placement: %+v", placed)
	}

	filled, ok := blk.Events[2].(*event.LotFilled)
	if !ok {
		t.Fatalf("event 2 is %T, want *event.LotFilled", blk.Events[2])
	}
	if filled.LotID != 3 || filled.Buyer != "0xBB" || filled.Amount != 4 {
		t.Errorf("unexpected fill: %+v", filled)
	}

	canceled, ok := blk.Events[3].(*event.LotCanceled)
	if !ok {
		t.Fatalf("event 3 is %T, want *event.LotCanceled", blk.Events[3])
	}
	if canceled.LotID != 3 {
		t.Errorf("unexpected cancel: %+v", canceled)
	}
}

func TestParseBlock_DedupKeys(t *testing.T) {
	payload := []byte(`{
		"block": 9,
		"events": [
			{"type": "lot_canceled", "tx_hash": "0xfeed", "log_index": 2, "lot_id": 1}
		]
	}`)

	blk, err := ParseBlock("item-market", payload)
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}
	if got := event.DedupKey(blk.Events[0]); got != "0xfeed:2" {
		t.Errorf("dedup key = %q, want %q", got, "0xfeed:2")
	}
}

func TestParseBlock_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"missing block number", `{"events": []}`},
		{"unknown event type", `{"block": 1, "events": [{"type": "listing", "tx_hash": "0x1"}]}`},
		{"missing tx hash", `{"block": 1, "events": [{"type": "lot_canceled", "lot_id": 1}]}`},
		{"transfer without accounts", `{"block": 1, "events": [{"type": "item_transfer", "tx_hash": "0x1"}]}`},
		{"placement without owner", `{"block": 1, "events": [{"type": "lot_placed", "tx_hash": "0x1", "item_id": 1}]}`},
		{"fill without buyer", `{"block": 1, "events": [{"type": "lot_filled", "tx_hash": "0x1", "lot_id": 1}]}`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ParseBlock("m", []byte(c.payload)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParseBlock_EmptyBlock(t *testing.T) {
	blk, err := ParseBlock("m", []byte(`{"block": 12, "events": []}`))
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}
	if len(blk.Events) != 0 {
		t.Errorf("got %d events, want 0", len(blk.Events))
	}
}

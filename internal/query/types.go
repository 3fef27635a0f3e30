package query

// BalanceResponse is one (item, amount) holding for API queries. The
// item identifier is reported both as integer and canonical hex key.
type BalanceResponse struct {
	ItemID  int64  `json:"item_id"`
	ItemKey string `json:"item_key"`
	Amount  int64  `json:"amount"`
}

// PriceFloorResponse is the minimum asking price for one item across
// lots still accepting fills.
type PriceFloorResponse struct {
	ItemID   int64  `json:"item_id"`
	ItemKey  string `json:"item_key"`
	MinPrice int64  `json:"min_price"`
}

// OpenLotResponse is one lot still accepting fills.
type OpenLotResponse struct {
	LotID     int64  `json:"lot_id"`
	Owner     string `json:"owner"`
	Price     int64  `json:"price"`
	Remaining int64  `json:"remaining_amount"`
}

// DealResponse is one recorded fill against a lot.
type DealResponse struct {
	DealID int64  `json:"deal_id"`
	LotID  int64  `json:"lot_id"`
	Buyer  string `json:"buyer"`
	Amount int64  `json:"amount"`
}

// CheckpointResponse reports a monitor's sync progress.
type CheckpointResponse struct {
	Monitor   string `json:"monitor"`
	LastBlock uint64 `json:"last_block"`
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"MarketLedger/internal/persistence"
)

// LotStatus is the lifecycle state of a market lot. Transitions are
// monotone: fills move ACTIVE through PARTIALLY_FILLED to FILLED, cancel
// moves any non-terminal lot to CANCELED. FILLED and CANCELED are terminal.
type LotStatus string

const (
	LotActive          LotStatus = "ACTIVE"
	LotPartiallyFilled LotStatus = "PARTIALLY_FILLED"
	LotFilled          LotStatus = "FILLED"
	LotCanceled        LotStatus = "CANCELED"
)

// Terminal reports whether the status admits no further transitions.
func (s LotStatus) Terminal() bool {
	return s == LotFilled || s == LotCanceled
}

// Lot is a full market-lot row.
type Lot struct {
	LotID     int64
	Owner     string
	ItemID    int64
	Price     int64
	Remaining int64
	Status    LotStatus
}

// OpenLot is the read-side shape of a lot still accepting fills.
type OpenLot struct {
	LotID     int64
	Owner     string
	Price     int64
	Remaining int64
}

// ItemPrice is the current price floor for one item.
type ItemPrice struct {
	ItemID   int64
	MinPrice int64
}

// OrderBookLedger tracks lots (open sell offers) and deals (fills against
// a lot). Lots are never physically deleted.
type OrderBookLedger struct {
	db *sql.DB
}

func NewOrderBookLedger(db *sql.DB) *OrderBookLedger {
	return &OrderBookLedger{db: db}
}

// PlaceLot inserts a new ACTIVE lot and returns its identifier. Identifiers
// come from the market_lot_ids sequence in the store, so restarts and
// concurrent writers cannot collide.
func (l *OrderBookLedger) PlaceLot(ctx context.Context, q persistence.DBTX, owner string, itemID, price, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("place lot of item %d: %w", itemID, ErrInvalidAmount)
	}

	var lotID int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO market_lots (owner, item, price, remaining_amount, status)
		VALUES ($1, $2, $3, $4, 'ACTIVE')
		RETURNING lot_id
	`, owner, ItemKey(itemID), price, amount).Scan(&lotID)
	if err != nil {
		return 0, fmt.Errorf("place lot for item %d: %w", itemID, err)
	}
	return lotID, nil
}

// FillLot decrements the lot's remaining amount, recomputes its status and
// appends the deal row, all under the caller's transaction. The decrement
// is a single guarded statement: terminal lots and over-fills never match
// the predicate, so the remaining amount cannot go negative under any
// interleaving. A non-matching fill is classified to a typed error.
func (l *OrderBookLedger) FillLot(ctx context.Context, q persistence.DBTX, lotID int64, buyer string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("fill lot %d: %w", lotID, ErrInvalidAmount)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE market_lots
		SET remaining_amount = remaining_amount - $2,
		    status = CASE WHEN remaining_amount - $2 > 0
		             THEN 'PARTIALLY_FILLED' ELSE 'FILLED' END
		WHERE lot_id = $1
		  AND status IN ('ACTIVE', 'PARTIALLY_FILLED')
		  AND remaining_amount >= $2
	`, lotID, amount)
	if err != nil {
		return fmt.Errorf("fill lot %d: %w", lotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fill lot %d: %w", lotID, err)
	}
	if affected == 0 {
		return l.classifyFillFailure(ctx, q, lotID, amount)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO market_deals (lot_id, buyer, amount)
		VALUES ($1, $2, $3)
	`, lotID, buyer, amount)
	if err != nil {
		return fmt.Errorf("record deal for lot %d: %w", lotID, err)
	}
	return nil
}

// classifyFillFailure turns a zero-row fill into the precise rejection.
func (l *OrderBookLedger) classifyFillFailure(ctx context.Context, q persistence.DBTX, lotID, amount int64) error {
	var status LotStatus
	var remaining int64
	err := q.QueryRowContext(ctx,
		`SELECT status, remaining_amount FROM market_lots WHERE lot_id = $1`,
		lotID,
	).Scan(&status, &remaining)
	if err == sql.ErrNoRows {
		return fmt.Errorf("fill lot %d: %w", lotID, ErrUnknownLot)
	}
	if err != nil {
		return fmt.Errorf("fill lot %d: %w", lotID, err)
	}
	if status.Terminal() {
		return fmt.Errorf("fill lot %d (status %s): %w", lotID, status, ErrLotClosed)
	}
	return fmt.Errorf("fill lot %d: %d requested, %d remaining: %w", lotID, amount, remaining, ErrOverFill)
}

// CancelLot zeroes the remaining amount and forces CANCELED. Applying it
// to an already-terminal lot is an idempotent no-op in effect; only a lot
// that was never placed is an error.
func (l *OrderBookLedger) CancelLot(ctx context.Context, q persistence.DBTX, lotID int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE market_lots
		SET remaining_amount = 0, status = 'CANCELED'
		WHERE lot_id = $1
	`, lotID)
	if err != nil {
		return fmt.Errorf("cancel lot %d: %w", lotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel lot %d: %w", lotID, err)
	}
	if affected == 0 {
		return fmt.Errorf("cancel lot %d: %w", lotID, ErrUnknownLot)
	}
	return nil
}

// GetLot returns a lot by identifier, ErrUnknownLot if it was never placed.
func (l *OrderBookLedger) GetLot(ctx context.Context, lotID int64) (*Lot, error) {
	var lot Lot
	var key string
	err := l.db.QueryRowContext(ctx, `
		SELECT lot_id, owner, item, price, remaining_amount, status
		FROM market_lots
		WHERE lot_id = $1
	`, lotID).Scan(&lot.LotID, &lot.Owner, &key, &lot.Price, &lot.Remaining, &lot.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lot %d: %w", lotID, ErrUnknownLot)
	}
	if err != nil {
		return nil, fmt.Errorf("get lot %d: %w", lotID, err)
	}
	if lot.ItemID, err = ParseItemKey(key); err != nil {
		return nil, err
	}
	return &lot, nil
}

// BestPricePerItem returns the minimum price per item across lots that are
// still accepting fills. Canceled and filled lots do not hold a price floor.
func (l *OrderBookLedger) BestPricePerItem(ctx context.Context) ([]ItemPrice, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT item, MIN(price)
		FROM market_lots
		WHERE status IN ('ACTIVE', 'PARTIALLY_FILLED')
		GROUP BY item
	`)
	if err != nil {
		return nil, fmt.Errorf("best price per item: %w", err)
	}
	defer rows.Close()

	var prices []ItemPrice
	for rows.Next() {
		var key string
		var p ItemPrice
		if err := rows.Scan(&key, &p.MinPrice); err != nil {
			return nil, err
		}
		if p.ItemID, err = ParseItemKey(key); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}

	return prices, rows.Err()
}

// OpenLotsForItem returns the ACTIVE and PARTIALLY_FILLED lots for one item.
func (l *OrderBookLedger) OpenLotsForItem(ctx context.Context, itemID int64) ([]OpenLot, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT lot_id, owner, price, remaining_amount
		FROM market_lots
		WHERE item = $1 AND status IN ('ACTIVE', 'PARTIALLY_FILLED')
	`, ItemKey(itemID))
	if err != nil {
		return nil, fmt.Errorf("open lots for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var lots []OpenLot
	for rows.Next() {
		var lot OpenLot
		if err := rows.Scan(&lot.LotID, &lot.Owner, &lot.Price, &lot.Remaining); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}

	return lots, rows.Err()
}

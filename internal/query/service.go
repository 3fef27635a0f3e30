package query

import (
	"context"
	"database/sql"
	"fmt"

	"MarketLedger/internal/ledger"
)

// Service provides read-only access to the ledger relations. It delegates
// to the ledger read paths where they exist and queries the store directly
// for history, so the mutation and read sides never drift apart on shape.
type Service struct {
	db          *sql.DB
	balances    *ledger.BalanceLedger
	market      *ledger.OrderBookLedger
	checkpoints *ledger.CheckpointTracker
}

func NewService(db *sql.DB, balances *ledger.BalanceLedger, market *ledger.OrderBookLedger, checkpoints *ledger.CheckpointTracker) *Service {
	return &Service{
		db:          db,
		balances:    balances,
		market:      market,
		checkpoints: checkpoints,
	}
}

// BalancesForAccount returns an account's strictly-positive holdings.
func (s *Service) BalancesForAccount(ctx context.Context, account string) ([]BalanceResponse, error) {
	balances, err := s.balances.BalancesForAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	out := make([]BalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, BalanceResponse{
			ItemID:  b.ItemID,
			ItemKey: ledger.ItemKey(b.ItemID),
			Amount:  b.Amount,
		})
	}
	return out, nil
}

// BestPricePerItem returns the open-market price floor per item.
func (s *Service) BestPricePerItem(ctx context.Context) ([]PriceFloorResponse, error) {
	prices, err := s.market.BestPricePerItem(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PriceFloorResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, PriceFloorResponse{
			ItemID:   p.ItemID,
			ItemKey:  ledger.ItemKey(p.ItemID),
			MinPrice: p.MinPrice,
		})
	}
	return out, nil
}

// OpenLotsForItem returns the lots still accepting fills for one item.
func (s *Service) OpenLotsForItem(ctx context.Context, itemID int64) ([]OpenLotResponse, error) {
	lots, err := s.market.OpenLotsForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	out := make([]OpenLotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, OpenLotResponse{
			LotID:     l.LotID,
			Owner:     l.Owner,
			Price:     l.Price,
			Remaining: l.Remaining,
		})
	}
	return out, nil
}

// DealsForLot returns the fill history of one lot, oldest first.
func (s *Service) DealsForLot(ctx context.Context, lotID int64) ([]DealResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT deal_id, lot_id, buyer, amount
		FROM market_deals
		WHERE lot_id = $1
		ORDER BY deal_id
	`, lotID)
	if err != nil {
		return nil, fmt.Errorf("deals for lot %d: %w", lotID, err)
	}
	defer rows.Close()

	var deals []DealResponse
	for rows.Next() {
		var d DealResponse
		if err := rows.Scan(&d.DealID, &d.LotID, &d.Buyer, &d.Amount); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// Checkpoint returns a monitor's last fully-applied block, 0 when the
// monitor never synced.
func (s *Service) Checkpoint(ctx context.Context, monitor string) (*CheckpointResponse, error) {
	block, err := s.checkpoints.CurrentBlock(ctx, monitor)
	if err != nil {
		return nil, err
	}
	return &CheckpointResponse{Monitor: monitor, LastBlock: block}, nil
}

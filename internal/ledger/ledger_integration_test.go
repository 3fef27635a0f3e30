package ledger_test

import (
	"context"
	"errors"
	"testing"

	"MarketLedger/internal/ledger"
	"MarketLedger/internal/testutil"
)

// ============================================================================
// Balance Ledger
// ============================================================================

func TestBalanceLedger_CreditDebitSum(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	balances := ledger.NewBalanceLedger(db)

	// Balance must equal the arithmetic sum of credits minus debits.
	steps := []struct {
		credit bool
		amount int64
	}{
		{true, 10}, {true, 5}, {false, 3}, {true, 1}, {false, 6},
	}
	var want int64
	for _, s := range steps {
		var err error
		if s.credit {
			err = balances.Credit(ctx, db, 1, "0xAA", s.amount)
			want += s.amount
		} else {
			err = balances.Debit(ctx, db, 1, "0xAA", s.amount)
			want -= s.amount
		}
		if err != nil {
			t.Fatalf("step %+v: %v", s, err)
		}
	}

	got := balanceOf(t, balances, "0xAA", 1)
	if got != want {
		t.Errorf("balance = %d, want %d", got, want)
	}
}

func TestBalanceLedger_DebitRejectsOverdraft(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	balances := ledger.NewBalanceLedger(db)

	if err := balances.Credit(ctx, db, 1, "0xAA", 5); err != nil {
		t.Fatal(err)
	}

	err := balances.Debit(ctx, db, 1, "0xAA", 6)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("overdraft: got %v, want ErrInsufficientBalance", err)
	}

	// An account that never held the item is the same rejection.
	err = balances.Debit(ctx, db, 1, "0xBB", 1)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("missing row: got %v, want ErrInsufficientBalance", err)
	}

	// The failed debits must not have moved the balance.
	if got := balanceOf(t, balances, "0xAA", 1); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestBalanceLedger_RejectsNonPositiveAmounts(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	balances := ledger.NewBalanceLedger(db)

	if err := balances.Credit(ctx, db, 1, "0xAA", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero credit: got %v", err)
	}
	if err := balances.Debit(ctx, db, 1, "0xAA", -3); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("negative debit: got %v", err)
	}
}

func TestBalanceLedger_TransferEqualsDebitThenCredit(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	balances := ledger.NewBalanceLedger(db)

	// Two identical starting positions, one moved by TransferItem, the
	// other by explicit debit+credit. End states must match.
	if err := balances.Credit(ctx, db, 1, "0xA1", 10); err != nil {
		t.Fatal(err)
	}
	if err := balances.Credit(ctx, db, 1, "0xA2", 10); err != nil {
		t.Fatal(err)
	}

	if err := balances.TransferItem(ctx, db, "0xB1", "0xA1", 1, 4); err != nil {
		t.Fatal(err)
	}
	if err := balances.Debit(ctx, db, 1, "0xA2", 4); err != nil {
		t.Fatal(err)
	}
	if err := balances.Credit(ctx, db, 1, "0xB2", 4); err != nil {
		t.Fatal(err)
	}

	if a1, a2 := balanceOf(t, balances, "0xA1", 1), balanceOf(t, balances, "0xA2", 1); a1 != a2 {
		t.Errorf("senders diverged: %d vs %d", a1, a2)
	}
	if b1, b2 := balanceOf(t, balances, "0xB1", 1), balanceOf(t, balances, "0xB2", 1); b1 != b2 || b1 != 4 {
		t.Errorf("receivers diverged: %d vs %d, want 4", b1, b2)
	}
}

func TestBalanceLedger_MintAndBurn(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	balances := ledger.NewBalanceLedger(db)

	// Mint: transfer from the null address touches no source balance.
	if err := balances.TransferItem(ctx, db, "0xAA", ledger.NullAddress, 1, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := balanceOf(t, balances, "0xAA", 1); got != 10 {
		t.Errorf("after mint: %d, want 10", got)
	}

	// Burn: transfer to the null address only debits.
	if err := balances.TransferItem(ctx, db, ledger.NullAddress, "0xAA", 1, 3); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := balanceOf(t, balances, "0xAA", 1); got != 7 {
		t.Errorf("after burn: %d, want 7", got)
	}

	// A padded null address counts as null too.
	if err := balances.TransferItem(ctx, db, "0x0000000000000000000000000000000000000000", "0xAA", 1, 7); err != nil {
		t.Fatalf("burn with padded null: %v", err)
	}

	// Zero-quantity tombstones are filtered from reads.
	rows, err := balances.BalancesForAccount(ctx, "0xAA")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("tombstone leaked into reads: %v", rows)
	}
}

// ============================================================================
// Order Book Ledger
// ============================================================================

func TestOrderBook_FillLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	market := ledger.NewOrderBookLedger(db)

	lotID, err := market.PlaceLot(ctx, db, "0xAA", 1, 100, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := market.FillLot(ctx, db, lotID, "0xBB", 4); err != nil {
		t.Fatalf("partial fill: %v", err)
	}
	lot := mustGetLot(t, market, lotID)
	if lot.Remaining != 6 || lot.Status != ledger.LotPartiallyFilled {
		t.Errorf("after partial fill: remaining=%d status=%s", lot.Remaining, lot.Status)
	}

	if err := market.FillLot(ctx, db, lotID, "0xCC", 6); err != nil {
		t.Fatalf("final fill: %v", err)
	}
	lot = mustGetLot(t, market, lotID)
	if lot.Remaining != 0 || lot.Status != ledger.LotFilled {
		t.Errorf("after final fill: remaining=%d status=%s", lot.Remaining, lot.Status)
	}
}

func TestOrderBook_FillRejections(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	market := ledger.NewOrderBookLedger(db)

	lotID, err := market.PlaceLot(ctx, db, "0xAA", 1, 100, 10)
	if err != nil {
		t.Fatal(err)
	}

	// Over-fill leaves the lot untouched.
	if err := market.FillLot(ctx, db, lotID, "0xBB", 11); !errors.Is(err, ledger.ErrOverFill) {
		t.Errorf("over-fill: got %v, want ErrOverFill", err)
	}
	if lot := mustGetLot(t, market, lotID); lot.Remaining != 10 || lot.Status != ledger.LotActive {
		t.Errorf("lot mutated by rejected fill: %+v", lot)
	}

	// Terminal lots reject further fills.
	if err := market.FillLot(ctx, db, lotID, "0xBB", 10); err != nil {
		t.Fatal(err)
	}
	if err := market.FillLot(ctx, db, lotID, "0xCC", 1); !errors.Is(err, ledger.ErrLotClosed) {
		t.Errorf("fill on FILLED lot: got %v, want ErrLotClosed", err)
	}

	// Fills against lots that were never placed surface an error.
	if err := market.FillLot(ctx, db, 999999, "0xBB", 1); !errors.Is(err, ledger.ErrUnknownLot) {
		t.Errorf("unknown lot: got %v, want ErrUnknownLot", err)
	}
}

func TestOrderBook_CancelIsIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	market := ledger.NewOrderBookLedger(db)

	first, err := market.PlaceLot(ctx, db, "0xAA", 1, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := market.PlaceLot(ctx, db, "0xAA", 2, 50, 5)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("lot ids must be distinct, both %d", first)
	}

	if err := market.CancelLot(ctx, db, first); err != nil {
		t.Fatal(err)
	}
	lot := mustGetLot(t, market, first)
	if lot.Remaining != 0 || lot.Status != ledger.LotCanceled {
		t.Errorf("after cancel: %+v", lot)
	}

	// Cancel again: same end state, no error.
	if err := market.CancelLot(ctx, db, first); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	lot = mustGetLot(t, market, first)
	if lot.Remaining != 0 || lot.Status != ledger.LotCanceled {
		t.Errorf("after double cancel: %+v", lot)
	}

	// The other lot is unaffected.
	other := mustGetLot(t, market, second)
	if other.Remaining != 5 || other.Status != ledger.LotActive {
		t.Errorf("unrelated lot mutated: %+v", other)
	}

	// Canceling a lot that was never placed is an error, not a no-op.
	if err := market.CancelLot(ctx, db, 999999); !errors.Is(err, ledger.ErrUnknownLot) {
		t.Errorf("cancel unknown: got %v, want ErrUnknownLot", err)
	}
}

func TestOrderBook_ReadsFilterTerminalLots(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	market := ledger.NewOrderBookLedger(db)

	cheap, err := market.PlaceLot(ctx, db, "0xAA", 1, 50, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := market.PlaceLot(ctx, db, "0xBB", 1, 100, 10); err != nil {
		t.Fatal(err)
	}

	// Cancel the cheapest lot: it must vanish from the price floor.
	if err := market.CancelLot(ctx, db, cheap); err != nil {
		t.Fatal(err)
	}

	prices, err := market.BestPricePerItem(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(prices) != 1 || prices[0].ItemID != 1 || prices[0].MinPrice != 100 {
		t.Errorf("price floor = %+v, want item 1 at 100", prices)
	}

	lots, err := market.OpenLotsForItem(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lots {
		if l.LotID == cheap {
			t.Error("canceled lot returned as open")
		}
	}
	if len(lots) != 1 {
		t.Errorf("open lots = %+v, want exactly one", lots)
	}
}

// ============================================================================
// Checkpoint Tracker
// ============================================================================

func TestCheckpointTracker_AdvanceAndRead(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	checkpoints := ledger.NewCheckpointTracker(db)

	// A monitor that never synced reports 0.
	block, err := checkpoints.CurrentBlock(ctx, "fresh-monitor")
	if err != nil {
		t.Fatal(err)
	}
	if block != 0 {
		t.Errorf("fresh monitor at block %d, want 0", block)
	}

	for want := uint64(1); want <= 3; want++ {
		got, err := checkpoints.Advance(ctx, db, "item-market")
		if err != nil {
			t.Fatalf("advance to %d: %v", want, err)
		}
		if got != want {
			t.Errorf("advance returned %d, want %d", got, want)
		}
	}

	block, err = checkpoints.CurrentBlock(ctx, "item-market")
	if err != nil {
		t.Fatal(err)
	}
	if block != 3 {
		t.Errorf("checkpoint = %d, want 3", block)
	}

	// Monitors keep disjoint rows.
	block, err = checkpoints.CurrentBlock(ctx, "other-monitor")
	if err != nil {
		t.Fatal(err)
	}
	if block != 0 {
		t.Errorf("other monitor at %d, want 0", block)
	}
}

// --- helpers ---

func balanceOf(t *testing.T, balances *ledger.BalanceLedger, account string, itemID int64) int64 {
	t.Helper()
	rows, err := balances.BalancesForAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("balances for %s: %v", account, err)
	}
	for _, b := range rows {
		if b.ItemID == itemID {
			return b.Amount
		}
	}
	return 0
}

func mustGetLot(t *testing.T, market *ledger.OrderBookLedger, lotID int64) *ledger.Lot {
	t.Helper()
	lot, err := market.GetLot(context.Background(), lotID)
	if err != nil {
		t.Fatalf("get lot %d: %v", lotID, err)
	}
	return lot
}

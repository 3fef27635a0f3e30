package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"MarketLedger/internal/persistence"
)

// ItemBalance is one (item, amount) entry of an account's holdings.
type ItemBalance struct {
	ItemID int64
	Amount int64
}

// BalanceLedger tracks per-(account, item) quantities. Rows are created on
// first credit and never deleted: a zero balance persists as a tombstone.
// Mutations take the caller's transaction; reads go straight to the pool.
type BalanceLedger struct {
	db *sql.DB
}

func NewBalanceLedger(db *sql.DB) *BalanceLedger {
	return &BalanceLedger{db: db}
}

// Credit adds amount to the (account, item) balance, creating the row if
// absent. The upsert is a single statement, so concurrent credits and
// debits to the same key cannot interleave between read and write.
func (l *BalanceLedger) Credit(ctx context.Context, q persistence.DBTX, itemID int64, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d of item %d: %w", amount, itemID, ErrInvalidAmount)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO account_item_balances (account, item, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account, item)
		DO UPDATE SET amount = account_item_balances.amount + EXCLUDED.amount
	`, account, ItemKey(itemID), amount)
	if err != nil {
		return fmt.Errorf("credit %s item %d: %w", account, itemID, err)
	}
	return nil
}

// Debit subtracts amount from the (account, item) balance. A debit that
// would take the balance negative is rejected with ErrInsufficientBalance;
// the guard is part of the UPDATE predicate, so it holds under concurrency.
func (l *BalanceLedger) Debit(ctx context.Context, q persistence.DBTX, itemID int64, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d of item %d: %w", amount, itemID, ErrInvalidAmount)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE account_item_balances
		SET amount = amount - $3
		WHERE account = $1 AND item = $2 AND amount >= $3
	`, account, ItemKey(itemID), amount)
	if err != nil {
		return fmt.Errorf("debit %s item %d: %w", account, itemID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit %s item %d: %w", account, itemID, err)
	}
	if affected == 0 {
		// Missing row and short balance collapse to the same verdict:
		// the account does not hold enough of the item.
		return fmt.Errorf("debit %d of item %d from %s: %w", amount, itemID, account, ErrInsufficientBalance)
	}
	return nil
}

// TransferItem debits from and credits to, skipping whichever side is the
// null address. A mint is a transfer from the null address, a burn a
// transfer to it.
func (l *BalanceLedger) TransferItem(ctx context.Context, q persistence.DBTX, to, from string, itemID, amount int64) error {
	if !IsNullAddress(from) {
		if err := l.Debit(ctx, q, itemID, from, amount); err != nil {
			return err
		}
	}
	if !IsNullAddress(to) {
		if err := l.Credit(ctx, q, itemID, to, amount); err != nil {
			return err
		}
	}
	return nil
}

// BalancesForAccount returns the account's strictly-positive balances,
// unordered. Zero-balance tombstones are filtered out.
func (l *BalanceLedger) BalancesForAccount(ctx context.Context, account string) ([]ItemBalance, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT item, amount
		FROM account_item_balances
		WHERE account = $1 AND amount > 0
	`, account)
	if err != nil {
		return nil, fmt.Errorf("balances for %s: %w", account, err)
	}
	defer rows.Close()

	var balances []ItemBalance
	for rows.Next() {
		var key string
		var b ItemBalance
		if err := rows.Scan(&key, &b.Amount); err != nil {
			return nil, err
		}
		if b.ItemID, err = ParseItemKey(key); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

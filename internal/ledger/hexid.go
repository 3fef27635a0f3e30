package ledger

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// NullAddress is the sentinel account representing "outside the ledger".
// Transfers from it are mints, transfers to it are burns.
const NullAddress = "0x0"

// ItemKey converts an item identifier to its canonical hexadecimal
// string form, which is how items are stored in every relation.
func ItemKey(itemID int64) string {
	return "0x" + strconv.FormatInt(itemID, 16)
}

// ParseItemKey converts a stored item key back to its integer identifier.
func ParseItemKey(key string) (int64, error) {
	s := strings.TrimPrefix(strings.ToLower(key), "0x")
	id, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse item key %q: %w", key, err)
	}
	return id, nil
}

// IsNullAddress reports whether addr is the null/zero address. The check
// parses the hex value, so padded forms like 0x0000 also count as null.
// Unparseable addresses are never null.
func IsNullAddress(addr string) bool {
	s := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if s == "" {
		return false
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return false
	}
	return v.Sign() == 0
}

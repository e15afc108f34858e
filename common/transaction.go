package common

import (
	"github.com/shopspring/decimal"
)

// Transaction is one transfer observed on the custodial wallet, reduced to
// the fields matching cares about. It is never persisted; the deal record
// keeps only the winning hash.
type Transaction struct {
	Hash string
	From string
	To   string

	// Amount is in the asset's major unit after scale normalization.
	// HasAmount distinguishes a missing amount from a zero one.
	Amount    decimal.Decimal
	HasAmount bool

	Memo      string
	Timestamp int64

	// Raw keeps the provider record for diagnostics only.
	Raw map[string]interface{}
}

package watcher

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rqzrqh/settle_ton/common"
	"github.com/rqzrqh/settle_ton/model"
)

// DefaultScaleDivisors are tried when a raw amount may still be in a
// minor unit the normalizer's threshold did not catch.
var DefaultScaleDivisors = []int64{1000000000, 1000000, 1000}

// Match picks at most one transaction able to settle the deal. Three
// tiers, scanned in order, first hit wins:
//
//  1. the memo contains the deal id, amount and time ignored
//  2. the amount covers the deal and the transfer is not older than the
//     deal, transactions without a timestamp do not qualify
//  3. the amount covers the deal, time ignored
//
// A transfer covering more than the deal's amount still matches, and an
// unrelated transfer of a matching size can settle a deal. That is the
// cost of identifying payments on a shared custodial wallet, the memo
// tier exists so buyers can avoid it.
func Match(deal *model.Deal, txs []common.Transaction, divisors []int64) *common.Transaction {
	for i := range txs {
		if txs[i].Memo != "" && strings.Contains(txs[i].Memo, deal.ID) {
			return &txs[i]
		}
	}

	// a deal without a creation time accepts transfers of any age
	createdFloor := int64(0)
	if !deal.CreatedAt.IsZero() {
		createdFloor = deal.CreatedAt.Unix()
	}

	for i := range txs {
		if !txs[i].HasAmount || txs[i].Timestamp == 0 {
			continue
		}
		if txs[i].Timestamp >= createdFloor && amountSatisfies(txs[i].Amount, deal.Amount, divisors) {
			return &txs[i]
		}
	}

	for i := range txs {
		if txs[i].HasAmount && amountSatisfies(txs[i].Amount, deal.Amount, divisors) {
			return &txs[i]
		}
	}

	return nil
}

// amountSatisfies reports whether txAmount covers want, either directly
// or after dividing by one of the configured minor unit divisors.
func amountSatisfies(txAmount, want decimal.Decimal, divisors []int64) bool {
	if txAmount.Cmp(want) >= 0 {
		return true
	}

	for _, div := range divisors {
		if div <= 0 {
			continue
		}
		if txAmount.Div(decimal.NewFromInt(div)).Cmp(want) >= 0 {
			return true
		}
	}

	return false
}

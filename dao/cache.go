package dao

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/rqzrqh/settle_ton/model"
)

const (
	CacheTimeout time.Duration = 3600 * time.Second
)

// DealDigest is the read model the trading surface serves instead of
// querying mysql. The database stays the source of truth, digests expire.
type DealDigest struct {
	ID          string          `json:"id"`
	CreatorID   int64           `json:"creator_id"`
	BuyerID     int64           `json:"buyer_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Asset       string          `json:"asset"`
	Wallet      string          `json:"wallet"`
	Memo        string          `json:"memo"`
	Status      string          `json:"status"`
	PaidTx      string          `json:"paid_tx,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	CompletedAt int64           `json:"completed_at,omitempty"`
}

// DealEvent goes out on the deal_notify channel whenever a deal is
// written, subscribers refresh from the digest keys.
type DealEvent struct {
	DealID    string          `json:"deal_id"`
	CreatorID int64           `json:"creator_id"`
	BuyerID   int64           `json:"buyer_id,omitempty"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	PaidTx    string          `json:"paid_tx,omitempty"`
}

var dealDigestKey = "deal_digest"
var userDealsKey = "user_deals"
var userBalanceKey = "user_balance"

var dealNotify = "deal_notify"

func BuildDealDigestKey(dealID string) string {
	return dealDigestKey + "_" + dealID
}

func BuildUserDealsKey(userID int64) string {
	return userDealsKey + "_" + strconv.FormatInt(userID, 10)
}

func BuildUserBalanceKey(userID int64) string {
	return userBalanceKey + "_" + strconv.FormatInt(userID, 10)
}

func BuildDealNotifyKey() string {
	return dealNotify
}

func NewDealDigest(deal *model.Deal) *DealDigest {
	digest := DealDigest{
		ID:        deal.ID,
		CreatorID: deal.CreatorID,
		BuyerID:   deal.BuyerID,
		Amount:    deal.Amount,
		Asset:     deal.Asset,
		Wallet:    deal.Wallet,
		Memo:      deal.Memo,
		Status:    string(deal.Status),
		PaidTx:    deal.PaidTx,
		CreatedAt: deal.CreatedAt.Unix(),
	}
	if deal.CompletedAt != nil {
		digest.CompletedAt = deal.CompletedAt.Unix()
	}

	return &digest
}

// SyncDealCache mirrors a deal and the affected balances into redis and
// publishes the change. All writes go through one pipeline. Failures only
// warn, the database already holds the truth.
func SyncDealCache(ctx context.Context, rds *redis.Client, deal *model.Deal, balances map[int64]decimal.Decimal) {
	pipe := rds.TxPipeline()
	defer pipe.Close()

	{
		digest := NewDealDigest(deal)
		value, _ := json.Marshal(digest)
		pipe.Set(ctx, BuildDealDigestKey(deal.ID), string(value), CacheTimeout)
	}

	pipe.SAdd(ctx, BuildUserDealsKey(deal.CreatorID), deal.ID)
	if deal.BuyerID != 0 {
		pipe.SAdd(ctx, BuildUserDealsKey(deal.BuyerID), deal.ID)
	}

	for userID, balance := range balances {
		pipe.Set(ctx, BuildUserBalanceKey(userID), balance.String(), 0)
	}

	{
		event := DealEvent{
			DealID:    deal.ID,
			CreatorID: deal.CreatorID,
			BuyerID:   deal.BuyerID,
			Status:    string(deal.Status),
			Amount:    deal.Amount,
			PaidTx:    deal.PaidTx,
		}
		value, _ := json.Marshal(&event)
		pipe.Publish(ctx, BuildDealNotifyKey(), string(value))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		pipe.Discard()
		log.Warnf("write deal cache failed:%v", err)
	}
}

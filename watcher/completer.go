package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.opencensus.io/stats"
	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/common"
	"github.com/rqzrqh/settle_ton/dao"
	"github.com/rqzrqh/settle_ton/model"
	"github.com/rqzrqh/settle_ton/notify"
)

// Completer applies the terminal effects of a matched transfer exactly
// once: the status change and the seller's credit in one database
// transaction, then cache refresh and notification as best effort.
type Completer struct {
	db       *gorm.DB
	rds      *redis.Client
	notifier notify.Notifier
}

func NewCompleter(db *gorm.DB, rds *redis.Client, notifier notify.Notifier) *Completer {
	return &Completer{
		db:       db,
		rds:      rds,
		notifier: notifier,
	}
}

// Complete settles deal with tx. Losing the status race to a manual
// action or an earlier cycle is a normal outcome reported as (false, nil).
func (c *Completer) Complete(ctx context.Context, deal *model.Deal, tx *common.Transaction) (bool, error) {
	completed, err := dao.CompleteDealWithTransfer(c.db, deal.ID, tx.Hash)
	if err != nil {
		if errors.Is(err, dao.ErrNotTransitionable) {
			log.Debugf("deal %v already settled elsewhere", deal.ShortID())
			return false, nil
		}
		return false, err
	}

	stats.Record(ctx, metricCompletions.M(1))
	log.Infow("deal completed", "deal", completed.ShortID(), "tx", tx.Hash, "amount", completed.Amount, "seller", completed.CreatorID)

	c.syncCache(ctx, completed)
	c.notifySeller(ctx, completed, tx)

	return true, nil
}

func (c *Completer) syncCache(ctx context.Context, deal *model.Deal) {
	if c.rds == nil {
		return
	}

	balances := make(map[int64]decimal.Decimal)
	if balance, err := dao.GetUserBalance(c.db, deal.CreatorID); err == nil {
		balances[deal.CreatorID] = balance
	}

	dao.SyncDealCache(ctx, c.rds, deal, balances)
}

func (c *Completer) notifySeller(ctx context.Context, deal *model.Deal, tx *common.Transaction) {
	if c.notifier == nil {
		return
	}

	text := fmt.Sprintf("Deal %v: incoming transfer detected (tx: %v). Deal closed automatically. Balance credited %v %v.",
		deal.ShortID(), tx.Hash, deal.Amount, deal.Asset)
	if err := c.notifier.Notify(ctx, deal.CreatorID, text); err != nil {
		log.Warnf("notify seller %v failed:%v", deal.CreatorID, err)
	}
}

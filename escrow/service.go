package escrow

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/dao"
	"github.com/rqzrqh/settle_ton/model"
	"github.com/rqzrqh/settle_ton/notify"
)

var log = logging.Logger("escrow")

var (
	ErrNotCreator    = xerrors.New("only the deal creator may do this")
	ErrInvalidAmount = xerrors.New("amount must be positive")
)

// Service owns the manual deal lifecycle, everything the trading surface
// does to a deal besides the watcher's automatic settlement. All status
// changes go through the same conditional update the watcher uses, so a
// manual action can never overwrite a settlement that already happened.
type Service struct {
	db       *gorm.DB
	rds      *redis.Client
	notifier notify.Notifier
	wallet   string
	asset    string
	now      func() time.Time
}

func NewService(db *gorm.DB, rds *redis.Client, notifier notify.Notifier, wallet string) *Service {
	return &Service{
		db:       db,
		rds:      rds,
		notifier: notifier,
		wallet:   wallet,
		asset:    model.DefaultAsset,
		now:      time.Now,
	}
}

// NewDealID returns the 32 hex chars buyers are asked to put into the
// transfer memo. The id doubles as the memo, matching scans for it
// verbatim.
func NewDealID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func (s *Service) Create(ctx context.Context, creatorID int64, description string, amount decimal.Decimal) (*model.Deal, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	id := NewDealID()
	deal := &model.Deal{
		ID:          id,
		CreatorID:   creatorID,
		Amount:      amount,
		Asset:       s.asset,
		Wallet:      s.wallet,
		Description: description,
		Memo:        id,
		Status:      model.DealStatusOpen,
		CreatedAt:   s.now().UTC(),
	}

	if err := dao.CreateDeal(s.db, deal); err != nil {
		return nil, err
	}

	log.Infow("deal created", "deal", deal.ShortID(), "creator", creatorID, "amount", amount)
	s.syncCache(ctx, deal, creatorID)

	return deal, nil
}

// MarkPaid records the buyer's claim that the transfer was sent. The
// watcher still does the authoritative settlement, this only moves the
// deal to paid_pending and pins the buyer to it.
func (s *Service) MarkPaid(ctx context.Context, dealID string, buyerID int64) (*model.Deal, error) {
	if _, err := dao.GetDeal(s.db, dealID); err != nil {
		return nil, err
	}

	if err := dao.EnsureUser(s.db, buyerID); err != nil {
		return nil, err
	}

	ok, err := dao.TryTransition(s.db, dealID, []model.DealStatus{model.DealStatusOpen}, model.DealStatusPaidPending, map[string]interface{}{
		"buyer_id": buyerID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dao.ErrNotTransitionable
	}

	deal, err := dao.GetDeal(s.db, dealID)
	if err != nil {
		return nil, err
	}

	log.Infow("deal marked paid", "deal", deal.ShortID(), "buyer", buyerID)
	s.syncCache(ctx, deal, deal.CreatorID, buyerID)
	s.notifyUser(ctx, deal.CreatorID, fmt.Sprintf("Deal %v: buyer marked the deal as paid. Waiting for the incoming transfer.", deal.ShortID()))

	return deal, nil
}

// PayFromBalance settles the deal from the buyer's internal balance
// instead of an on-chain transfer.
func (s *Service) PayFromBalance(ctx context.Context, dealID string, buyerID int64) (*model.Deal, error) {
	if _, err := dao.GetDeal(s.db, dealID); err != nil {
		return nil, err
	}

	if err := dao.EnsureUser(s.db, buyerID); err != nil {
		return nil, err
	}

	deal, err := dao.CompleteDealFromBalance(s.db, dealID, buyerID)
	if err != nil {
		return nil, err
	}

	log.Infow("deal paid from balance", "deal", deal.ShortID(), "buyer", buyerID, "amount", deal.Amount)
	s.syncCache(ctx, deal, deal.CreatorID, buyerID)

	return deal, nil
}

// Confirm lets the creator close the deal by hand, keeping whatever
// paid_tx and buyer the deal already carries. No balance moves, the
// creator is attesting the payment arrived some other way.
func (s *Service) Confirm(ctx context.Context, dealID string, actorID int64) (*model.Deal, error) {
	deal, err := dao.GetDeal(s.db, dealID)
	if err != nil {
		return nil, err
	}
	if deal.CreatorID != actorID {
		return nil, ErrNotCreator
	}

	ok, err := dao.TryTransition(s.db, dealID, model.CandidateStatuses, model.DealStatusCompleted, map[string]interface{}{
		"asset_received":  true,
		"seller_received": true,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dao.ErrNotTransitionable
	}

	deal, err = dao.GetDeal(s.db, dealID)
	if err != nil {
		return nil, err
	}

	log.Infow("deal confirmed", "deal", deal.ShortID(), "creator", actorID)
	s.syncCache(ctx, deal, deal.CreatorID, deal.BuyerID)

	return deal, nil
}

func (s *Service) Cancel(ctx context.Context, dealID string, actorID int64) (*model.Deal, error) {
	deal, err := dao.GetDeal(s.db, dealID)
	if err != nil {
		return nil, err
	}
	if deal.CreatorID != actorID {
		return nil, ErrNotCreator
	}

	ok, err := dao.TryTransition(s.db, dealID, model.CandidateStatuses, model.DealStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dao.ErrNotTransitionable
	}

	deal, err = dao.GetDeal(s.db, dealID)
	if err != nil {
		return nil, err
	}

	log.Infow("deal cancelled", "deal", deal.ShortID(), "creator", actorID)
	s.syncCache(ctx, deal, deal.CreatorID, deal.BuyerID)

	return deal, nil
}

func (s *Service) Get(dealID string) (*model.Deal, error) {
	return dao.GetDeal(s.db, dealID)
}

func (s *Service) DealsOf(userID int64) ([]model.Deal, error) {
	return dao.ListUserDeals(s.db, userID)
}

func (s *Service) Balance(userID int64) (decimal.Decimal, error) {
	return dao.GetUserBalance(s.db, userID)
}

func (s *Service) syncCache(ctx context.Context, deal *model.Deal, userIDs ...int64) {
	if s.rds == nil {
		return
	}

	balances := make(map[int64]decimal.Decimal)
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		if balance, err := dao.GetUserBalance(s.db, userID); err == nil {
			balances[userID] = balance
		}
	}

	dao.SyncDealCache(ctx, s.rds, deal, balances)
}

func (s *Service) notifyUser(ctx context.Context, userID int64, text string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		log.Warnf("notify user %v failed:%v", userID, err)
	}
}

package dao

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/model"
)

func CreateDeal(db *gorm.DB, deal *model.Deal) error {
	if err := EnsureUser(db, deal.CreatorID); err != nil {
		return err
	}

	if err := db.Create(deal).Error; err != nil {
		log.Errorf("CreateDeal failed:%v", err)
		return err
	}

	return nil
}

func GetDeal(db *gorm.DB, id string) (*model.Deal, error) {
	var deal model.Deal
	result := db.Where("id = ?", id).Take(&deal)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		log.Errorf("GetDeal failed:%v", result.Error)
		return nil, result.Error
	}

	return &deal, nil
}

// ListCandidateDeals returns the deals the watcher may still settle,
// oldest first so long-waiting deals get first pick of a transfer.
func ListCandidateDeals(db *gorm.DB) ([]model.Deal, error) {
	var deals []model.Deal
	if err := db.Where("status IN ?", model.CandidateStatuses).Order("created_at ASC").Find(&deals).Error; err != nil {
		log.Errorf("ListCandidateDeals failed:%v", err)
		return nil, err
	}

	return deals, nil
}

func ListUserDeals(db *gorm.DB, userID int64) ([]model.Deal, error) {
	var deals []model.Deal
	if err := db.Where("creator_id = ?", userID).Order("created_at DESC").Find(&deals).Error; err != nil {
		log.Errorf("ListUserDeals failed:%v", err)
		return nil, err
	}

	return deals, nil
}

// TryTransition is the conditional update every status change goes
// through. The row is touched only while its status is still one of from,
// so concurrent writers cannot both win and a terminal deal stays as it
// is. Reports false when zero rows moved.
func TryTransition(db *gorm.DB, id string, from []model.DealStatus, to model.DealStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	if to == model.DealStatusCompleted {
		updates["completed_at"] = time.Now().UTC()
	}

	result := db.Model(&model.Deal{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
	if result.Error != nil {
		log.Errorf("TryTransition failed:%v", result.Error)
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// CompleteDealWithTransfer settles a deal against an observed transfer.
// The status change and the seller's credit commit or roll back together,
// a deal can never end up completed without the credit or the other way
// round.
func CompleteDealWithTransfer(db *gorm.DB, id string, txHash string) (*model.Deal, error) {
	var deal *model.Deal

	err := db.Transaction(func(tx *gorm.DB) error {
		ok, err := TryTransition(tx, id, model.CandidateStatuses, model.DealStatusCompleted, map[string]interface{}{
			"paid_tx":         txHash,
			"asset_received":  true,
			"seller_received": true,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotTransitionable
		}

		d, err := GetDeal(tx, id)
		if err != nil {
			return err
		}

		if err := CreditBalance(tx, d.CreatorID, d.Amount); err != nil {
			return err
		}

		deal = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deal, nil
}

// CompleteDealFromBalance settles a deal by moving its amount from the
// buyer's balance to the seller's. Debit, status change and credit are one
// transaction, an insufficient balance leaves everything untouched.
func CompleteDealFromBalance(db *gorm.DB, id string, buyerID int64) (*model.Deal, error) {
	var deal *model.Deal

	err := db.Transaction(func(tx *gorm.DB) error {
		d, err := GetDeal(tx, id)
		if err != nil {
			return err
		}

		ok, err := DebitBalance(tx, buyerID, d.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}

		ok, err = TryTransition(tx, id, model.CandidateStatuses, model.DealStatusCompleted, map[string]interface{}{
			"paid_tx":         model.PaidTxInternalBalance,
			"buyer_id":        buyerID,
			"asset_received":  true,
			"seller_received": true,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotTransitionable
		}

		if err := CreditBalance(tx, d.CreatorID, d.Amount); err != nil {
			return err
		}

		d2, err := GetDeal(tx, id)
		if err != nil {
			return err
		}

		deal = d2
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deal, nil
}

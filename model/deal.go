package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DealStatus string

const (
	DealStatusOpen        DealStatus = "open"
	DealStatusPaidPending DealStatus = "paid_pending"
	DealStatusCompleted   DealStatus = "completed"
	DealStatusCancelled   DealStatus = "cancelled"
)

// Terminal statuses never change again.
func (s DealStatus) Terminal() bool {
	return s == DealStatusCompleted || s == DealStatusCancelled
}

// CandidateStatuses are the statuses the watcher still tries to settle.
var CandidateStatuses = []DealStatus{DealStatusOpen, DealStatusPaidPending}

const DefaultAsset = "TON"

// PaidTxInternalBalance marks a deal settled from the buyer's internal
// balance instead of an on-chain transfer.
const PaidTxInternalBalance = "internal_balance"

type Deal struct {
	// ID doubles as the transfer memo buyers are asked to attach.
	ID          string          `gorm:"primaryKey;type:varchar(64)"`
	CreatorID   int64           `gorm:"index;column:creator_id"`
	BuyerID     int64           `gorm:"column:buyer_id"`
	Amount      decimal.Decimal `gorm:"type:DECIMAL(27,9)"`
	Asset       string          `gorm:"type:varchar(16)"`
	Wallet      string          `gorm:"type:varchar(128)"`
	Description string          `gorm:"type:text"`
	Memo        string          `gorm:"type:varchar(64)"`
	Status      DealStatus      `gorm:"index;type:varchar(16)"`

	// PaidTx is the settling transfer's hash, or PaidTxInternalBalance.
	PaidTx         string `gorm:"column:paid_tx;type:varchar(128)"`
	AssetReceived  bool   `gorm:"column:asset_received"`
	SellerReceived bool   `gorm:"column:seller_received"`

	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (Deal) TableName() string {
	return "deals"
}

// ShortID is the prefix shown to users in messages and listings.
func (d *Deal) ShortID() string {
	if len(d.ID) > 8 {
		return d.ID[:8]
	}
	return d.ID
}

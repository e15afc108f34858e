package model

import (
	"github.com/shopspring/decimal"
)

// User holds the internal balance credited on completed deals. Rows are
// created lazily, the first balance operation ensures one exists.
type User struct {
	UserID  int64           `gorm:"primaryKey;autoIncrement:false;column:user_id"`
	Balance decimal.Decimal `gorm:"type:DECIMAL(27,9)"`
}

func (User) TableName() string {
	return "users"
}

package dao

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rqzrqh/settle_ton/model"
)

// EnsureUser creates the balance row if it does not exist yet.
func EnsureUser(db *gorm.DB, userID int64) error {
	user := model.User{
		UserID:  userID,
		Balance: decimal.Zero,
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		log.Errorf("EnsureUser failed:%v", err)
		return err
	}

	return nil
}

func GetUserBalance(db *gorm.DB, userID int64) (decimal.Decimal, error) {
	var user model.User
	result := db.Where("user_id = ?", userID).Take(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		log.Errorf("GetUserBalance failed:%v", result.Error)
		return decimal.Zero, result.Error
	}

	return user.Balance, nil
}

// CreditBalance adds amount to the user's balance, creating the row first
// when needed. Callers run it inside the same transaction as the status
// change that justifies the credit.
func CreditBalance(db *gorm.DB, userID int64, amount decimal.Decimal) error {
	if err := EnsureUser(db, userID); err != nil {
		return err
	}

	result := db.Model(&model.User{}).Where("user_id = ?", userID).Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		log.Errorf("CreditBalance failed:%v", result.Error)
		return result.Error
	}

	return nil
}

// DebitBalance subtracts amount only while the balance covers it, the
// condition and the write are one statement. Reports false when the
// balance was too low or the row does not exist.
func DebitBalance(db *gorm.DB, userID int64, amount decimal.Decimal) (bool, error) {
	result := db.Model(&model.User{}).Where("user_id = ? AND balance >= ?", userID, amount).Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		log.Errorf("DebitBalance failed:%v", result.Error)
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

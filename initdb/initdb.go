package initdb

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/dao"
	"github.com/rqzrqh/settle_ton/model"
)

var log = logging.Logger("initdb")

func InitDatabase(ctx context.Context, db *gorm.DB, rds *redis.Client) error {

	if checkExist(db) {
		return xerrors.New("database has been initialized")
	}

	if err := createTables(db); err != nil {
		return err
	}

	if err := RebuildCache(ctx, db, rds); err != nil {
		return err
	}

	return nil
}

func checkExist(db *gorm.DB) bool {
	return db.Migrator().HasTable(&model.Deal{})
}

func createTables(db *gorm.DB) error {

	startTime := time.Now()
	defer func() {
		log.Infow("createTables", "duration", time.Since(startTime).String())
	}()

	err := db.Debug().AutoMigrate(
		// 1. trading state
		&model.Deal{},

		// 2. balances
		&model.User{},
		// PidFile Table is created at the time of program starts
	)

	if err != nil {
		return err
	}

	return err
}

// RebuildCache rewrites the whole redis read model from the database. It
// runs as part of initdb and on demand after a cache loss, digests and
// balance keys come back without replaying any deal.
func RebuildCache(ctx context.Context, db *gorm.DB, rds *redis.Client) error {

	var deals []model.Deal
	if err := db.Model(&model.Deal{}).Order("created_at asc").Find(&deals).Error; err != nil {
		return err
	}

	for i := range deals {
		deal := &deals[i]

		balances := make(map[int64]decimal.Decimal)
		for _, userID := range []int64{deal.CreatorID, deal.BuyerID} {
			if userID == 0 {
				continue
			}
			if _, exist := balances[userID]; exist {
				continue
			}
			balance, err := dao.GetUserBalance(db, userID)
			if err != nil {
				return err
			}
			balances[userID] = balance
		}

		dao.SyncDealCache(ctx, rds, deal, balances)
	}

	log.Infof("cache rebuilt, %v deals", len(deals))

	return nil
}

package dao

import (
	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/model"
)

// GetDatabaseLock claims exclusive write access to the schema by creating
// the pid_file table. A second daemon against the same database fails
// here while the first one is alive.
func GetDatabaseLock(db *gorm.DB) error {

	err := db.Migrator().CreateTable(&model.PidFile{})
	if err != nil {
		log.Errorf("GetDatabaseLock failed:%v", err)
	}

	return err
}

func ReleaseDatabaseLock(db *gorm.DB) error {
	err := db.Migrator().DropTable(&model.PidFile{})
	log.Infof("delete pid_file result:%v", err)
	return err
}

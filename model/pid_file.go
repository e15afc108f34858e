package model

// PidFile is the daemon's database lock. The watcher creates the table on
// start and drops it on shutdown, so a second daemon against the same
// schema fails fast instead of racing the first one's writes.
type PidFile struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement:true"`
	Info string
}

func (PidFile) TableName() string {
	return "pid_file"
}

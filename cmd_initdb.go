package main

import (
	"fmt"
	syslog "log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rqzrqh/settle_ton/initdb"
	"github.com/rqzrqh/settle_ton/util"
)

var cmdInitDb = &cli.Command{
	Name:  "initdb",
	Usage: "Create the schema and prime the redis read model",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Usage:   "root:123456@tcp(127.0.0.1:3306)/settle_ton",
			EnvVars: []string{"DB_DSN"},
		},
		&cli.StringFlag{
			Name:    "redis",
			Usage:   "127.0.0.1:6379",
			EnvVars: []string{"REDIS_ADDR"},
		},
		&cli.BoolFlag{
			Name:  "rebuild-cache",
			Usage: "only rewrite the redis read model from the database",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx)

		ll := cctx.String("log-level")
		if err := logging.SetLogLevel("*", ll); err != nil {
			return err
		}

		newLogger := logger.New(
			syslog.New(os.Stdout, "\r\n", syslog.LstdFlags), // io writer（日志输出的目标，前缀和日志包含的内容——译者注）
			logger.Config{
				SlowThreshold:             1000 * time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound（记录未找到）错误
				Colorful:                  true,
			},
		)

		db, err := gorm.Open(mysql.Open(cctx.String("db")), &gorm.Config{
			Logger: newLogger,
		})
		if err != nil {
			fmt.Println("failed to connect database ", err)
			os.Exit(0)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Ping(); err != nil {
			return err
		}
		log.Info("sql ping success")

		redis_addr := cctx.String("redis")
		rds := redis.NewClient(&redis.Options{
			Addr:     redis_addr,
			Password: "",
			DB:       0,
		})
		defer rds.Close()
		pong, err := rds.Ping(ctx).Result()
		if err != nil {
			return err
		}
		log.Info("redis response ", pong)

		if cctx.Bool("rebuild-cache") {
			return initdb.RebuildCache(ctx, db, rds)
		}

		if err := initdb.InitDatabase(ctx, db, rds); err != nil {
			return err
		}

		log.Info("database initialized")
		return nil
	},
}

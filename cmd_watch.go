package main

import (
	"fmt"
	syslog "log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rqzrqh/settle_ton/notify"
	"github.com/rqzrqh/settle_ton/tonapi"
	"github.com/rqzrqh/settle_ton/util"
	"github.com/rqzrqh/settle_ton/watcher"

	_ "net/http/pprof"
)

var cmdWatch = &cli.Command{
	Name:  "watch",
	Usage: "Start the settlement watcher",
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
		&cli.StringFlag{
			Name:    "ton-api-url",
			Usage:   "transaction list endpoint of the provider",
			EnvVars: []string{"TON_API_URL"},
		},
		&cli.StringFlag{
			Name:    "ton-api-key",
			EnvVars: []string{"TON_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "wallet",
			Usage:   "custodial wallet address all deals are paid into",
			EnvVars: []string{"MERCHANT_WALLET"},
		},
		&cli.IntFlag{
			Name:    "poll-interval",
			Usage:   "seconds between reconciliation cycles",
			Value:   12,
			EnvVars: []string{"POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:  "startup-delay",
			Usage: "seconds to wait before the first cycle",
			Value: 2,
		},
		&cli.IntFlag{
			Name:  "error-delay",
			Usage: "seconds to wait after a failed cycle",
			Value: 5,
		},
		&cli.IntFlag{
			Name:    "fetch-limit",
			Usage:   "transactions requested per fetch",
			Value:   50,
			EnvVars: []string{"TON_FETCH_LIMIT"},
		},
		&cli.IntFlag{
			Name:  "fetch-timeout",
			Usage: "seconds before a provider request is abandoned",
			Value: 20,
		},
		&cli.Int64Flag{
			Name:  "scale-threshold",
			Usage: "raw amounts above this are taken as minor units",
			Value: 1000000,
		},
		&cli.IntFlag{
			Name:  "scale-exp",
			Usage: "decimal places a minor unit amount is shifted down",
			Value: 9,
		},
		&cli.StringFlag{
			Name:  "scale-divisors",
			Usage: "divisors the matcher tries on suspect amounts",
			Value: "1000000000,1000000,1000",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
		},
	},
	Action: func(cctx *cli.Context) error {
		go func() {
			http.ListenAndServe(":6060", nil) //nolint:errcheck
		}()

		ctx := util.ReqContext(cctx)

		ll := cctx.String("log-level")
		if err := logging.SetLogLevel("*", ll); err != nil {
			return err
		}

		wallet := cctx.String("wallet")
		if wallet == "" {
			return fmt.Errorf("no wallet address")
		}

		if cctx.String("ton-api-url") == "" {
			log.Warnf("no provider url configured, the watcher will not see transfers")
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

		source := tonapi.NewClient(tonapi.Config{
			BaseURL: cctx.String("ton-api-url"),
			APIKey:  cctx.String("ton-api-key"),
			Timeout: time.Duration(cctx.Int("fetch-timeout")) * time.Second,
			Limit:   cctx.Int("fetch-limit"),
		})

		divisors, err := parseScaleDivisors(cctx.String("scale-divisors"))
		if err != nil {
			return err
		}

		cfg := watcher.Config{
			Wallet:       wallet,
			PollInterval: time.Duration(cctx.Int("poll-interval")) * time.Second,
			StartupDelay: time.Duration(cctx.Int("startup-delay")) * time.Second,
			ErrorDelay:   time.Duration(cctx.Int("error-delay")) * time.Second,
			Scale: tonapi.ScaleConfig{
				Threshold: decimal.NewFromInt(cctx.Int64("scale-threshold")),
				Exp:       int32(cctx.Int("scale-exp")),
			},
			ScaleDivisors: divisors,
		}

		w, err := watcher.NewWatcher(ctx, db, rds, source, notify.NewRedisNotifier(rds), cfg)
		if err != nil {
			return err
		}
		w.Start()

		<-ctx.Done()

		w.Stop()

		os.Exit(0)
		return nil
	},
}

func parseScaleDivisors(s string) ([]int64, error) {
	var divisors []int64

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		div, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid scale divisor %q", part)
		}
		divisors = append(divisors, div)
	}

	return divisors, nil
}

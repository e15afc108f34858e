package main

import (
	"fmt"
	syslog "log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rqzrqh/settle_ton/escrow"
	"github.com/rqzrqh/settle_ton/model"
	"github.com/rqzrqh/settle_ton/notify"
)

var cmdDeal = &cli.Command{
	Name:  "deal",
	Usage: "Operate deals from the command line",
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
			Name:    "wallet",
			Usage:   "custodial wallet address all deals are paid into",
			EnvVars: []string{"MERCHANT_WALLET"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
		},
	},
	Subcommands: []*cli.Command{
		dealCreateCmd,
		dealShowCmd,
		dealListCmd,
		dealPaidCmd,
		dealPayCmd,
		dealConfirmCmd,
		dealCancelCmd,
		dealBalanceCmd,
	},
}

var dealCreateCmd = &cli.Command{
	Name:  "create",
	Usage: "Create a deal and print the memo the buyer must attach",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "creator",
			Usage:    "seller user id",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "deal amount in TON",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "what is being sold",
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		amount, err := decimal.NewFromString(cctx.String("amount"))
		if err != nil {
			return fmt.Errorf("invalid amount %q", cctx.String("amount"))
		}

		deal, err := svc.Create(cctx.Context, cctx.Int64("creator"), cctx.String("description"), amount)
		if err != nil {
			return err
		}

		fmt.Printf("deal %v created\n", deal.ID)
		fmt.Printf("amount: %v %v\n", deal.Amount, deal.Asset)
		fmt.Printf("pay to wallet: %v\n", deal.Wallet)
		fmt.Printf("transfer memo: %v\n", deal.Memo)
		return nil
	},
}

var dealShowCmd = &cli.Command{
	Name:      "show",
	Usage:     "Print one deal",
	ArgsUsage: "<deal-id>",
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deal, err := svc.Get(cctx.Args().First())
		if err != nil {
			return err
		}

		printDeal(deal)
		return nil
	},
}

var dealListCmd = &cli.Command{
	Name:  "list",
	Usage: "List the deals a user created, newest first",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "user",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deals, err := svc.DealsOf(cctx.Int64("user"))
		if err != nil {
			return err
		}

		for i := range deals {
			deal := &deals[i]
			fmt.Printf("%v  %v %v  %v  %v\n", deal.ShortID(), deal.Amount, deal.Asset, deal.Status, deal.CreatedAt.Format(time.RFC3339))
		}
		fmt.Printf("%v deals\n", len(deals))
		return nil
	},
}

var dealPaidCmd = &cli.Command{
	Name:      "paid",
	Usage:     "Mark a deal as paid externally, the watcher settles it later",
	ArgsUsage: "<deal-id>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "buyer",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deal, err := svc.MarkPaid(cctx.Context, cctx.Args().First(), cctx.Int64("buyer"))
		if err != nil {
			return err
		}

		fmt.Printf("deal %v is now %v\n", deal.ShortID(), deal.Status)
		return nil
	},
}

var dealPayCmd = &cli.Command{
	Name:      "pay",
	Usage:     "Settle a deal from the buyer's internal balance",
	ArgsUsage: "<deal-id>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "buyer",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deal, err := svc.PayFromBalance(cctx.Context, cctx.Args().First(), cctx.Int64("buyer"))
		if err != nil {
			return err
		}

		fmt.Printf("deal %v completed, paid from balance\n", deal.ShortID())
		return nil
	},
}

var dealConfirmCmd = &cli.Command{
	Name:      "confirm",
	Usage:     "Close a deal by hand, creator only",
	ArgsUsage: "<deal-id>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "user",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deal, err := svc.Confirm(cctx.Context, cctx.Args().First(), cctx.Int64("user"))
		if err != nil {
			return err
		}

		fmt.Printf("deal %v completed\n", deal.ShortID())
		return nil
	},
}

var dealCancelCmd = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a deal, creator only",
	ArgsUsage: "<deal-id>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "user",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		deal, err := svc.Cancel(cctx.Context, cctx.Args().First(), cctx.Int64("user"))
		if err != nil {
			return err
		}

		fmt.Printf("deal %v cancelled\n", deal.ShortID())
		return nil
	},
}

var dealBalanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "Print a user's internal balance",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:     "user",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		svc, rds, err := openDealService(cctx)
		if err != nil {
			return err
		}
		defer rds.Close()

		balance, err := svc.Balance(cctx.Int64("user"))
		if err != nil {
			return err
		}

		fmt.Printf("%v %v\n", balance, model.DefaultAsset)
		return nil
	},
}

// openDealService wires the one-shot cli actions the same way the daemon
// is wired, so manual actions publish the same cache updates and
// notifications.
func openDealService(cctx *cli.Context) (*escrow.Service, *redis.Client, error) {
	ll := cctx.String("log-level")
	if err := logging.SetLogLevel("*", ll); err != nil {
		return nil, nil, err
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
		return nil, nil, err
	}

	rds := redis.NewClient(&redis.Options{
		Addr:     cctx.String("redis"),
		Password: "",
		DB:       0,
	})
	if _, err := rds.Ping(cctx.Context).Result(); err != nil {
		rds.Close()
		return nil, nil, err
	}

	svc := escrow.NewService(db, rds, notify.NewRedisNotifier(rds), cctx.String("wallet"))
	return svc, rds, nil
}

func printDeal(deal *model.Deal) {
	fmt.Printf("id:          %v\n", deal.ID)
	fmt.Printf("status:      %v\n", deal.Status)
	fmt.Printf("amount:      %v %v\n", deal.Amount, deal.Asset)
	fmt.Printf("creator:     %v\n", deal.CreatorID)
	if deal.BuyerID != 0 {
		fmt.Printf("buyer:       %v\n", deal.BuyerID)
	}
	fmt.Printf("wallet:      %v\n", deal.Wallet)
	fmt.Printf("memo:        %v\n", deal.Memo)
	if deal.Description != "" {
		fmt.Printf("description: %v\n", deal.Description)
	}
	if deal.PaidTx != "" {
		fmt.Printf("paid tx:     %v\n", deal.PaidTx)
	}
	fmt.Printf("created:     %v\n", deal.CreatedAt.Format(time.RFC3339))
	if deal.CompletedAt != nil {
		fmt.Printf("completed:   %v\n", deal.CompletedAt.Format(time.RFC3339))
	}
}

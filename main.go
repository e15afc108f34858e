package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var (
	log = logging.Logger("settle_ton")
)

func main() {
	if err := logging.SetLogLevel("*", "info"); err != nil {
		log.Fatal(err)
	}
	app := &cli.App{
		Name:    "settle_ton",
		Usage:   "watch a custodial TON wallet and settle escrow deals",
		Version: BuildVersion,
		Flags:   []cli.Flag{},
		Commands: []*cli.Command{
			cmdInitDb,
			cmdWatch,
			cmdDeal,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

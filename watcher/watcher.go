package watcher

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"gorm.io/gorm"

	"github.com/rqzrqh/settle_ton/common"
	"github.com/rqzrqh/settle_ton/dao"
	"github.com/rqzrqh/settle_ton/model"
	"github.com/rqzrqh/settle_ton/notify"
	"github.com/rqzrqh/settle_ton/tonapi"
)

var log = logging.Logger("watcher")

// Source yields raw provider records for the custodial wallet.
// Implemented by tonapi.Client.
type Source interface {
	Transactions(ctx context.Context, address string) []tonapi.RawRecord
}

const (
	DefaultPollInterval = 12 * time.Second
	DefaultStartupDelay = 2 * time.Second
	DefaultErrorDelay   = 5 * time.Second
)

type Config struct {
	// Wallet is the custodial address every deal is paid into.
	Wallet string

	PollInterval time.Duration
	StartupDelay time.Duration
	// ErrorDelay replaces PollInterval after a failed cycle.
	ErrorDelay time.Duration

	Scale         tonapi.ScaleConfig
	ScaleDivisors []int64
}

func (cfg *Config) fillDefaults() error {
	if cfg.Wallet == "" {
		return xerrors.New("watcher: wallet address required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}
	if cfg.ScaleDivisors == nil {
		cfg.ScaleDivisors = DefaultScaleDivisors
	}

	return nil
}

// Watcher drives the reconciliation engine. One cycle lists the candidate
// deals, fetches the wallet's recent transfers once, and tries to settle
// every candidate against that batch.
type Watcher struct {
	ctx       context.Context
	cfg       Config
	db        *gorm.DB
	source    Source
	completer *Completer
	stopped   *atomic.Bool
}

func NewWatcher(ctx context.Context, db *gorm.DB, rds *redis.Client, source Source, notifier notify.Notifier, cfg Config) (*Watcher, error) {
	if err := cfg.fillDefaults(); err != nil {
		return nil, err
	}

	if err := dao.GetDatabaseLock(db); err != nil {
		return nil, xerrors.New("database is locked by another daemon")
	}

	return &Watcher{
		ctx:       ctx,
		cfg:       cfg,
		db:        db,
		source:    source,
		completer: NewCompleter(db, rds, notifier),
		stopped:   atomic.NewBool(false),
	}, nil
}

func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) Stop() {
	if w.stopped.CAS(false, true) {
		dao.ReleaseDatabaseLock(w.db)
	}
}

func (w *Watcher) run() {
	// let the database, redis and the provider settle after a deploy
	if w.cfg.StartupDelay > 0 {
		select {
		case <-time.After(w.cfg.StartupDelay):
		case <-w.ctx.Done():
			return
		}
	}

	inProcess := atomic.NewBool(false)
	nextRun := atomic.NewInt64(time.Now().UnixNano())

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.stopped.Load() {
				return
			}
			if time.Now().UnixNano() < nextRun.Load() {
				continue
			}
			if !inProcess.CAS(false, true) {
				continue
			}

			go func() {
				defer inProcess.Store(false)

				delay := w.cfg.PollInterval
				if err := w.runCycle(w.ctx); err != nil {
					log.Warnf("cycle failed(%v), retry in %v", err, w.cfg.ErrorDelay)
					delay = w.cfg.ErrorDelay
				}

				nextRun.Store(time.Now().Add(delay).UnixNano())
			}()
		}
	}
}

// runCycle is one reconciliation pass. A panic anywhere inside is turned
// into a cycle error so one poisoned provider batch cannot kill the
// daemon.
func (w *Watcher) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Errorf("cycle panic: %v", r)
		}
	}()

	started := time.Now()
	stats.Record(ctx, metricCycles.M(1))
	defer func() {
		stats.Record(ctx, metricCycleMs.M(float64(time.Since(started).Milliseconds())))
	}()

	deals, err := dao.ListCandidateDeals(w.db)
	if err != nil {
		return err
	}

	stats.Record(ctx, metricCandidates.M(int64(len(deals))))

	// nothing to settle, skip the provider round trip
	if len(deals) == 0 {
		return nil
	}

	records := w.source.Transactions(ctx, w.cfg.Wallet)
	if len(records) == 0 {
		return nil
	}

	txs := tonapi.Normalize(records, w.cfg.Scale)
	if len(txs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range deals {
		deal := deals[i]
		g.Go(func() error {
			return w.settle(gctx, &deal, txs)
		})
	}

	return g.Wait()
}

func (w *Watcher) settle(ctx context.Context, deal *model.Deal, txs []common.Transaction) error {
	tx := Match(deal, txs, w.cfg.ScaleDivisors)
	if tx == nil {
		return nil
	}

	stats.Record(ctx, metricMatches.M(1))
	log.Infow("transfer matched", "deal", deal.ShortID(), "tx", tx.Hash, "amount", tx.Amount, "want", deal.Amount)

	done, err := w.completer.Complete(ctx, deal, tx)
	if err != nil {
		log.Warnf("complete deal %v failed:%v", deal.ShortID(), err)
		return err
	}
	if !done {
		stats.Record(ctx, metricRaceNoops.M(1))
	}

	return nil
}

package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/rqzrqh/settle_ton/dao"
	"github.com/rqzrqh/settle_ton/model"
	"github.com/rqzrqh/settle_ton/tonapi"
)

type stubSource struct {
	mu      sync.Mutex
	records []tonapi.RawRecord
	calls   *atomic.Int64
}

func newStubSource() *stubSource {
	return &stubSource{calls: atomic.NewInt64(0)}
}

func (s *stubSource) Transactions(ctx context.Context, address string) []tonapi.RawRecord {
	s.calls.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *stubSource) setRecords(records []tonapi.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

func rawRecord(t *testing.T, raw string) tonapi.RawRecord {
	t.Helper()

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var rec tonapi.RawRecord
	require.NoError(t, dec.Decode(&rec))
	return rec
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func testConfig() Config {
	return Config{
		Wallet:       "EQwallet",
		PollInterval: 50 * time.Millisecond,
		ErrorDelay:   50 * time.Millisecond,
		Scale:        tonapi.DefaultScaleConfig(),
	}
}

func TestWatcherSettlesDeal(t *testing.T) {
	db := setupWatcherTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deal := createOpenDeal(t, db, "b1946ac92492d2347c6235b4d2611184", 100, "3")

	// the transfer covers less than the deal, only its memo settles it
	src := newStubSource()
	src.setRecords([]tonapi.RawRecord{
		rawRecord(t, fmt.Sprintf(`{
			"hash": "settling-tx",
			"utime": %v,
			"in_msg": {"source": "EQbuyer", "value": "1000000000", "text": "payment for %v"}
		}`, time.Now().Unix(), deal.ID)),
	})

	w, err := NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.NoError(t, err)
	defer w.Stop()

	w.Start()

	waitFor(t, 5*time.Second, func() bool {
		got, err := dao.GetDeal(db, deal.ID)
		return err == nil && got.Status == model.DealStatusCompleted
	})

	got, err := dao.GetDeal(db, deal.ID)
	require.NoError(t, err)
	require.Equal(t, "settling-tx", got.PaidTx)
	require.True(t, got.AssetReceived)
	require.True(t, got.SellerReceived)

	balance, err := dao.GetUserBalance(db, 100)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("3")), "seller balance = %v", balance)
}

func TestWatcherSkipsFetchWhenIdle(t *testing.T) {
	db := setupWatcherTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newStubSource()

	w, err := NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.NoError(t, err)
	defer w.Stop()

	w.Start()

	// cycles run, but with no candidates the provider is never asked
	time.Sleep(700 * time.Millisecond)
	require.Equal(t, int64(0), src.calls.Load(), "fetched without any candidate deal")

	deal := createOpenDeal(t, db, "c81e728d9d4c2f636f067f89cc14862c", 100, "3")

	waitFor(t, 5*time.Second, func() bool {
		return src.calls.Load() > 0
	})

	// empty batches leave the deal alone
	got, err := dao.GetDeal(db, deal.ID)
	require.NoError(t, err)
	require.Equal(t, model.DealStatusOpen, got.Status)
}

func TestWatcherIgnoresUnmatchedTransfers(t *testing.T) {
	db := setupWatcherTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deal := createOpenDeal(t, db, "a87ff679a2f3e71d9181a67b7542122c", 100, "100")

	src := newStubSource()
	src.setRecords([]tonapi.RawRecord{
		rawRecord(t, fmt.Sprintf(`{"hash": "small-tx", "utime": %v, "value": "1"}`, time.Now().Unix())),
	})

	w, err := NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.NoError(t, err)
	defer w.Stop()

	w.Start()

	waitFor(t, 5*time.Second, func() bool {
		return src.calls.Load() >= 2
	})

	got, err := dao.GetDeal(db, deal.ID)
	require.NoError(t, err)
	require.Equal(t, model.DealStatusOpen, got.Status, "an uncovering transfer settled the deal")
}

func TestWatcherDatabaseLock(t *testing.T) {
	db := setupWatcherTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newStubSource()

	w1, err := NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.NoError(t, err)

	// a second daemon against the same schema must fail fast
	_, err = NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.Error(t, err)

	w1.Stop()

	w3, err := NewWatcher(ctx, db, nil, src, nil, testConfig())
	require.NoError(t, err)
	w3.Stop()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	require.Error(t, cfg.fillDefaults(), "a watcher without a wallet is useless")

	cfg = Config{Wallet: "EQwallet"}
	require.NoError(t, cfg.fillDefaults())
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultErrorDelay, cfg.ErrorDelay)
	require.Equal(t, DefaultScaleDivisors, cfg.ScaleDivisors)
}

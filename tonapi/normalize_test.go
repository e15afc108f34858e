package tonapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// record decodes the way the client does, numbers stay json.Number.
func record(t *testing.T, raw string) RawRecord {
	t.Helper()

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var rec RawRecord
	require.NoError(t, dec.Decode(&rec))
	return rec
}

func defaultScale() ScaleConfig {
	return DefaultScaleConfig()
}

func TestNormalizeInMsgRecord(t *testing.T) {
	rec := record(t, `{
		"hash": "abc123",
		"utime": 1700000000,
		"in_msg": {
			"source": "EQsender",
			"value": "5000000000",
			"text": "deal memo"
		},
		"out_msgs": [{"destination": "EQwallet"}]
	}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)

	tx := txs[0]
	require.Equal(t, "abc123", tx.Hash)
	require.Equal(t, "EQsender", tx.From)
	require.Equal(t, "EQwallet", tx.To)
	require.True(t, tx.HasAmount)
	require.True(t, tx.Amount.Equal(decimal.NewFromInt(5)), "5e9 nano should become 5, got %v", tx.Amount)
	require.Equal(t, "deal memo", tx.Memo)
	require.Equal(t, int64(1700000000), tx.Timestamp)
}

func TestNormalizeTopLevelFallbacks(t *testing.T) {
	rec := record(t, `{
		"id": "tx-77",
		"src": "EQsender",
		"amount": "12.5",
		"comment": "thanks",
		"time": "1700000001"
	}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)

	tx := txs[0]
	require.Equal(t, "tx-77", tx.Hash)
	require.Equal(t, "EQsender", tx.From)
	require.True(t, tx.Amount.Equal(decimal.RequireFromString("12.5")))
	require.Equal(t, "thanks", tx.Memo)
	require.Equal(t, int64(1700000001), tx.Timestamp)
}

func TestNormalizeOutMsgAmountFallback(t *testing.T) {
	rec := record(t, `{
		"hash": "h1",
		"out_msgs": [{"to": "EQwallet", "value": 42}]
	}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.True(t, txs[0].HasAmount)
	require.True(t, txs[0].Amount.Equal(decimal.NewFromInt(42)))
	require.Equal(t, "EQwallet", txs[0].To)
}

func TestNormalizeNestedShapes(t *testing.T) {
	// toncenter nests the id, some providers wrap the value once more
	rec := record(t, `{
		"transaction_id": {"hash": "nested-hash", "lt": "123"},
		"in_msg": {
			"from": "EQsender",
			"value": {"amount": "7"}
		}
	}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.Equal(t, "nested-hash", txs[0].Hash)
	require.Equal(t, "EQsender", txs[0].From)
	require.True(t, txs[0].HasAmount)
	require.True(t, txs[0].Amount.Equal(decimal.NewFromInt(7)))
}

func TestNormalizeNumericHashFallback(t *testing.T) {
	rec := record(t, `{"utime": 1700000002, "value": "3"}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.Equal(t, "1700000002", txs[0].Hash)
	require.Equal(t, int64(1700000002), txs[0].Timestamp)
}

func TestNormalizeDropsRecordWithoutIdentifier(t *testing.T) {
	recs := []RawRecord{
		record(t, `{"value": "3", "comment": "no id here"}`),
		record(t, `{"hash": "keep", "value": "3"}`),
	}

	txs := Normalize(recs, defaultScale())
	require.Len(t, txs, 1)
	require.Equal(t, "keep", txs[0].Hash)
}

func TestNormalizeMemoStringsOnly(t *testing.T) {
	rec := record(t, `{
		"hash": "h1",
		"in_msg": {"text": {"structured": true}},
		"comment": "fallback memo"
	}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.Equal(t, "fallback memo", txs[0].Memo)
}

func TestNormalizeMissingAmount(t *testing.T) {
	rec := record(t, `{"hash": "h1", "comment": "pay me"}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.False(t, txs[0].HasAmount)
}

func TestScaleHeuristic(t *testing.T) {
	sc := defaultScale()

	// above the threshold means nano, below stays as is
	require.True(t, sc.Apply(decimal.NewFromInt(10000000000)).Equal(decimal.NewFromInt(10)))
	require.True(t, sc.Apply(decimal.NewFromInt(500)).Equal(decimal.NewFromInt(500)))
	require.True(t, sc.Apply(decimal.NewFromInt(1000000)).Equal(decimal.NewFromInt(1000000)), "threshold itself must not shift")

	// zero threshold disables the shift
	off := ScaleConfig{Threshold: decimal.Zero, Exp: 9}
	require.True(t, off.Apply(decimal.NewFromInt(10000000000)).Equal(decimal.NewFromInt(10000000000)))
}

func TestNormalizeKeepsDecimalPrecision(t *testing.T) {
	rec := record(t, `{"hash": "h1", "value": "0.000000001"}`)

	txs := Normalize([]RawRecord{rec}, defaultScale())
	require.Len(t, txs, 1)
	require.Equal(t, "0.000000001", txs[0].Amount.String())
}

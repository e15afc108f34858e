package tonapi

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rqzrqh/settle_ton/common"
)

// ScaleConfig controls the minor unit heuristic. Raw amounts above
// Threshold are taken as minor units and shifted down by Exp decimal
// places, a zero Threshold disables the shift.
type ScaleConfig struct {
	Threshold decimal.Decimal
	Exp       int32
}

func DefaultScaleConfig() ScaleConfig {
	return ScaleConfig{
		Threshold: decimal.NewFromInt(1000000),
		Exp:       9,
	}
}

func (sc ScaleConfig) Apply(amount decimal.Decimal) decimal.Decimal {
	if sc.Threshold.IsZero() || amount.Cmp(sc.Threshold) <= 0 {
		return amount
	}

	return amount.Shift(-sc.Exp)
}

// Normalize reduces raw provider records to canonical transactions.
// Every field degrades through its fallback chain on its own, only a
// record without any usable identifier is dropped.
func Normalize(records []RawRecord, scale ScaleConfig) []common.Transaction {
	txs := make([]common.Transaction, 0, len(records))

	for _, rec := range records {
		hash := probeString(rec, "hash", "utime", "lt", "id", "transaction_id")
		if hash == "" {
			continue
		}

		var sender, memo string
		var amountRaw interface{}

		if inMsg, ok := rec["in_msg"].(map[string]interface{}); ok {
			sender = probeString(inMsg, "source", "from")
			amountRaw = firstValue(inMsg, "value", "amount")
			memo = probeText(inMsg, "text", "message", "comment")
		} else {
			sender = probeString(rec, "src", "source", "from")
			amountRaw = firstValue(rec, "value", "amount")
		}

		var recipient string
		if outs, ok := rec["out_msgs"].([]interface{}); ok && len(outs) > 0 {
			if out, ok := outs[0].(map[string]interface{}); ok {
				recipient = probeString(out, "destination", "to")
				if amountRaw == nil {
					amountRaw = firstValue(out, "value", "amount")
				}
			}
		}

		if memo == "" {
			memo = probeText(rec, "comment", "message", "body", "payload")
		}

		amount, hasAmount := parseAmount(amountRaw)
		if hasAmount {
			amount = scale.Apply(amount)
		}

		txs = append(txs, common.Transaction{
			Hash:      hash,
			From:      sender,
			To:        recipient,
			Amount:    amount,
			HasAmount: hasAmount,
			Memo:      memo,
			Timestamp: probeTimestamp(rec, "utime", "time", "unix_time"),
			Raw:       rec,
		})
	}

	return txs
}

// probeString walks keys in order and returns the first value usable as an
// identifier: a non-empty string, a number, or a map carrying its own
// "hash" the way toncenter nests transaction ids.
func probeString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case map[string]interface{}:
			if s, ok := v["hash"].(string); ok && s != "" {
				return s
			}
		}
	}

	return ""
}

// probeText is probeString restricted to strings, memos that arrive as
// structured payloads are not worth guessing at.
func probeText(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}

	return ""
}

func firstValue(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}

	return nil
}

func parseAmount(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d, true
		}
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d, true
		}
	case map[string]interface{}:
		// some providers wrap the value once more: {"amount": ...}
		if inner, ok := val["amount"]; ok {
			return parseAmount(inner)
		}
	case float64:
		// records built without UseNumber decoding
		return decimal.NewFromFloat(val), true
	}

	return decimal.Decimal{}, false
}

func probeTimestamp(m map[string]interface{}, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case json.Number:
			if ts, err := v.Int64(); err == nil && ts != 0 {
				return ts
			}
			if f, err := v.Float64(); err == nil && f != 0 {
				return int64(f)
			}
		case string:
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts != 0 {
				return ts
			}
		}
	}

	return 0
}

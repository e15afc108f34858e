package tonapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("tonapi")

// RawRecord is one provider transaction before normalization. Numbers stay
// json.Number so amounts keep full precision until they become decimals.
type RawRecord map[string]interface{}

const (
	DefaultTimeout = 20 * time.Second
	DefaultLimit   = 50
)

type Config struct {
	// BaseURL is the provider's transaction list endpoint. Leaving it
	// empty is allowed, fetches then return nothing.
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Limit   int
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transactions returns the provider's recent records for address. Provider
// trouble never fails a cycle upward, any transport or decode problem is
// logged and an empty batch returned.
func (c *Client) Transactions(ctx context.Context, address string) []RawRecord {
	if c.cfg.BaseURL == "" {
		return nil
	}

	records, err := c.fetch(ctx, address)
	if err != nil {
		log.Warnf("fetch transactions of %v failed:%v", address, err)
		return nil
	}

	return records
}

func (c *Client) fetch(ctx context.Context, address string) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("account", address)
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	req.URL.RawQuery = q.Encode()

	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// some providers answer errors with a well-formed envelope, so the
	// body is parsed regardless of the status code
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}

	return extractRecords(payload), nil
}

// extractRecords probes the envelope shapes seen in the wild: a list under
// "result", a list under "transactions", a bare top-level list, else the
// first list value in the envelope.
func extractRecords(payload interface{}) []RawRecord {
	var items []interface{}

	switch data := payload.(type) {
	case map[string]interface{}:
		if v, ok := data["result"].([]interface{}); ok {
			items = v
		} else if v, ok := data["transactions"].([]interface{}); ok {
			items = v
		} else {
			for _, v := range data {
				if list, ok := v.([]interface{}); ok {
					items = list
					break
				}
			}
		}
	case []interface{}:
		items = data
	}

	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]interface{}); ok {
			records = append(records, RawRecord(rec))
		}
	}

	return records
}

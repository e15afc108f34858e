package tonapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransactionsEnvelopeShapes(t *testing.T) {
	bodies := map[string]string{
		"result":       `{"ok":true,"result":[{"hash":"h1"},{"hash":"h2"}]}`,
		"transactions": `{"transactions":[{"hash":"h1"},{"hash":"h2"}],"address_book":{}}`,
		"bare list":    `[{"hash":"h1"},{"hash":"h2"}]`,
		"other key":    `{"ok":true,"items":[{"hash":"h1"},{"hash":"h2"}]}`,
	}

	for name, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		c := NewClient(Config{BaseURL: srv.URL})
		records := c.Transactions(context.Background(), "EQwallet")
		srv.Close()

		if len(records) != 2 {
			t.Fatalf("%v: expected 2 records, got %v", name, len(records))
		}
		if records[0]["hash"] != "h1" || records[1]["hash"] != "h2" {
			t.Fatalf("%v: record order lost: %v", name, records)
		}
	}
}

func TestTransactionsRequestShape(t *testing.T) {
	var gotAccount, gotLimit, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = r.URL.Query().Get("account")
		gotLimit = r.URL.Query().Get("limit")
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Limit: 25})
	c.Transactions(context.Background(), "EQwallet")

	if gotAccount != "EQwallet" {
		t.Fatalf("account query: got %q", gotAccount)
	}
	if gotLimit != "25" {
		t.Fatalf("limit query: got %q", gotLimit)
	}
	if gotKey != "secret" {
		t.Fatalf("api key header: got %q", gotKey)
	}
}

func TestTransactionsErrorStatusStillParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"result":[{"hash":"h1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	records := c.Transactions(context.Background(), "EQwallet")
	if len(records) != 1 {
		t.Fatalf("expected the error body to be parsed, got %v records", len(records))
	}
}

func TestTransactionsNeverFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))

	c := NewClient(Config{BaseURL: srv.URL})
	if records := c.Transactions(context.Background(), "EQwallet"); records != nil {
		t.Fatalf("garbage body: expected nil, got %v", records)
	}
	srv.Close()

	// server gone
	if records := c.Transactions(context.Background(), "EQwallet"); records != nil {
		t.Fatalf("dead server: expected nil, got %v", records)
	}

	// no provider configured at all
	c = NewClient(Config{})
	if records := c.Transactions(context.Background(), "EQwallet"); records != nil {
		t.Fatalf("no base url: expected nil, got %v", records)
	}
}

func TestTransactionsTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	started := time.Now()
	records := c.Transactions(context.Background(), "EQwallet")
	if records != nil {
		t.Fatalf("expected nil on timeout, got %v", records)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("timeout not honored, took %v", elapsed)
	}
}

func TestNonRecordItemsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{"hash":"h1"},"noise",42,null]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	records := c.Transactions(context.Background(), "EQwallet")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %v", len(records))
	}
}

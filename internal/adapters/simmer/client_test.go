package simmer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/automaton/internal/ports/secondary"
)

func TestListActivityDecodesAndFilters(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"trades": [
			{"source": "sdk:momentum", "side": "BUY", "cost": 2.5, "created_at": "2026-08-20T10:00:00Z"},
			{"source": "sdk:momentum", "side": "sell", "amount": 4.0, "created_at": "2026-08-21T10:00:00Z"},
			{"source": "sdk:old", "side": "sell", "cost": 9.0, "created_at": "2026-08-01T10:00:00Z"},
			{"source": "sdk:weird", "side": "hold", "cost": 1.0, "created_at": "2026-08-21T11:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	since := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	activity, err := client.ListActivity(context.Background(), "polymarket", since, until, 200)
	if err != nil {
		t.Fatalf("ListActivity failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "venue=polymarket") || !strings.Contains(gotQuery, "limit=200") {
		t.Errorf("unexpected query: %q", gotQuery)
	}

	// The pre-watermark trade and the unknown side are dropped.
	if len(activity) != 2 {
		t.Fatalf("expected 2 activity entries, got %d: %+v", len(activity), activity)
	}
	if activity[0].Side != secondary.SideBuy || activity[0].AmountUSD != 2.5 {
		t.Errorf("buy entry mismatch: %+v", activity[0])
	}
	// Amount falls back to the "amount" field when "cost" is absent.
	if activity[1].Side != secondary.SideSell || activity[1].AmountUSD != 4.0 {
		t.Errorf("sell entry mismatch: %+v", activity[1])
	}
}

func TestListActivityWindowsAndDropsBadTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"trades": [
			{"source": "sdk:a", "side": "sell", "cost": 1.0, "created_at": "2026-08-20T10:00:00Z"},
			{"source": "sdk:a", "side": "sell", "cost": 2.0, "created_at": "2026-08-22T00:00:00Z"},
			{"source": "sdk:a", "side": "sell", "cost": 4.0, "created_at": "not-a-timestamp"},
			{"source": "sdk:a", "side": "sell", "cost": 8.0}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	since := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	activity, err := client.ListActivity(context.Background(), "polymarket", since, until, 200)
	if err != nil {
		t.Fatalf("ListActivity failed: %v", err)
	}

	// The trade at the exclusive upper bound waits for the next window;
	// trades without a parseable timestamp cannot be windowed and are
	// dropped instead of being recounted every cycle.
	if len(activity) != 1 {
		t.Fatalf("expected 1 entry, got %d: %+v", len(activity), activity)
	}
	if activity[0].AmountUSD != 1.0 {
		t.Errorf("unexpected surviving entry: %+v", activity[0])
	}
}

func TestListActivityNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if _, err := client.ListActivity(context.Background(), "kalshi", time.Time{}, time.Time{}, 10); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestPortfolioExposure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sdk/portfolio" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"total_exposure": 17.25, "by_source": {}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	exposure, err := client.PortfolioExposure(context.Background())
	if err != nil {
		t.Fatalf("PortfolioExposure failed: %v", err)
	}
	if exposure != 17.25 {
		t.Errorf("expected 17.25, got %v", exposure)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("ftp://nope", "key"); err == nil {
		t.Error("expected scheme validation error")
	}
	if _, err := NewClient("", ""); err == nil {
		t.Error("expected missing api key error")
	}
}

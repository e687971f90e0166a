package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &HybridStore{redis: rdb}, mr
}

func TestSetAndGetJSON(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	val := map[string]string{"lender": "0xlender", "amount": "1000"}

	if err := store.SetJSON(ctx, "test:key", val, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got map[string]string
	if err := store.GetJSON(ctx, "test:key", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if got["lender"] != "0xlender" {
		t.Errorf("expected lender=0xlender, got %s", got["lender"])
	}
}

func TestSnapshotAndGetRFQ(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	r := model.RFQ{
		ID:             3,
		Borrower:       "0xb0rr0wer",
		Amount:         decimal.NewFromInt(1000),
		Duration:       2592000,
		CollateralType: model.CollateralERC20,
		Status:         model.RFQStatusOpen,
		CreatedAt:      time.Now().UTC(),
	}

	if err := store.SnapshotRFQ(ctx, r); err != nil {
		t.Fatalf("SnapshotRFQ failed: %v", err)
	}

	got, err := store.GetRFQSnapshot(ctx, 3)
	if err != nil {
		t.Fatalf("GetRFQSnapshot failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if got.Borrower != "0xb0rr0wer" {
		t.Errorf("expected borrower=0xb0rr0wer, got %s", got.Borrower)
	}
	if !got.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected amount=1000, got %s", got.Amount)
	}
	if got.Status != model.RFQStatusOpen {
		t.Errorf("expected status=Open, got %s", got.Status)
	}
}

func TestGetRFQSnapshot_Miss(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	got, err := store.GetRFQSnapshot(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", got)
	}
}

func TestSnapshotAndGetBalance(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	b := model.LenderBalance{
		Lender:    "0xlender",
		Provided:  decimal.NewFromInt(100000),
		Reserved:  decimal.NewFromInt(1000),
		Available: decimal.NewFromInt(99000),
	}

	if err := store.SnapshotBalance(ctx, b); err != nil {
		t.Fatalf("SnapshotBalance failed: %v", err)
	}

	got, err := store.GetBalanceSnapshot(ctx, "0xlender")
	if err != nil {
		t.Fatalf("GetBalanceSnapshot failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if !got.Reserved.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected reserved=1000, got %s", got.Reserved)
	}
}

func TestSetJSON_Expiration(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	val := map[string]string{"key": "value"}
	if err := store.SetJSON(ctx, "test:key", val, 200*time.Millisecond); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	// Fast forward miniredis time
	mr.FastForward(300 * time.Millisecond)

	var got map[string]string
	err := store.GetJSON(ctx, "test:key", &got)
	if err == nil {
		t.Fatal("expected error for expired key, got nil")
	}
}

func TestArchiver_SnapshotsOnEvents(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	bus := eventbus.New()
	NewArchiver(store, nil).Attach(bus)

	bus.PublishSync(model.LiquidityConnectedEvent{
		Lender: "0xlender",
		Amount: decimal.NewFromInt(5000),
		Balance: model.LenderBalance{
			Lender:    "0xlender",
			Provided:  decimal.NewFromInt(5000),
			Available: decimal.NewFromInt(5000),
		},
	})

	got, err := store.GetBalanceSnapshot(ctx, "0xlender")
	if err != nil {
		t.Fatalf("GetBalanceSnapshot failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected balance snapshot after event")
	}
	if !got.Provided.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("expected provided=5000, got %s", got.Provided)
	}

	bus.PublishSync(model.AuctionCreatedEvent{Auction: model.Auction{
		ID:       7,
		Borrower: "0xb0rr0wer",
		Amount:   decimal.NewFromInt(9000),
		Status:   model.AuctionStatusOpen,
	}})

	auc, err := store.GetAuctionSnapshot(ctx, 7)
	if err != nil {
		t.Fatalf("GetAuctionSnapshot failed: %v", err)
	}
	if auc == nil || auc.Borrower != "0xb0rr0wer" {
		t.Fatalf("expected auction snapshot, got %+v", auc)
	}
}

func TestConcurrentJSONWrites(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val := map[string]int{"value": i}
			_ = store.SetJSON(ctx, "concurrent:key", val, time.Minute)
		}(i)
	}
	wg.Wait()

	var got map[string]int
	if err := store.GetJSON(ctx, "concurrent:key", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if _, ok := got["value"]; !ok {
		t.Fatal("expected value key in result")
	}
}

func TestSnapshotRoundTripPreservesJSON(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	a := model.Auction{
		ID:       1,
		Borrower: "0xb0rr0wer",
		Amount:   decimal.NewFromInt(5000),
		Status:   model.AuctionStatusFinalized,
		Bids: []model.Bid{
			{Lender: "0xlender", RateBps: 450, Limit: decimal.NewFromInt(5000), IsWinning: true},
		},
	}
	if err := store.SnapshotAuction(ctx, a); err != nil {
		t.Fatalf("SnapshotAuction failed: %v", err)
	}

	raw, err := mr.Get("credit:auction:1")
	if err != nil {
		t.Fatalf("raw get failed: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if parsed["borrower"] != "0xb0rr0wer" {
		t.Errorf("unexpected borrower in raw snapshot: %v", parsed["borrower"])
	}
}

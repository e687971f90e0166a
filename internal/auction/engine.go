package auction

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/internal/metrics"
	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Engine is the competitive-auction state machine. Ids are dense from 0.
// Bids are accepted strictly before the bidding window closes; after the
// deadline anyone may finalize, selecting the lowest rate with ties broken
// by earliest timestamp, then lowest index, so the winner is deterministic
// even under concurrent submission with identical timestamps.
type Engine struct {
	mu       sync.RWMutex
	auctions []*model.Auction
	bus      *eventbus.EventBus
	logger   *zap.Logger
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Deadline behavior is
// untestable against the wall clock, so tests inject their own.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a new auction engine.
func NewEngine(bus *eventbus.EventBus, logger *zap.Logger, opts ...Option) *Engine {
	if bus == nil {
		bus = eventbus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		bus:    bus,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create opens a new auction and returns its id. The bidding window closes
// at creation time + biddingDuration seconds.
func (e *Engine) Create(borrower string, amount decimal.Decimal, duration, biddingDuration uint64) (id uint64, err error) {
	defer func() { metrics.IncOperation("auction.create", model.ErrorKind(err)) }()

	if strings.TrimSpace(borrower) == "" {
		return 0, fmt.Errorf("%w: borrower is required", model.ErrInvalidInput)
	}
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", model.ErrInvalidInput)
	}
	if duration == 0 {
		return 0, fmt.Errorf("%w: duration must be positive", model.ErrInvalidInput)
	}
	if biddingDuration == 0 {
		return 0, fmt.Errorf("%w: bidding duration must be positive", model.ErrInvalidInput)
	}

	e.mu.Lock()
	now := e.clock()
	a := &model.Auction{
		ID:              uint64(len(e.auctions)),
		Borrower:        borrower,
		Amount:          amount,
		Duration:        duration,
		BiddingDuration: biddingDuration,
		EndTime:         now.Add(time.Duration(biddingDuration) * time.Second),
		Status:          model.AuctionStatusOpen,
		CreatedAt:       now,
	}
	e.auctions = append(e.auctions, a)
	snapshot := copyAuction(a)
	e.mu.Unlock()

	e.logger.Info("auction.created",
		zap.Uint64("auction_id", snapshot.ID),
		zap.String("borrower", borrower),
		zap.Time("end_time", snapshot.EndTime),
	)
	e.bus.Publish(model.AuctionCreatedEvent{Auction: snapshot})
	return snapshot.ID, nil
}

// PlaceBid appends a lender bid to an open auction and returns its index.
// Re-bidding is allowed; each call appends a distinct bid so the full
// history stays auditable. Bids land in lock-acquisition order.
func (e *Engine) PlaceBid(auctionID uint64, lender string, rateBps uint32, limit decimal.Decimal) (index int, err error) {
	defer func() { metrics.IncOperation("auction.place_bid", model.ErrorKind(err)) }()

	if strings.TrimSpace(lender) == "" {
		return 0, fmt.Errorf("%w: lender is required", model.ErrInvalidInput)
	}
	if rateBps == 0 {
		return 0, fmt.Errorf("%w: rate must be positive", model.ErrInvalidInput)
	}
	if limit.Sign() <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive", model.ErrInvalidInput)
	}

	e.mu.Lock()
	a, err := e.locked(auctionID)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if a.Status != model.AuctionStatusOpen {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: auction %d is %s, bids require Open", model.ErrInvalidState, auctionID, a.Status)
	}
	now := e.clock()
	if !now.Before(a.EndTime) {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: auction %d bidding window closed at %s", model.ErrInvalidState, auctionID, a.EndTime.Format(time.RFC3339))
	}
	b := model.Bid{
		Lender:    lender,
		RateBps:   rateBps,
		Limit:     limit,
		Timestamp: now,
	}
	a.Bids = append(a.Bids, b)
	index = len(a.Bids) - 1
	e.mu.Unlock()

	e.logger.Info("auction.bid_placed",
		zap.Uint64("auction_id", auctionID),
		zap.Int("bid_index", index),
		zap.String("lender", lender),
		zap.Uint32("rate_bps", rateBps),
	)
	e.bus.Publish(model.BidPlacedEvent{AuctionID: auctionID, BidIndex: index, Bid: b})
	return index, nil
}

// Finalize closes the bidding and marks the winning bid. Callable by
// anyone once the window has ended; finalizing with zero bids still
// transitions the auction to Finalized, leaving settlement to fail with
// NoWinner rather than pretending a facility exists.
func (e *Engine) Finalize(auctionID uint64) (err error) {
	defer func() { metrics.IncOperation("auction.finalize", model.ErrorKind(err)) }()

	e.mu.Lock()
	a, err := e.locked(auctionID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if a.Status != model.AuctionStatusOpen {
		e.mu.Unlock()
		return fmt.Errorf("%w: auction %d is %s, finalize requires Open", model.ErrInvalidState, auctionID, a.Status)
	}
	if e.clock().Before(a.EndTime) {
		e.mu.Unlock()
		return fmt.Errorf("%w: auction %d ends at %s", model.ErrTooEarly, auctionID, a.EndTime.Format(time.RFC3339))
	}

	winner := selectWinner(a.Bids)
	if winner >= 0 {
		a.Bids[winner].IsWinning = true
	}
	a.Status = model.AuctionStatusFinalized
	snapshot := copyAuction(a)
	e.mu.Unlock()

	e.logger.Info("auction.finalized",
		zap.Uint64("auction_id", auctionID),
		zap.Int("winning_index", winner),
		zap.Int("bids", len(snapshot.Bids)),
	)
	e.bus.Publish(model.AuctionFinalizedEvent{Auction: snapshot, WinningIndex: winner})
	return nil
}

// SettleWinning runs the bridge's reservation step against the winning bid
// and flips the auction to Settled, all under the auction lock. A finalized
// auction without a winner fails NoWinner — a distinct, non-retryable
// outcome, never treated as success.
func (e *Engine) SettleWinning(auctionID uint64, reserve func(model.Bid) error) (b model.Bid, err error) {
	defer func() { metrics.IncOperation("auction.settle", model.ErrorKind(err)) }()

	e.mu.Lock()
	a, err := e.locked(auctionID)
	if err != nil {
		e.mu.Unlock()
		return model.Bid{}, err
	}
	if a.Status != model.AuctionStatusFinalized {
		e.mu.Unlock()
		return model.Bid{}, fmt.Errorf("%w: auction %d is %s, settle requires Finalized", model.ErrInvalidState, auctionID, a.Status)
	}
	winning, idx := a.WinningBid()
	if idx < 0 {
		e.mu.Unlock()
		return model.Bid{}, fmt.Errorf("%w: auction %d finalized with zero bids", model.ErrNoWinner, auctionID)
	}

	if err = reserve(winning); err != nil {
		e.mu.Unlock()
		return model.Bid{}, err
	}

	a.Status = model.AuctionStatusSettled
	snapshot := copyAuction(a)
	e.mu.Unlock()

	e.logger.Info("auction.settled",
		zap.Uint64("auction_id", auctionID),
		zap.String("lender", winning.Lender),
		zap.String("limit", winning.Limit.String()),
	)
	e.bus.Publish(model.AuctionSettledEvent{Auction: snapshot})
	return winning, nil
}

// Get returns a snapshot of an auction.
func (e *Engine) Get(auctionID uint64) (model.Auction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.locked(auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	return copyAuction(a), nil
}

// Bids returns a snapshot of an auction's bid sequence in arrival order.
func (e *Engine) Bids(auctionID uint64) ([]model.Bid, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.locked(auctionID)
	if err != nil {
		return nil, err
	}
	bids := make([]model.Bid, len(a.Bids))
	copy(bids, a.Bids)
	return bids, nil
}

// List returns snapshots of all auctions in id order.
func (e *Engine) List() []model.Auction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Auction, 0, len(e.auctions))
	for _, a := range e.auctions {
		out = append(out, copyAuction(a))
	}
	return out
}

// DueForFinalization returns the ids of open auctions whose bidding window
// has ended as of now. The background finalizer sweeps these.
func (e *Engine) DueForFinalization(now time.Time) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var due []uint64
	for _, a := range e.auctions {
		if a.Status == model.AuctionStatusOpen && !now.Before(a.EndTime) {
			due = append(due, a.ID)
		}
	}
	return due
}

// selectWinner returns the index of the bid with the lowest rate, ties
// broken by earliest timestamp then lowest index, or -1 for no bids.
func selectWinner(bids []model.Bid) int {
	winner := -1
	for i, b := range bids {
		if winner < 0 {
			winner = i
			continue
		}
		best := bids[winner]
		if b.RateBps < best.RateBps ||
			(b.RateBps == best.RateBps && b.Timestamp.Before(best.Timestamp)) {
			winner = i
		}
	}
	return winner
}

// locked returns the auction record; callers must hold the lock.
func (e *Engine) locked(auctionID uint64) (*model.Auction, error) {
	if auctionID >= uint64(len(e.auctions)) {
		return nil, fmt.Errorf("%w: auction %d", model.ErrNotFound, auctionID)
	}
	return e.auctions[auctionID], nil
}

func copyAuction(a *model.Auction) model.Auction {
	out := *a
	out.Bids = make([]model.Bid, len(a.Bids))
	copy(out.Bids, a.Bids)
	return out
}

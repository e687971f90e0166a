package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/internal/auction"
	"github.com/aqua-x402/credit-engine/internal/liquidity"
	"github.com/aqua-x402/credit-engine/internal/metrics"
	"github.com/aqua-x402/credit-engine/internal/rfq"
	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// NoCreditLine is the reverse-index sentinel: credit-line ids start at 1,
// so 0 always means "no facility exists for this negotiation".
const NoCreditLine uint64 = 0

// Bridge converts a finalized negotiation into a funded facility. It
// reserves the winning lender's capital, creates exactly one CreditLine
// per (sourceKind, sourceId), and flips the negotiation to its terminal
// success state — observed as a single atomic unit.
//
// Lock order is fixed everywhere: bridge, then negotiation engine, then
// lender balance. The bridge lock serializes issuance so the idempotency
// guard and the reverse-index write cannot race; the reservation and
// status flip run inside the negotiation engine's lock via its execute
// hook.
type Bridge struct {
	mu       sync.Mutex
	rfqs     *rfq.Engine
	auctions *auction.Engine
	pool     *liquidity.Pool

	lines     []model.CreditLine
	byRFQ     map[uint64]uint64
	byAuction map[uint64]uint64

	bus    *eventbus.EventBus
	logger *zap.Logger
	clock  func() time.Time
}

// New creates a credit-line bridge over the given engines and pool.
func New(rfqs *rfq.Engine, auctions *auction.Engine, pool *liquidity.Pool, bus *eventbus.EventBus, logger *zap.Logger) *Bridge {
	if bus == nil {
		bus = eventbus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		rfqs:      rfqs,
		auctions:  auctions,
		pool:      pool,
		byRFQ:     make(map[uint64]uint64),
		byAuction: make(map[uint64]uint64),
		bus:       bus,
		logger:    logger,
		clock:     time.Now,
	}
}

// ExecuteRFQ binds a closed RFQ's accepted quote to reserved liquidity and
// issues the credit line. Fails AlreadyExecuted — before any mutation — if
// a facility already exists for the RFQ. On InsufficientFunds nothing
// changes: the RFQ stays Closed and the call can be retried after the
// lender provides more liquidity.
func (b *Bridge) ExecuteRFQ(rfqID uint64) (lineID uint64, err error) {
	defer func() { metrics.IncOperation("bridge.execute_rfq", model.ErrorKind(err)) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byRFQ[rfqID]; ok {
		return existing, fmt.Errorf("%w: rfq %d already issued credit line %d", model.ErrAlreadyExecuted, rfqID, existing)
	}

	// The borrower is immutable after creation, so reading it ahead of the
	// execute hook cannot race with anything that matters.
	r, err := b.rfqs.Get(rfqID)
	if err != nil {
		return NoCreditLine, err
	}

	var line model.CreditLine
	_, err = b.rfqs.ExecuteAccepted(rfqID, func(q model.Quote) error {
		if rerr := b.pool.Reserve(q.Lender, q.Limit); rerr != nil {
			return rerr
		}
		line = b.issueLocked(model.SourceRFQ, rfqID, r.Borrower, q.Lender, q.RateBps, q.Limit)
		return nil
	})
	if err != nil {
		return NoCreditLine, err
	}

	b.byRFQ[rfqID] = line.ID
	b.logger.Info("bridge.rfq_executed",
		zap.Uint64("rfq_id", rfqID),
		zap.Uint64("credit_line_id", line.ID),
	)
	metrics.CreditLinesTotal.WithLabelValues(string(model.SourceRFQ)).Inc()
	b.bus.Publish(model.CreditLineCreatedFromRFQEvent{RFQID: rfqID, CreditLine: line})
	return line.ID, nil
}

// SettleAuction binds a finalized auction's winning bid to reserved
// liquidity and issues the credit line. A finalized auction with zero bids
// fails NoWinner and can never settle.
func (b *Bridge) SettleAuction(auctionID uint64) (lineID uint64, err error) {
	defer func() { metrics.IncOperation("bridge.settle_auction", model.ErrorKind(err)) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byAuction[auctionID]; ok {
		return existing, fmt.Errorf("%w: auction %d already issued credit line %d", model.ErrAlreadyExecuted, auctionID, existing)
	}

	a, err := b.auctions.Get(auctionID)
	if err != nil {
		return NoCreditLine, err
	}

	var line model.CreditLine
	_, err = b.auctions.SettleWinning(auctionID, func(bid model.Bid) error {
		if rerr := b.pool.Reserve(bid.Lender, bid.Limit); rerr != nil {
			return rerr
		}
		line = b.issueLocked(model.SourceAuction, auctionID, a.Borrower, bid.Lender, bid.RateBps, bid.Limit)
		return nil
	})
	if err != nil {
		return NoCreditLine, err
	}

	b.byAuction[auctionID] = line.ID
	b.logger.Info("bridge.auction_settled",
		zap.Uint64("auction_id", auctionID),
		zap.Uint64("credit_line_id", line.ID),
	)
	metrics.CreditLinesTotal.WithLabelValues(string(model.SourceAuction)).Inc()
	b.bus.Publish(model.CreditLineCreatedFromAuctionEvent{AuctionID: auctionID, CreditLine: line})
	return line.ID, nil
}

// CreditLineFromRFQ returns the credit line id issued for an RFQ, or
// NoCreditLine when none exists.
func (b *Bridge) CreditLineFromRFQ(rfqID uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byRFQ[rfqID]
}

// CreditLineFromAuction returns the credit line id issued for an auction,
// or NoCreditLine when none exists.
func (b *Bridge) CreditLineFromAuction(auctionID uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byAuction[auctionID]
}

// CreditLine returns the immutable facility record for an id.
func (b *Bridge) CreditLine(id uint64) (model.CreditLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == NoCreditLine || id > uint64(len(b.lines)) {
		return model.CreditLine{}, fmt.Errorf("%w: credit line %d", model.ErrNotFound, id)
	}
	return b.lines[id-1], nil
}

// Lines returns snapshots of all issued credit lines in id order.
func (b *Bridge) Lines() []model.CreditLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.CreditLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// issueLocked appends the next credit line record; callers hold b.mu.
func (b *Bridge) issueLocked(kind model.SourceKind, sourceID uint64, borrower, lender string, rateBps uint32, limit decimal.Decimal) model.CreditLine {
	line := model.CreditLine{
		ID:         uint64(len(b.lines)) + 1,
		Borrower:   borrower,
		Lender:     lender,
		RateBps:    rateBps,
		Limit:      limit,
		SourceKind: kind,
		SourceID:   sourceID,
		CreatedAt:  b.clock(),
	}
	b.lines = append(b.lines, line)
	return line
}

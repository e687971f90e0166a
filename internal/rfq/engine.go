package rfq

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

// Engine is the RFQ negotiation state machine. Ids are dense, assigned in
// creation order starting at 0. All mutations serialize on a single lock;
// reads copy out so callers never observe a torn record.
//
// RFQ is a bilateral negotiation: the engine performs no scoring or
// ranking of quotes — choosing between them is the borrower's call.
type Engine struct {
	mu     sync.RWMutex
	rfqs   []*model.RFQ
	bus    *eventbus.EventBus
	logger *zap.Logger
	clock  func() time.Time
}

// NewEngine creates a new RFQ engine.
func NewEngine(bus *eventbus.EventBus, logger *zap.Logger) *Engine {
	if bus == nil {
		bus = eventbus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		bus:    bus,
		logger: logger,
		clock:  time.Now,
	}
}

// Create opens a new RFQ for the borrower and returns its id.
func (e *Engine) Create(borrower string, amount decimal.Decimal, duration uint64, collateral model.CollateralType, flowDescription string) (id uint64, err error) {
	defer func() { metrics.IncOperation("rfq.create", model.ErrorKind(err)) }()

	if strings.TrimSpace(borrower) == "" {
		return 0, fmt.Errorf("%w: borrower is required", model.ErrInvalidInput)
	}
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", model.ErrInvalidInput)
	}
	if duration == 0 {
		return 0, fmt.Errorf("%w: duration must be positive", model.ErrInvalidInput)
	}
	if !collateral.Valid() {
		return 0, fmt.Errorf("%w: unknown collateral type %q", model.ErrInvalidInput, collateral)
	}

	e.mu.Lock()
	r := &model.RFQ{
		ID:              uint64(len(e.rfqs)),
		Borrower:        borrower,
		Amount:          amount,
		Duration:        duration,
		CollateralType:  collateral,
		FlowDescription: flowDescription,
		Status:          model.RFQStatusOpen,
		CreatedAt:       e.clock(),
	}
	e.rfqs = append(e.rfqs, r)
	snapshot := copyRFQ(r)
	e.mu.Unlock()

	e.logger.Info("rfq.created",
		zap.Uint64("rfq_id", snapshot.ID),
		zap.String("borrower", borrower),
		zap.String("amount", amount.String()),
	)
	e.bus.Publish(model.RFQCreatedEvent{RFQ: snapshot})
	return snapshot.ID, nil
}

// SubmitQuote appends a lender quote to an open RFQ and returns its index.
// Arrival order at the lock is the quote index; it is the only tie-break
// the borrower gets, so quotes are never reordered.
func (e *Engine) SubmitQuote(rfqID uint64, lender string, rateBps uint32, limit, collateralRequired decimal.Decimal) (index int, err error) {
	defer func() { metrics.IncOperation("rfq.submit_quote", model.ErrorKind(err)) }()

	if strings.TrimSpace(lender) == "" {
		return 0, fmt.Errorf("%w: lender is required", model.ErrInvalidInput)
	}
	if rateBps == 0 {
		return 0, fmt.Errorf("%w: rate must be positive", model.ErrInvalidInput)
	}
	if limit.Sign() <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive", model.ErrInvalidInput)
	}
	if collateralRequired.Sign() < 0 {
		return 0, fmt.Errorf("%w: collateral required cannot be negative", model.ErrInvalidInput)
	}

	e.mu.Lock()
	r, err := e.locked(rfqID)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if r.Status != model.RFQStatusOpen {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: rfq %d is %s, quotes require Open", model.ErrInvalidState, rfqID, r.Status)
	}
	q := model.Quote{
		Lender:             lender,
		RateBps:            rateBps,
		Limit:              limit,
		CollateralRequired: collateralRequired,
		SubmittedAt:        e.clock(),
	}
	r.Quotes = append(r.Quotes, q)
	index = len(r.Quotes) - 1
	e.mu.Unlock()

	e.logger.Info("rfq.quote_submitted",
		zap.Uint64("rfq_id", rfqID),
		zap.Int("quote_index", index),
		zap.String("lender", lender),
		zap.Uint32("rate_bps", rateBps),
	)
	e.bus.Publish(model.QuoteSubmittedEvent{RFQID: rfqID, QuoteIndex: index, Quote: q})
	return index, nil
}

// AcceptQuote marks one quote accepted and closes the RFQ for execution.
// Only the borrower may accept, only while Open, and only once.
func (e *Engine) AcceptQuote(caller string, rfqID uint64, quoteIndex int) (err error) {
	defer func() { metrics.IncOperation("rfq.accept_quote", model.ErrorKind(err)) }()

	e.mu.Lock()
	r, err := e.locked(rfqID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if caller != r.Borrower {
		e.mu.Unlock()
		return fmt.Errorf("%w: only the borrower may accept a quote", model.ErrUnauthorized)
	}
	if _, i := r.AcceptedQuote(); i >= 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: rfq %d already accepted quote %d", model.ErrAlreadyAccepted, rfqID, i)
	}
	if r.Status != model.RFQStatusOpen {
		e.mu.Unlock()
		return fmt.Errorf("%w: rfq %d is %s, accept requires Open", model.ErrInvalidState, rfqID, r.Status)
	}
	if quoteIndex < 0 || quoteIndex >= len(r.Quotes) {
		e.mu.Unlock()
		return fmt.Errorf("%w: rfq %d has no quote %d", model.ErrNotFound, rfqID, quoteIndex)
	}

	r.Quotes[quoteIndex].Accepted = true
	r.Status = model.RFQStatusClosed
	accepted := r.Quotes[quoteIndex]
	e.mu.Unlock()

	e.logger.Info("rfq.quote_accepted",
		zap.Uint64("rfq_id", rfqID),
		zap.Int("quote_index", quoteIndex),
		zap.String("lender", accepted.Lender),
	)
	e.bus.Publish(model.QuoteAcceptedEvent{RFQID: rfqID, QuoteIndex: quoteIndex, Quote: accepted})
	return nil
}

// Cancel abandons an open RFQ. Only the borrower may cancel; cancellation
// is terminal, there is no reopen path.
func (e *Engine) Cancel(caller string, rfqID uint64) (err error) {
	defer func() { metrics.IncOperation("rfq.cancel", model.ErrorKind(err)) }()

	e.mu.Lock()
	r, err := e.locked(rfqID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if caller != r.Borrower {
		e.mu.Unlock()
		return fmt.Errorf("%w: only the borrower may cancel", model.ErrUnauthorized)
	}
	if r.Status != model.RFQStatusOpen {
		e.mu.Unlock()
		return fmt.Errorf("%w: rfq %d is %s, cancel requires Open", model.ErrInvalidState, rfqID, r.Status)
	}
	r.Status = model.RFQStatusCancelled
	snapshot := copyRFQ(r)
	e.mu.Unlock()

	e.logger.Info("rfq.cancelled", zap.Uint64("rfq_id", rfqID))
	e.bus.Publish(model.RFQCancelledEvent{RFQ: snapshot})
	return nil
}

// ExecuteAccepted runs the bridge's reservation step against the accepted
// quote and flips the RFQ to Executed, all under the RFQ lock: no reader
// can see the reservation succeed while the RFQ is still Closed. If
// reserve fails the RFQ stays Closed, so execution can be retried once
// more liquidity is provided.
func (e *Engine) ExecuteAccepted(rfqID uint64, reserve func(model.Quote) error) (q model.Quote, err error) {
	defer func() { metrics.IncOperation("rfq.execute", model.ErrorKind(err)) }()

	e.mu.Lock()
	r, err := e.locked(rfqID)
	if err != nil {
		e.mu.Unlock()
		return model.Quote{}, err
	}
	if r.Status != model.RFQStatusClosed {
		e.mu.Unlock()
		return model.Quote{}, fmt.Errorf("%w: rfq %d is %s, execute requires Closed", model.ErrInvalidState, rfqID, r.Status)
	}
	accepted, idx := r.AcceptedQuote()
	if idx < 0 {
		e.mu.Unlock()
		return model.Quote{}, fmt.Errorf("%w: rfq %d has no accepted quote", model.ErrInvalidState, rfqID)
	}

	if err = reserve(accepted); err != nil {
		e.mu.Unlock()
		return model.Quote{}, err
	}

	r.Status = model.RFQStatusExecuted
	snapshot := copyRFQ(r)
	e.mu.Unlock()

	e.logger.Info("rfq.executed",
		zap.Uint64("rfq_id", rfqID),
		zap.String("lender", accepted.Lender),
		zap.String("limit", accepted.Limit.String()),
	)
	e.bus.Publish(model.RFQExecutedEvent{RFQ: snapshot})
	return accepted, nil
}

// Get returns a snapshot of an RFQ.
func (e *Engine) Get(rfqID uint64) (model.RFQ, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, err := e.locked(rfqID)
	if err != nil {
		return model.RFQ{}, err
	}
	return copyRFQ(r), nil
}

// Quotes returns a snapshot of an RFQ's quote sequence in arrival order.
func (e *Engine) Quotes(rfqID uint64) ([]model.Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, err := e.locked(rfqID)
	if err != nil {
		return nil, err
	}
	quotes := make([]model.Quote, len(r.Quotes))
	copy(quotes, r.Quotes)
	return quotes, nil
}

// List returns snapshots of all RFQs in id order.
func (e *Engine) List() []model.RFQ {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.RFQ, 0, len(e.rfqs))
	for _, r := range e.rfqs {
		out = append(out, copyRFQ(r))
	}
	return out
}

// locked returns the RFQ record; callers must hold the lock.
func (e *Engine) locked(rfqID uint64) (*model.RFQ, error) {
	if rfqID >= uint64(len(e.rfqs)) {
		return nil, fmt.Errorf("%w: rfq %d", model.ErrNotFound, rfqID)
	}
	return e.rfqs[rfqID], nil
}

func copyRFQ(r *model.RFQ) model.RFQ {
	out := *r
	out.Quotes = make([]model.Quote, len(r.Quotes))
	copy(out.Quotes, r.Quotes)
	return out
}

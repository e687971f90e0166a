package liquidity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/internal/metrics"
	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Pool is the per-lender liquidity ledger. Each lender holds a
// (provided, reserved) pair; reserved never exceeds provided, for every
// lender, under all concurrent operations. That is the central safety
// property of the whole engine. Entries are created on first Provide and
// never deleted, so zero balances persist.
type Pool struct {
	mu      sync.Mutex
	ledgers map[string]*ledger
	bus     *eventbus.EventBus
	logger  *zap.Logger
}

type ledger struct {
	provided decimal.Decimal
	reserved decimal.Decimal
}

// NewPool creates an empty liquidity pool.
func NewPool(bus *eventbus.EventBus, logger *zap.Logger) *Pool {
	if bus == nil {
		bus = eventbus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		ledgers: make(map[string]*ledger),
		bus:     bus,
		logger:  logger,
	}
}

// Provide adds capital to the lender's ledger.
func (p *Pool) Provide(lender string, amount decimal.Decimal) (err error) {
	defer func() { metrics.IncOperation("liquidity.provide", model.ErrorKind(err)) }()

	if err = validate(lender, amount); err != nil {
		return err
	}

	p.mu.Lock()
	l := p.ledger(lender)
	l.provided = l.provided.Add(amount)
	balance := p.balanceLocked(lender, l)
	p.mu.Unlock()

	metrics.LiquidityProvided.Add(amount.InexactFloat64())
	p.logger.Info("liquidity.connected",
		zap.String("lender", lender),
		zap.String("amount", amount.String()),
		zap.String("provided", balance.Provided.String()),
	)
	p.bus.Publish(model.LiquidityConnectedEvent{Lender: lender, Amount: amount, Balance: balance})
	return nil
}

// Withdraw removes unreserved capital from the lender's ledger.
func (p *Pool) Withdraw(lender string, amount decimal.Decimal) (err error) {
	defer func() { metrics.IncOperation("liquidity.withdraw", model.ErrorKind(err)) }()

	if err = validate(lender, amount); err != nil {
		return err
	}

	p.mu.Lock()
	l := p.ledger(lender)
	if amount.GreaterThan(l.provided.Sub(l.reserved)) {
		p.mu.Unlock()
		return fmt.Errorf("%w: withdraw %s exceeds available %s for %s",
			model.ErrInsufficientFunds, amount, l.provided.Sub(l.reserved), lender)
	}
	l.provided = l.provided.Sub(amount)
	balance := p.balanceLocked(lender, l)
	p.mu.Unlock()

	metrics.LiquidityProvided.Sub(amount.InexactFloat64())
	p.logger.Info("liquidity.withdrawn",
		zap.String("lender", lender),
		zap.String("amount", amount.String()),
	)
	p.bus.Publish(model.LiquidityWithdrawnEvent{Lender: lender, Amount: amount, Balance: balance})
	return nil
}

// Reserve earmarks capital against a facility without transferring it.
// The availability check and the increment happen under one lock, so two
// executions racing for the same lender's capital cannot both succeed
// beyond what is provided.
func (p *Pool) Reserve(lender string, amount decimal.Decimal) (err error) {
	defer func() { metrics.IncOperation("liquidity.reserve", model.ErrorKind(err)) }()

	if err = validate(lender, amount); err != nil {
		return err
	}

	p.mu.Lock()
	l := p.ledger(lender)
	if amount.GreaterThan(l.provided.Sub(l.reserved)) {
		p.mu.Unlock()
		return fmt.Errorf("%w: reserve %s exceeds available %s for %s",
			model.ErrInsufficientFunds, amount, l.provided.Sub(l.reserved), lender)
	}
	l.reserved = l.reserved.Add(amount)
	balance := p.balanceLocked(lender, l)
	p.mu.Unlock()

	metrics.LiquidityReserved.Add(amount.InexactFloat64())
	p.logger.Info("liquidity.reserved",
		zap.String("lender", lender),
		zap.String("amount", amount.String()),
		zap.String("reserved", balance.Reserved.String()),
	)
	p.bus.Publish(model.LiquidityReservedEvent{Lender: lender, Amount: amount, Balance: balance})
	return nil
}

// Release returns reserved capital to the available balance. Used on
// facility closure or rollback, both triggered externally.
func (p *Pool) Release(lender string, amount decimal.Decimal) (err error) {
	defer func() { metrics.IncOperation("liquidity.release", model.ErrorKind(err)) }()

	if err = validate(lender, amount); err != nil {
		return err
	}

	p.mu.Lock()
	l := p.ledger(lender)
	if amount.GreaterThan(l.reserved) {
		p.mu.Unlock()
		return fmt.Errorf("%w: release %s exceeds reserved %s for %s",
			model.ErrInvalidState, amount, l.reserved, lender)
	}
	l.reserved = l.reserved.Sub(amount)
	balance := p.balanceLocked(lender, l)
	p.mu.Unlock()

	metrics.LiquidityReserved.Sub(amount.InexactFloat64())
	p.logger.Info("liquidity.released",
		zap.String("lender", lender),
		zap.String("amount", amount.String()),
	)
	p.bus.Publish(model.LiquidityReleasedEvent{Lender: lender, Amount: amount, Balance: balance})
	return nil
}

// Available returns provided minus reserved for the lender. Unknown
// lenders have zero available; asking is not an error.
func (p *Pool) Available(lender string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.ledgers[lender]
	if !ok {
		return decimal.Zero
	}
	return l.provided.Sub(l.reserved)
}

// Balance returns a snapshot of the lender's ledger entry.
func (p *Pool) Balance(lender string) model.LenderBalance {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.ledgers[lender]
	if !ok {
		return model.LenderBalance{
			Lender:    lender,
			Provided:  decimal.Zero,
			Reserved:  decimal.Zero,
			Available: decimal.Zero,
		}
	}
	return p.balanceLocked(lender, l)
}

// ledger returns the lender's entry, creating it on first use; callers
// must hold the lock.
func (p *Pool) ledger(lender string) *ledger {
	l, ok := p.ledgers[lender]
	if !ok {
		l = &ledger{provided: decimal.Zero, reserved: decimal.Zero}
		p.ledgers[lender] = l
	}
	return l
}

func (p *Pool) balanceLocked(lender string, l *ledger) model.LenderBalance {
	return model.LenderBalance{
		Lender:    lender,
		Provided:  l.provided,
		Reserved:  l.reserved,
		Available: l.provided.Sub(l.reserved),
	}
}

func validate(lender string, amount decimal.Decimal) error {
	if strings.TrimSpace(lender) == "" {
		return fmt.Errorf("%w: lender is required", model.ErrInvalidInput)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", model.ErrInvalidInput)
	}
	return nil
}

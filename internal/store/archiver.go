package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Archiver mirrors engine events into the read-side store: every event
// lands in the Postgres event log, and events carrying full state refresh
// the Redis snapshot or the credit-line projection. Write failures are
// logged and dropped; the engines stay authoritative.
type Archiver struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
}

// NewArchiver creates an archiver over the given store.
func NewArchiver(store Store, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:   store,
		logger:  logger,
		timeout: 3 * time.Second,
	}
}

// Attach subscribes the archiver to every domain event type on the bus.
func (a *Archiver) Attach(bus *eventbus.EventBus) {
	for _, proto := range model.EventPrototypes() {
		bus.Subscribe(proto, func(event interface{}) {
			if evt, ok := event.(model.Event); ok {
				a.handle(evt)
			}
		})
	}
}

func (a *Archiver) handle(evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	env, err := model.NewEnvelope(evt)
	if err != nil {
		a.logger.Error("archiver.envelope_failed",
			zap.String("event_type", evt.EventType()),
			zap.Error(err),
		)
		return
	}
	if err := a.store.RecordEvent(ctx, env); err != nil {
		a.logger.Warn("archiver.event_log_failed",
			zap.String("event_type", evt.EventType()),
			zap.Error(err),
		)
	}

	switch e := evt.(type) {
	case model.RFQCreatedEvent:
		a.snapshotRFQ(ctx, e.RFQ)
	case model.RFQExecutedEvent:
		a.snapshotRFQ(ctx, e.RFQ)
	case model.RFQCancelledEvent:
		a.snapshotRFQ(ctx, e.RFQ)
	case model.AuctionCreatedEvent:
		a.snapshotAuction(ctx, e.Auction)
	case model.AuctionFinalizedEvent:
		a.snapshotAuction(ctx, e.Auction)
	case model.AuctionSettledEvent:
		a.snapshotAuction(ctx, e.Auction)
	case model.LiquidityConnectedEvent:
		a.snapshotBalance(ctx, e.Balance)
	case model.LiquidityWithdrawnEvent:
		a.snapshotBalance(ctx, e.Balance)
	case model.LiquidityReservedEvent:
		a.snapshotBalance(ctx, e.Balance)
	case model.LiquidityReleasedEvent:
		a.snapshotBalance(ctx, e.Balance)
	case model.CreditLineCreatedFromRFQEvent:
		a.upsertLine(ctx, e.CreditLine)
	case model.CreditLineCreatedFromAuctionEvent:
		a.upsertLine(ctx, e.CreditLine)
	}
}

func (a *Archiver) snapshotRFQ(ctx context.Context, r model.RFQ) {
	if err := a.store.SnapshotRFQ(ctx, r); err != nil {
		a.logger.Warn("archiver.rfq_snapshot_failed", zap.Uint64("rfq_id", r.ID), zap.Error(err))
	}
}

func (a *Archiver) snapshotAuction(ctx context.Context, auc model.Auction) {
	if err := a.store.SnapshotAuction(ctx, auc); err != nil {
		a.logger.Warn("archiver.auction_snapshot_failed", zap.Uint64("auction_id", auc.ID), zap.Error(err))
	}
}

func (a *Archiver) snapshotBalance(ctx context.Context, b model.LenderBalance) {
	if err := a.store.SnapshotBalance(ctx, b); err != nil {
		a.logger.Warn("archiver.balance_snapshot_failed", zap.String("lender", b.Lender), zap.Error(err))
	}
}

func (a *Archiver) upsertLine(ctx context.Context, line model.CreditLine) {
	if err := a.store.UpsertCreditLine(ctx, line); err != nil {
		a.logger.Warn("archiver.credit_line_upsert_failed", zap.Uint64("credit_line_id", line.ID), zap.Error(err))
	}
}

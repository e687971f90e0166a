package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is one closed variant per engine state transition. Events are
// emitted for external indexing and notification; they are never required
// for correctness.
type Event interface {
	// EventType returns the canonical dotted event name, e.g. "rfq.created".
	EventType() string
}

// --- RFQ engine events ---

type RFQCreatedEvent struct {
	RFQ RFQ `json:"rfq"`
}

func (RFQCreatedEvent) EventType() string { return "rfq.created" }

type QuoteSubmittedEvent struct {
	RFQID      uint64 `json:"rfq_id"`
	QuoteIndex int    `json:"quote_index"`
	Quote      Quote  `json:"quote"`
}

func (QuoteSubmittedEvent) EventType() string { return "rfq.quote_submitted" }

type QuoteAcceptedEvent struct {
	RFQID      uint64 `json:"rfq_id"`
	QuoteIndex int    `json:"quote_index"`
	Quote      Quote  `json:"quote"`
}

func (QuoteAcceptedEvent) EventType() string { return "rfq.quote_accepted" }

type RFQExecutedEvent struct {
	RFQ RFQ `json:"rfq"`
}

func (RFQExecutedEvent) EventType() string { return "rfq.executed" }

type RFQCancelledEvent struct {
	RFQ RFQ `json:"rfq"`
}

func (RFQCancelledEvent) EventType() string { return "rfq.cancelled" }

// --- Auction engine events ---

type AuctionCreatedEvent struct {
	Auction Auction `json:"auction"`
}

func (AuctionCreatedEvent) EventType() string { return "auction.created" }

type BidPlacedEvent struct {
	AuctionID uint64 `json:"auction_id"`
	BidIndex  int    `json:"bid_index"`
	Bid       Bid    `json:"bid"`
}

func (BidPlacedEvent) EventType() string { return "auction.bid_placed" }

type AuctionFinalizedEvent struct {
	Auction      Auction `json:"auction"`
	WinningIndex int     `json:"winning_index"` // -1 when the auction had no bids
}

func (AuctionFinalizedEvent) EventType() string { return "auction.finalized" }

type AuctionSettledEvent struct {
	Auction Auction `json:"auction"`
}

func (AuctionSettledEvent) EventType() string { return "auction.settled" }

// --- Liquidity pool events ---

type LiquidityConnectedEvent struct {
	Lender  string          `json:"lender"`
	Amount  decimal.Decimal `json:"amount"`
	Balance LenderBalance   `json:"balance"`
}

func (LiquidityConnectedEvent) EventType() string { return "liquidity.connected" }

type LiquidityWithdrawnEvent struct {
	Lender  string          `json:"lender"`
	Amount  decimal.Decimal `json:"amount"`
	Balance LenderBalance   `json:"balance"`
}

func (LiquidityWithdrawnEvent) EventType() string { return "liquidity.withdrawn" }

type LiquidityReservedEvent struct {
	Lender  string          `json:"lender"`
	Amount  decimal.Decimal `json:"amount"`
	Balance LenderBalance   `json:"balance"`
}

func (LiquidityReservedEvent) EventType() string { return "liquidity.reserved" }

type LiquidityReleasedEvent struct {
	Lender  string          `json:"lender"`
	Amount  decimal.Decimal `json:"amount"`
	Balance LenderBalance   `json:"balance"`
}

func (LiquidityReleasedEvent) EventType() string { return "liquidity.released" }

// --- Credit-line bridge events ---

type CreditLineCreatedFromRFQEvent struct {
	RFQID      uint64     `json:"rfq_id"`
	CreditLine CreditLine `json:"credit_line"`
}

func (CreditLineCreatedFromRFQEvent) EventType() string { return "credit_line.created_from_rfq" }

type CreditLineCreatedFromAuctionEvent struct {
	AuctionID  uint64     `json:"auction_id"`
	CreditLine CreditLine `json:"credit_line"`
}

func (CreditLineCreatedFromAuctionEvent) EventType() string { return "credit_line.created_from_auction" }

// EventPrototypes returns one zero value per event variant. Fan-out
// components use it to register a handler for every transition.
func EventPrototypes() []Event {
	return []Event{
		RFQCreatedEvent{},
		QuoteSubmittedEvent{},
		QuoteAcceptedEvent{},
		RFQExecutedEvent{},
		RFQCancelledEvent{},
		AuctionCreatedEvent{},
		BidPlacedEvent{},
		AuctionFinalizedEvent{},
		AuctionSettledEvent{},
		LiquidityConnectedEvent{},
		LiquidityWithdrawnEvent{},
		LiquidityReservedEvent{},
		LiquidityReleasedEvent{},
		CreditLineCreatedFromRFQEvent{},
		CreditLineCreatedFromAuctionEvent{},
	}
}

// Envelope is the canonical wire wrapper for published events.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a domain event in a canonical envelope.
func NewEnvelope(evt Event) (*Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         "evt.credit." + evt.EventType() + ".v1",
		EventType:     evt.EventType(),
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}

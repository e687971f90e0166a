package publisher

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// --- mock types ---

type mockJetStream struct {
	mu        sync.Mutex
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream", Sequence: 1}, nil
}

func (m *mockJetStream) messages() []*nats.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*nats.Msg, len(m.published))
	copy(out, m.published)
	return out
}

// --- helper ---

func newTestPublisher(fail bool) (*Publisher, *mockJetStream) {
	js := &mockJetStream{fail: fail}
	return &Publisher{
		js:      js,
		service: "credit-engine",
	}, js
}

// --- tests ---

func TestPublishEvent_Success(t *testing.T) {
	pub, js := newTestPublisher(false)

	evt := model.LiquidityReservedEvent{
		Lender: "0xlender",
		Amount: decimal.NewFromInt(1000),
		Balance: model.LenderBalance{
			Lender:    "0xlender",
			Provided:  decimal.NewFromInt(5000),
			Reserved:  decimal.NewFromInt(1000),
			Available: decimal.NewFromInt(4000),
		},
	}

	if err := pub.PublishEvent(evt); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	msgs := js.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(msgs))
	}

	msg := msgs[0]
	if msg.Subject != "evt.credit.liquidity.reserved.v1" {
		t.Errorf("unexpected subject: %s", msg.Subject)
	}

	// verify headers
	if msg.Header.Get("event_type") != "liquidity.reserved" {
		t.Errorf("expected header event_type=liquidity.reserved, got %s", msg.Header.Get("event_type"))
	}
	if msg.Header.Get("service") != "credit-engine" {
		t.Errorf("expected header service=credit-engine, got %s", msg.Header.Get("service"))
	}

	// verify the envelope round-trips
	var env model.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if env.EventType != "liquidity.reserved" {
		t.Errorf("expected event_type=liquidity.reserved, got %s", env.EventType)
	}
	if env.Version != "1.0.0" {
		t.Errorf("expected version=1.0.0, got %s", env.Version)
	}

	var payload model.LiquidityReservedEvent
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.Lender != "0xlender" {
		t.Errorf("expected lender=0xlender, got %s", payload.Lender)
	}
	if !payload.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected amount=1000, got %s", payload.Amount)
	}
}

func TestPublishEvent_Failure(t *testing.T) {
	pub, _ := newTestPublisher(true)

	err := pub.PublishEvent(model.RFQCancelledEvent{RFQ: model.RFQ{ID: 3}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAttach_FansOutBusEvents(t *testing.T) {
	pub, js := newTestPublisher(false)
	bus := eventbus.New()
	pub.Attach(bus)

	bus.PublishSync(model.RFQCreatedEvent{RFQ: model.RFQ{ID: 0, Borrower: "0xb"}})
	bus.PublishSync(model.AuctionSettledEvent{Auction: model.Auction{ID: 1}})

	msgs := js.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(msgs))
	}
	if msgs[0].Subject != "evt.credit.rfq.created.v1" {
		t.Errorf("unexpected first subject: %s", msgs[0].Subject)
	}
	if msgs[1].Subject != "evt.credit.auction.settled.v1" {
		t.Errorf("unexpected second subject: %s", msgs[1].Subject)
	}
}

package publisher

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aqua-x402/credit-engine/internal/metrics"
	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/logger"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// jetStreamPublisher is the slice of nats.JetStreamContext the publisher
// actually uses; tests substitute their own.
type jetStreamPublisher interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and provides helpers for publishing
// canonical event envelopes.
type Publisher struct {
	nc      *nats.Conn
	js      jetStreamPublisher
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
	}, nil
}

// Attach subscribes the publisher to every domain event type on the bus, so
// each engine mutation fans out to NATS without the engines knowing about
// transport.
func (p *Publisher) Attach(bus *eventbus.EventBus) {
	for _, proto := range model.EventPrototypes() {
		bus.Subscribe(proto, func(event interface{}) {
			if evt, ok := event.(model.Event); ok {
				_ = p.PublishEvent(evt)
			}
		})
	}
}

// PublishEvent wraps a domain event in a canonical envelope and publishes
// it to the envelope's topic.
func (p *Publisher) PublishEvent(evt model.Event) error {
	env, err := model.NewEnvelope(evt)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"event_type", evt.EventType(),
			"error", err,
		)
		metrics.IncEventPublished(evt.EventType(), "marshal_failed")
		return err
	}
	return p.PublishEnvelope(env)
}

// PublishEnvelope serializes and publishes a canonical event envelope to
// its topic.
func (p *Publisher) PublishEnvelope(env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", env.Topic,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncEventPublished(env.Topic, "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: env.Topic,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveOperation("publisher.publish", start)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", env.Topic,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncEventPublished(env.Topic, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", env.Topic,
		"event_type", env.EventType,
	)
	metrics.IncEventPublished(env.Topic, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

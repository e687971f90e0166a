package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/internal/config"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Consumer consumes queued lender commands from RabbitMQ and applies them
// to the matching engines. Agent gateways push commands here when they act
// on behalf of lenders instead of calling the HTTP API directly.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	service CommandService
	queues  config.CommandQueues
	logger  *zap.Logger
	done    chan struct{}
}

// CommandService applies lender commands to the engines.
type CommandService interface {
	SubmitQuote(rfqID uint64, lender string, rateBps uint32, limit, collateralRequired decimal.Decimal) (int, error)
	PlaceBid(auctionID uint64, lender string, rateBps uint32, limit decimal.Decimal) (int, error)
}

// NewConsumer creates a new RabbitMQ consumer.
func NewConsumer(url string, queues config.CommandQueues, service CommandService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		service: service,
		queues:  queues,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the command queues and starts consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(c.queues.SubmitQuote, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queues.SubmitQuote, err)
	}
	if _, err := c.channel.QueueDeclare(c.queues.PlaceBid, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queues.PlaceBid, err)
	}

	quoteMsgs, err := c.channel.Consume(c.queues.SubmitQuote, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queues.SubmitQuote, err)
	}
	bidMsgs, err := c.channel.Consume(c.queues.PlaceBid, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queues.PlaceBid, err)
	}

	c.logger.Info("Started consuming from RabbitMQ",
		zap.String("submitQuoteQueue", c.queues.SubmitQuote),
		zap.String("placeBidQueue", c.queues.PlaceBid),
	)

	go c.consumeQuotes(ctx, quoteMsgs)
	go c.consumeBids(ctx, bidMsgs)

	return nil
}

func (c *Consumer) consumeQuotes(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Submit-quote channel closed")
				return
			}

			c.logger.Debug("Received submit-quote command", zap.String("body", string(msg.Body)))

			var cmd model.SubmitQuoteCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("Failed to unmarshal SubmitQuoteCommand", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			_, err := c.service.SubmitQuote(cmd.RFQID, cmd.Lender, cmd.RateBps, cmd.Limit, cmd.CollateralRequired)
			if err != nil {
				c.logger.Error("Failed to submit quote",
					zap.Uint64("rfq_id", cmd.RFQID),
					zap.String("lender", cmd.Lender),
					zap.Error(err),
				)
				// Domain rejections are final; only internal failures requeue.
				msg.Nack(false, model.ErrorKind(err) == "internal")
				continue
			}

			msg.Ack(false)
		}
	}
}

func (c *Consumer) consumeBids(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Place-bid channel closed")
				return
			}

			c.logger.Debug("Received place-bid command", zap.String("body", string(msg.Body)))

			var cmd model.PlaceBidCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("Failed to unmarshal PlaceBidCommand", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			_, err := c.service.PlaceBid(cmd.AuctionID, cmd.Lender, cmd.RateBps, cmd.Limit)
			if err != nil {
				c.logger.Error("Failed to place bid",
					zap.Uint64("auction_id", cmd.AuctionID),
					zap.String("lender", cmd.Lender),
					zap.Error(err),
				)
				msg.Nack(false, model.ErrorKind(err) == "internal")
				continue
			}

			msg.Ack(false)
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

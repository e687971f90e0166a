package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Store defines the contract for the read side: Redis snapshots for hot
// lookups and Postgres for the immutable event log and credit-line
// projection. The engines never read from here; it exists for dashboards
// and downstream consumers.
type Store interface {
	RecordEvent(ctx context.Context, env *model.Envelope) error
	UpsertCreditLine(ctx context.Context, line model.CreditLine) error
	ListCreditLines(ctx context.Context, borrower string) ([]model.CreditLine, error)
	SnapshotRFQ(ctx context.Context, r model.RFQ) error
	SnapshotAuction(ctx context.Context, a model.Auction) error
	SnapshotBalance(ctx context.Context, b model.LenderBalance) error
	GetRFQSnapshot(ctx context.Context, id uint64) (*model.RFQ, error)
	GetAuctionSnapshot(ctx context.Context, id uint64) (*model.Auction, error)
	GetBalanceSnapshot(ctx context.Context, lender string) (*model.LenderBalance, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordEvent inserts an immutable event into credit.event_log.
func (s *HybridStore) RecordEvent(ctx context.Context, env *model.Envelope) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO credit.event_log (
			event_id, correlation_id, topic, event_type, version, payload, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, env.ID, env.CorrelationID, env.Topic, env.EventType, env.Version, env.Payload, env.Timestamp)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed",
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
	}
	return err
}

// UpsertCreditLine updates the credit-line projection table. Credit lines
// are immutable, so a replayed event writes identical values.
func (s *HybridStore) UpsertCreditLine(ctx context.Context, line model.CreditLine) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO credit.credit_line (
			credit_line_id, borrower, lender, rate_bps, credit_limit,
			source_kind, source_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (credit_line_id) DO NOTHING
	`, line.ID, line.Borrower, line.Lender, line.RateBps, line.Limit,
		line.SourceKind, line.SourceID, line.CreatedAt)
	if err != nil {
		s.logger.Error("store.pg.upsert_credit_line_failed",
			zap.Uint64("credit_line_id", line.ID),
			zap.Error(err),
		)
	}
	return err
}

// ListCreditLines reads the projection, optionally filtered by borrower.
func (s *HybridStore) ListCreditLines(ctx context.Context, borrower string) ([]model.CreditLine, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT credit_line_id, borrower, lender, rate_bps, credit_limit,
		       source_kind, source_id, created_at
		FROM credit.credit_line
		WHERE ($1 = '' OR borrower = $1)
		ORDER BY credit_line_id;
	`, borrower)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.CreditLine
	for rows.Next() {
		var line model.CreditLine
		if err := rows.Scan(&line.ID, &line.Borrower, &line.Lender, &line.RateBps,
			&line.Limit, &line.SourceKind, &line.SourceID, &line.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, line)
	}
	return results, nil
}

func (s *HybridStore) SnapshotRFQ(ctx context.Context, r model.RFQ) error {
	return s.SetJSON(ctx, rfqKey(r.ID), r, 0)
}

func (s *HybridStore) SnapshotAuction(ctx context.Context, a model.Auction) error {
	return s.SetJSON(ctx, auctionKey(a.ID), a, 0)
}

func (s *HybridStore) SnapshotBalance(ctx context.Context, b model.LenderBalance) error {
	return s.SetJSON(ctx, balanceKey(b.Lender), b, 0)
}

func (s *HybridStore) GetRFQSnapshot(ctx context.Context, id uint64) (*model.RFQ, error) {
	var r model.RFQ
	if err := s.GetJSON(ctx, rfqKey(id), &r); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *HybridStore) GetAuctionSnapshot(ctx context.Context, id uint64) (*model.Auction, error) {
	var a model.Auction
	if err := s.GetJSON(ctx, auctionKey(id), &a); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *HybridStore) GetBalanceSnapshot(ctx context.Context, lender string) (*model.LenderBalance, error) {
	var b model.LenderBalance
	if err := s.GetJSON(ctx, balanceKey(lender), &b); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func rfqKey(id uint64) string     { return fmt.Sprintf("credit:rfq:%d", id) }
func auctionKey(id uint64) string { return fmt.Sprintf("credit:auction:%d", id) }
func balanceKey(l string) string  { return fmt.Sprintf("credit:balance:%s", l) }

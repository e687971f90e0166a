package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aqua-x402/credit-engine/internal/store"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store, handler *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		if st != nil {
			healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := st.HealthCheck(healthCtx); err != nil {
				checks["store"] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")

	v1.Post("/rfqs", handler.CreateRFQHandler)
	v1.Get("/rfqs", handler.ListRFQsHandler)
	v1.Get("/rfqs/:id", handler.GetRFQHandler)
	v1.Get("/rfqs/:id/quotes", handler.ListQuotesHandler)
	v1.Post("/rfqs/:id/quotes", handler.SubmitQuoteHandler)
	v1.Post("/rfqs/:id/accept", handler.AcceptQuoteHandler)
	v1.Post("/rfqs/:id/cancel", handler.CancelRFQHandler)
	v1.Post("/rfqs/:id/execute", handler.ExecuteRFQHandler)
	v1.Get("/rfqs/:id/credit-line", handler.GetRFQCreditLineHandler)

	v1.Post("/auctions", handler.CreateAuctionHandler)
	v1.Get("/auctions", handler.ListAuctionsHandler)
	v1.Get("/auctions/:id", handler.GetAuctionHandler)
	v1.Get("/auctions/:id/bids", handler.ListBidsHandler)
	v1.Post("/auctions/:id/bids", handler.PlaceBidHandler)
	v1.Post("/auctions/:id/finalize", handler.FinalizeAuctionHandler)
	v1.Post("/auctions/:id/settle", handler.SettleAuctionHandler)
	v1.Get("/auctions/:id/credit-line", handler.GetAuctionCreditLineHandler)

	v1.Post("/liquidity/provide", handler.ProvideLiquidityHandler)
	v1.Post("/liquidity/withdraw", handler.WithdrawLiquidityHandler)
	v1.Post("/liquidity/release", handler.ReleaseLiquidityHandler)
	v1.Get("/liquidity/:lender", handler.GetBalanceHandler)

	v1.Get("/credit-lines", handler.ListCreditLinesHandler)
	v1.Get("/credit-lines/:id", handler.GetCreditLineHandler)
}

package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/pkg/model"
)

// RFQService defines the RFQ engine operations needed by the handler.
type RFQService interface {
	Create(borrower string, amount decimal.Decimal, duration uint64, collateral model.CollateralType, flowDescription string) (uint64, error)
	SubmitQuote(rfqID uint64, lender string, rateBps uint32, limit, collateralRequired decimal.Decimal) (int, error)
	AcceptQuote(caller string, rfqID uint64, quoteIndex int) error
	Cancel(caller string, rfqID uint64) error
	Get(rfqID uint64) (model.RFQ, error)
	Quotes(rfqID uint64) ([]model.Quote, error)
	List() []model.RFQ
}

// AuctionService defines the auction engine operations needed by the handler.
type AuctionService interface {
	Create(borrower string, amount decimal.Decimal, duration, biddingDuration uint64) (uint64, error)
	PlaceBid(auctionID uint64, lender string, rateBps uint32, limit decimal.Decimal) (int, error)
	Finalize(auctionID uint64) error
	Get(auctionID uint64) (model.Auction, error)
	Bids(auctionID uint64) ([]model.Bid, error)
	List() []model.Auction
}

// LiquidityService defines the pool operations needed by the handler.
type LiquidityService interface {
	Provide(lender string, amount decimal.Decimal) error
	Withdraw(lender string, amount decimal.Decimal) error
	Release(lender string, amount decimal.Decimal) error
	Balance(lender string) model.LenderBalance
}

// BridgeService defines the credit-line bridge operations needed by the
// handler.
type BridgeService interface {
	ExecuteRFQ(rfqID uint64) (uint64, error)
	SettleAuction(auctionID uint64) (uint64, error)
	CreditLine(id uint64) (model.CreditLine, error)
	CreditLineFromRFQ(rfqID uint64) uint64
	CreditLineFromAuction(auctionID uint64) uint64
	Lines() []model.CreditLine
}

// Handler handles HTTP API requests for the credit engine.
type Handler struct {
	logger    *zap.Logger
	rfqs      RFQService
	auctions  AuctionService
	liquidity LiquidityService
	bridge    BridgeService
}

// NewHandler creates a new Handler.
func NewHandler(logger *zap.Logger, rfqs RFQService, auctions AuctionService, liquidity LiquidityService, bridge BridgeService) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:    logger,
		rfqs:      rfqs,
		auctions:  auctions,
		liquidity: liquidity,
		bridge:    bridge,
	}
}

func idParam(c *fiber.Ctx) (uint64, error) {
	return strconv.ParseUint(c.Params("id"), 10, 64)
}

// --- RFQ handlers ---

// CreateRFQHandler opens a new request-for-quotes.
func (h *Handler) CreateRFQHandler(c *fiber.Ctx) error {
	var req CreateRFQRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	collateral := req.CollateralType
	if collateral == "" {
		collateral = model.CollateralNone
	}

	id, err := h.rfqs.Create(req.Borrower, req.Amount, req.DurationSeconds, collateral, req.FlowDescription)
	if err != nil {
		h.logger.Error("api.create_rfq.failed", zap.String("borrower", req.Borrower), zap.Error(err))
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreatedResponse{ID: id})
}

// ListRFQsHandler returns all RFQs.
func (h *Handler) ListRFQsHandler(c *fiber.Ctx) error {
	return c.JSON(h.rfqs.List())
}

// GetRFQHandler returns one RFQ with its quotes.
func (h *Handler) GetRFQHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	r, err := h.rfqs.Get(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(r)
}

// ListQuotesHandler returns an RFQ's quotes in arrival order.
func (h *Handler) ListQuotesHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	quotes, err := h.rfqs.Quotes(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(quotes)
}

// SubmitQuoteHandler appends a lender quote to an open RFQ.
func (h *Handler) SubmitQuoteHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req SubmitQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	index, err := h.rfqs.SubmitQuote(id, req.Lender, req.RateBps, req.Limit, req.CollateralRequired)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(IndexResponse{ID: id, Index: index})
}

// AcceptQuoteHandler selects a quote; borrower only.
func (h *Handler) AcceptQuoteHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req AcceptQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	if err := h.rfqs.AcceptQuote(req.Borrower, id, req.QuoteIndex); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": string(model.RFQStatusClosed)})
}

// CancelRFQHandler withdraws an open RFQ; borrower only.
func (h *Handler) CancelRFQHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req CancelRFQRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	if err := h.rfqs.Cancel(req.Borrower, id); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": string(model.RFQStatusCancelled)})
}

// ExecuteRFQHandler issues a credit line from the RFQ's accepted quote.
func (h *Handler) ExecuteRFQHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	lineID, err := h.bridge.ExecuteRFQ(id)
	if err != nil {
		h.logger.Error("api.execute_rfq.failed", zap.Uint64("rfq_id", id), zap.Error(err))
		return errorJSON(c, err)
	}

	line, err := h.bridge.CreditLine(lineID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreditLineResponse{CreditLineID: lineID, CreditLine: line})
}

// --- Auction handlers ---

// CreateAuctionHandler opens a new credit auction.
func (h *Handler) CreateAuctionHandler(c *fiber.Ctx) error {
	var req CreateAuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	id, err := h.auctions.Create(req.Borrower, req.Amount, req.DurationSeconds, req.BiddingDurationSeconds)
	if err != nil {
		h.logger.Error("api.create_auction.failed", zap.String("borrower", req.Borrower), zap.Error(err))
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreatedResponse{ID: id})
}

// ListAuctionsHandler returns all auctions.
func (h *Handler) ListAuctionsHandler(c *fiber.Ctx) error {
	return c.JSON(h.auctions.List())
}

// GetAuctionHandler returns one auction with its bids.
func (h *Handler) GetAuctionHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	a, err := h.auctions.Get(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(a)
}

// ListBidsHandler returns an auction's bids in arrival order.
func (h *Handler) ListBidsHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	bids, err := h.auctions.Bids(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(bids)
}

// PlaceBidHandler appends a lender bid to an open auction.
func (h *Handler) PlaceBidHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	index, err := h.auctions.PlaceBid(id, req.Lender, req.RateBps, req.Limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(IndexResponse{ID: id, Index: index})
}

// FinalizeAuctionHandler closes bidding and selects the winner. Open to
// anyone once the window has ended.
func (h *Handler) FinalizeAuctionHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	if err := h.auctions.Finalize(id); err != nil {
		return errorJSON(c, err)
	}
	a, err := h.auctions.Get(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(a)
}

// SettleAuctionHandler issues a credit line from the auction's winning bid.
func (h *Handler) SettleAuctionHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	lineID, err := h.bridge.SettleAuction(id)
	if err != nil {
		h.logger.Error("api.settle_auction.failed", zap.Uint64("auction_id", id), zap.Error(err))
		return errorJSON(c, err)
	}

	line, err := h.bridge.CreditLine(lineID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreditLineResponse{CreditLineID: lineID, CreditLine: line})
}

// --- Liquidity handlers ---

// ProvideLiquidityHandler adds capital to a lender's ledger.
func (h *Handler) ProvideLiquidityHandler(c *fiber.Ctx) error {
	var req LiquidityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	if err := h.liquidity.Provide(req.Lender, req.Amount); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(h.liquidity.Balance(req.Lender))
}

// WithdrawLiquidityHandler removes unreserved capital.
func (h *Handler) WithdrawLiquidityHandler(c *fiber.Ctx) error {
	var req LiquidityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	if err := h.liquidity.Withdraw(req.Lender, req.Amount); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(h.liquidity.Balance(req.Lender))
}

// ReleaseLiquidityHandler returns reserved capital to the available
// balance, e.g. when a facility is closed upstream.
func (h *Handler) ReleaseLiquidityHandler(c *fiber.Ctx) error {
	var req LiquidityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	if err := h.liquidity.Release(req.Lender, req.Amount); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(h.liquidity.Balance(req.Lender))
}

// GetBalanceHandler returns a lender's ledger snapshot. Unknown lenders
// report zero balances.
func (h *Handler) GetBalanceHandler(c *fiber.Ctx) error {
	lender := c.Params("lender")
	if lender == "" {
		return badRequest(c, fiber.ErrBadRequest)
	}
	return c.JSON(h.liquidity.Balance(lender))
}

// --- Credit line handlers ---

// ListCreditLinesHandler returns all issued credit lines.
func (h *Handler) ListCreditLinesHandler(c *fiber.Ctx) error {
	return c.JSON(h.bridge.Lines())
}

// GetCreditLineHandler returns one credit line by id.
func (h *Handler) GetCreditLineHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	line, err := h.bridge.CreditLine(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(line)
}

// GetRFQCreditLineHandler resolves the credit line issued for an RFQ.
func (h *Handler) GetRFQCreditLineHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	lineID := h.bridge.CreditLineFromRFQ(id)
	if lineID == 0 {
		return errorJSON(c, model.ErrNotFound)
	}
	line, err := h.bridge.CreditLine(lineID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(CreditLineResponse{CreditLineID: lineID, CreditLine: line})
}

// GetAuctionCreditLineHandler resolves the credit line issued for an
// auction.
func (h *Handler) GetAuctionCreditLineHandler(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	lineID := h.bridge.CreditLineFromAuction(id)
	if lineID == 0 {
		return errorJSON(c, model.ErrNotFound)
	}
	line, err := h.bridge.CreditLine(lineID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(CreditLineResponse{CreditLineID: lineID, CreditLine: line})
}

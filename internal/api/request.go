package api

import (
	"github.com/shopspring/decimal"

	"github.com/aqua-x402/credit-engine/pkg/model"
)

// CreateRFQRequest is the payload to open a request-for-quotes.
type CreateRFQRequest struct {
	Borrower        string               `json:"borrower" example:"0x4f3c..."`
	Amount          decimal.Decimal      `json:"amount" example:"1000"`
	DurationSeconds uint64               `json:"durationSeconds" example:"2592000"`
	CollateralType  model.CollateralType `json:"collateralType" example:"ERC20"`
	FlowDescription string               `json:"flowDescription,omitempty"`
}

// SubmitQuoteRequest is the payload for a lender quote against an open RFQ.
type SubmitQuoteRequest struct {
	Lender             string          `json:"lender"`
	RateBps            uint32          `json:"rateBps" example:"500"`
	Limit              decimal.Decimal `json:"limit" example:"1000"`
	CollateralRequired decimal.Decimal `json:"collateralRequired,omitempty"`
}

// AcceptQuoteRequest selects one quote on an RFQ. Only the borrower may
// accept.
type AcceptQuoteRequest struct {
	Borrower   string `json:"borrower"`
	QuoteIndex int    `json:"quoteIndex"`
}

// CancelRFQRequest withdraws an open RFQ.
type CancelRFQRequest struct {
	Borrower string `json:"borrower"`
}

// CreateAuctionRequest is the payload to open a credit auction.
type CreateAuctionRequest struct {
	Borrower               string          `json:"borrower"`
	Amount                 decimal.Decimal `json:"amount" example:"5000"`
	DurationSeconds        uint64          `json:"durationSeconds" example:"7776000"`
	BiddingDurationSeconds uint64          `json:"biddingDurationSeconds" example:"600"`
}

// PlaceBidRequest is the payload for a lender bid on an open auction.
type PlaceBidRequest struct {
	Lender  string          `json:"lender"`
	RateBps uint32          `json:"rateBps" example:"450"`
	Limit   decimal.Decimal `json:"limit" example:"5000"`
}

// LiquidityRequest moves capital in or out of a lender's ledger entry.
type LiquidityRequest struct {
	Lender string          `json:"lender"`
	Amount decimal.Decimal `json:"amount" example:"100000"`
}

package model

import "github.com/shopspring/decimal"

// SubmitQuoteCommand is the queued form of a lender quote submission.
type SubmitQuoteCommand struct {
	RFQID              uint64          `json:"rfq_id"`
	Lender             string          `json:"lender"`
	RateBps            uint32          `json:"rate_bps"`
	Limit              decimal.Decimal `json:"limit"`
	CollateralRequired decimal.Decimal `json:"collateral_required"`
}

// PlaceBidCommand is the queued form of a lender auction bid.
type PlaceBidCommand struct {
	AuctionID uint64          `json:"auction_id"`
	Lender    string          `json:"lender"`
	RateBps   uint32          `json:"rate_bps"`
	Limit     decimal.Decimal `json:"limit"`
}

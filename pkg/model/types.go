package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CollateralType identifies what kind of collateral backs a financing request.
type CollateralType string

const (
	CollateralNone  CollateralType = "None"
	CollateralERC20 CollateralType = "ERC20"
	CollateralNFT   CollateralType = "NFT"
)

// CollateralTypeFromCode converts the on-chain uint8 code to a CollateralType.
func CollateralTypeFromCode(code uint8) (CollateralType, bool) {
	switch code {
	case 0:
		return CollateralNone, true
	case 1:
		return CollateralERC20, true
	case 2:
		return CollateralNFT, true
	default:
		return "", false
	}
}

// Code returns the on-chain uint8 code.
func (t CollateralType) Code() uint8 {
	switch t {
	case CollateralERC20:
		return 1
	case CollateralNFT:
		return 2
	default:
		return 0
	}
}

// Valid returns true if the collateral type is one of the known constants.
func (t CollateralType) Valid() bool {
	switch t {
	case CollateralNone, CollateralERC20, CollateralNFT:
		return true
	default:
		return false
	}
}

func (t CollateralType) String() string {
	return string(t)
}

func (t *CollateralType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		*t = CollateralNone
	case "ERC20":
		*t = CollateralERC20
	case "NFT":
		*t = CollateralNFT
	default:
		return fmt.Errorf("invalid collateral type: %s", s)
	}
	return nil
}

// RFQStatus is the lifecycle state of an RFQ negotiation.
type RFQStatus string

const (
	RFQStatusOpen      RFQStatus = "Open"
	RFQStatusClosed    RFQStatus = "Closed"
	RFQStatusExecuted  RFQStatus = "Executed"
	RFQStatusCancelled RFQStatus = "Cancelled"
)

func (s RFQStatus) String() string { return string(s) }

// Terminal returns true once the RFQ can no longer change state.
func (s RFQStatus) Terminal() bool {
	return s == RFQStatusExecuted || s == RFQStatusCancelled
}

// AuctionStatus is the lifecycle state of an auction negotiation.
type AuctionStatus string

const (
	AuctionStatusOpen      AuctionStatus = "Open"
	AuctionStatusFinalized AuctionStatus = "Finalized"
	AuctionStatusSettled   AuctionStatus = "Settled"
	AuctionStatusCancelled AuctionStatus = "Cancelled"
)

func (s AuctionStatus) String() string { return string(s) }

// SourceKind tags which negotiation engine produced a credit line.
type SourceKind string

const (
	SourceRFQ     SourceKind = "RFQ"
	SourceAuction SourceKind = "Auction"
)

// Quote is a lender's offer against an open RFQ. Immutable once submitted,
// except for Accepted which is set at most once by the borrower.
type Quote struct {
	Lender             string          `json:"lender"`
	RateBps            uint32          `json:"rate_bps"`
	Limit              decimal.Decimal `json:"limit"`
	CollateralRequired decimal.Decimal `json:"collateral_required"`
	SubmittedAt        time.Time       `json:"submitted_at"`
	Accepted           bool            `json:"accepted"`
}

// RFQ is a bilateral negotiation: the borrower collects quotes and picks one.
type RFQ struct {
	ID              uint64          `json:"id"`
	Borrower        string          `json:"borrower"`
	Amount          decimal.Decimal `json:"amount"`
	Duration        uint64          `json:"duration"` // seconds
	CollateralType  CollateralType  `json:"collateral_type"`
	FlowDescription string          `json:"flow_description"`
	Status          RFQStatus       `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Quotes          []Quote         `json:"quotes"`
}

// AcceptedQuote returns the accepted quote and its index, or -1 if none.
func (r *RFQ) AcceptedQuote() (Quote, int) {
	for i, q := range r.Quotes {
		if q.Accepted {
			return q, i
		}
	}
	return Quote{}, -1
}

// Bid is a lender's offer in a competitive auction. Re-bidding appends a new
// Bid; IsWinning is mutated only by finalization.
type Bid struct {
	Lender    string          `json:"lender"`
	RateBps   uint32          `json:"rate_bps"`
	Limit     decimal.Decimal `json:"limit"`
	Timestamp time.Time       `json:"timestamp"`
	IsWinning bool            `json:"is_winning"`
}

// Auction is a competitive negotiation: the lowest-rate bid wins at the deadline.
type Auction struct {
	ID              uint64          `json:"id"`
	Borrower        string          `json:"borrower"`
	Amount          decimal.Decimal `json:"amount"`
	Duration        uint64          `json:"duration"`         // seconds
	BiddingDuration uint64          `json:"bidding_duration"` // seconds
	EndTime         time.Time       `json:"end_time"`
	Status          AuctionStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Bids            []Bid           `json:"bids"`
}

// WinningBid returns the winning bid and its index, or -1 if none.
func (a *Auction) WinningBid() (Bid, int) {
	for i, b := range a.Bids {
		if b.IsWinning {
			return b, i
		}
	}
	return Bid{}, -1
}

// CreditLine is the funded facility record produced by binding a winning
// negotiation to reserved liquidity. Ids start at 1; 0 means "no credit line".
type CreditLine struct {
	ID        uint64          `json:"id"`
	Borrower  string          `json:"borrower"`
	Lender    string          `json:"lender"`
	RateBps   uint32          `json:"rate_bps"`
	Limit     decimal.Decimal `json:"limit"`
	SourceKind SourceKind     `json:"source_kind"`
	SourceID  uint64          `json:"source_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// LenderBalance is a snapshot of one lender's pool ledger entry.
type LenderBalance struct {
	Lender    string          `json:"lender"`
	Provided  decimal.Decimal `json:"provided"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

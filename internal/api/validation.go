package api

import (
	"fmt"
	"strings"
)

func (r CreateRFQRequest) Validate() error {
	if strings.TrimSpace(r.Borrower) == "" {
		return fmt.Errorf("borrower is required")
	}
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	if r.DurationSeconds == 0 {
		return fmt.Errorf("durationSeconds must be greater than 0")
	}
	if r.CollateralType != "" && !r.CollateralType.Valid() {
		return fmt.Errorf("collateralType must be one of None, ERC20, NFT")
	}
	return nil
}

func (r SubmitQuoteRequest) Validate() error {
	if strings.TrimSpace(r.Lender) == "" {
		return fmt.Errorf("lender is required")
	}
	if r.RateBps == 0 {
		return fmt.Errorf("rateBps must be greater than 0")
	}
	if r.Limit.Sign() <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	if r.CollateralRequired.Sign() < 0 {
		return fmt.Errorf("collateralRequired must not be negative")
	}
	return nil
}

func (r AcceptQuoteRequest) Validate() error {
	if strings.TrimSpace(r.Borrower) == "" {
		return fmt.Errorf("borrower is required")
	}
	if r.QuoteIndex < 0 {
		return fmt.Errorf("quoteIndex must not be negative")
	}
	return nil
}

func (r CancelRFQRequest) Validate() error {
	if strings.TrimSpace(r.Borrower) == "" {
		return fmt.Errorf("borrower is required")
	}
	return nil
}

func (r CreateAuctionRequest) Validate() error {
	if strings.TrimSpace(r.Borrower) == "" {
		return fmt.Errorf("borrower is required")
	}
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	if r.DurationSeconds == 0 {
		return fmt.Errorf("durationSeconds must be greater than 0")
	}
	if r.BiddingDurationSeconds == 0 {
		return fmt.Errorf("biddingDurationSeconds must be greater than 0")
	}
	return nil
}

func (r PlaceBidRequest) Validate() error {
	if strings.TrimSpace(r.Lender) == "" {
		return fmt.Errorf("lender is required")
	}
	if r.RateBps == 0 {
		return fmt.Errorf("rateBps must be greater than 0")
	}
	if r.Limit.Sign() <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	return nil
}

func (r LiquidityRequest) Validate() error {
	if strings.TrimSpace(r.Lender) == "" {
		return fmt.Errorf("lender is required")
	}
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	return nil
}

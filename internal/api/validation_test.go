package api

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua-x402/credit-engine/pkg/model"
)

func newDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestCreateRFQRequestValidate(t *testing.T) {
	valid := CreateRFQRequest{
		Borrower:        "0xb0rr0wer",
		Amount:          newDecimal(t, "1000"),
		DurationSeconds: 2592000,
		CollateralType:  model.CollateralERC20,
	}
	assert.NoError(t, valid.Validate())

	// Empty collateral type is allowed; the handler defaults it.
	noCollateral := valid
	noCollateral.CollateralType = ""
	assert.NoError(t, noCollateral.Validate())

	tests := []struct {
		name    string
		mutate  func(*CreateRFQRequest)
		wantErr string
	}{
		{"missing borrower", func(r *CreateRFQRequest) { r.Borrower = "  " }, "borrower is required"},
		{"zero amount", func(r *CreateRFQRequest) { r.Amount = decimal.Zero }, "amount must be greater than 0"},
		{"negative amount", func(r *CreateRFQRequest) { r.Amount = newDecimal(t, "-5") }, "amount must be greater than 0"},
		{"zero duration", func(r *CreateRFQRequest) { r.DurationSeconds = 0 }, "durationSeconds must be greater than 0"},
		{"bad collateral", func(r *CreateRFQRequest) { r.CollateralType = "Gold" }, "collateralType must be one of None, ERC20, NFT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSubmitQuoteRequestValidate(t *testing.T) {
	valid := SubmitQuoteRequest{
		Lender:  "0xlender",
		RateBps: 500,
		Limit:   newDecimal(t, "1000"),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*SubmitQuoteRequest)
		wantErr string
	}{
		{"missing lender", func(r *SubmitQuoteRequest) { r.Lender = "" }, "lender is required"},
		{"zero rate", func(r *SubmitQuoteRequest) { r.RateBps = 0 }, "rateBps must be greater than 0"},
		{"zero limit", func(r *SubmitQuoteRequest) { r.Limit = decimal.Zero }, "limit must be greater than 0"},
		{"negative collateral", func(r *SubmitQuoteRequest) { r.CollateralRequired = newDecimal(t, "-1") }, "collateralRequired must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAcceptQuoteRequestValidate(t *testing.T) {
	assert.NoError(t, AcceptQuoteRequest{Borrower: "0xb0rr0wer", QuoteIndex: 0}.Validate())
	assert.Error(t, AcceptQuoteRequest{Borrower: "", QuoteIndex: 0}.Validate())
	assert.Error(t, AcceptQuoteRequest{Borrower: "0xb0rr0wer", QuoteIndex: -1}.Validate())
}

func TestCreateAuctionRequestValidate(t *testing.T) {
	valid := CreateAuctionRequest{
		Borrower:               "0xb0rr0wer",
		Amount:                 newDecimal(t, "5000"),
		DurationSeconds:        7776000,
		BiddingDurationSeconds: 600,
	}
	assert.NoError(t, valid.Validate())

	noBidWindow := valid
	noBidWindow.BiddingDurationSeconds = 0
	err := noBidWindow.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "biddingDurationSeconds")
}

func TestLiquidityRequestValidate(t *testing.T) {
	assert.NoError(t, LiquidityRequest{Lender: "0xlender", Amount: newDecimal(t, "100000")}.Validate())
	assert.Error(t, LiquidityRequest{Lender: "", Amount: newDecimal(t, "1")}.Validate())
	assert.Error(t, LiquidityRequest{Lender: "0xlender", Amount: decimal.Zero}.Validate())
}

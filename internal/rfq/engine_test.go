package rfq

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

const (
	borrower = "0xb0rr0wer"
	lenderA  = "0xlenderA"
	lenderB  = "0xlenderB"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(eventbus.New(), nil)
}

func createOpenRFQ(t *testing.T, e *Engine) uint64 {
	t.Helper()
	id, err := e.Create(borrower, decimal.NewFromInt(1000), 30*24*3600, model.CollateralERC20, "ipfs://test")
	require.NoError(t, err)
	return id
}

func TestCreate_AssignsDenseIDs(t *testing.T) {
	e := newTestEngine(t)

	id0 := createOpenRFQ(t, e)
	id1 := createOpenRFQ(t, e)

	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)

	r, err := e.Get(id0)
	require.NoError(t, err)
	assert.Equal(t, borrower, r.Borrower)
	assert.Equal(t, model.RFQStatusOpen, r.Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(r.Amount))
	assert.Equal(t, model.CollateralERC20, r.CollateralType)
	assert.Equal(t, "ipfs://test", r.FlowDescription)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name       string
		borrower   string
		amount     decimal.Decimal
		duration   uint64
		collateral model.CollateralType
	}{
		{"empty borrower", "", decimal.NewFromInt(1000), 3600, model.CollateralNone},
		{"zero amount", borrower, decimal.Zero, 3600, model.CollateralNone},
		{"negative amount", borrower, decimal.NewFromInt(-5), 3600, model.CollateralNone},
		{"zero duration", borrower, decimal.NewFromInt(1000), 0, model.CollateralNone},
		{"unknown collateral", borrower, decimal.NewFromInt(1000), 3600, model.CollateralType("Gold")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(tt.borrower, tt.amount, tt.duration, tt.collateral, "")
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestSubmitQuote_AppendsInArrivalOrder(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	i0, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.NewFromInt(200))
	require.NoError(t, err)
	i1, err := e.SubmitQuote(id, lenderB, 450, decimal.NewFromInt(800), decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)

	quotes, err := e.Quotes(id)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, lenderA, quotes[0].Lender)
	assert.Equal(t, lenderB, quotes[1].Lender)
	assert.False(t, quotes[0].Accepted)
}

func TestSubmitQuote_UnknownRFQ(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.SubmitQuote(42, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitQuote_RejectsWhenNotOpen(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, e.AcceptQuote(borrower, id, 0))

	_, err = e.SubmitQuote(id, lenderB, 400, decimal.NewFromInt(1000), decimal.Zero)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestAcceptQuote_ClosesRFQ(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, e.AcceptQuote(borrower, id, 0))

	r, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusClosed, r.Status)

	accepted, idx := r.AcceptedQuote()
	assert.Equal(t, 0, idx)
	assert.Equal(t, lenderA, accepted.Lender)
}

func TestAcceptQuote_Unauthorized(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)

	err = e.AcceptQuote(lenderA, id, 0)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestAcceptQuote_IndexOutOfRange(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	err := e.AcceptQuote(borrower, id, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAcceptQuote_Twice(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)
	_, err = e.SubmitQuote(id, lenderB, 450, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, e.AcceptQuote(borrower, id, 0))
	err = e.AcceptQuote(borrower, id, 1)
	assert.ErrorIs(t, err, model.ErrAlreadyAccepted)

	// The first acceptance is untouched.
	r, err := e.Get(id)
	require.NoError(t, err)
	_, idx := r.AcceptedQuote()
	assert.Equal(t, 0, idx)
}

func TestCancel(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	require.NoError(t, e.Cancel(borrower, id))

	r, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusCancelled, r.Status)

	// Cancelled is terminal: no quotes, no re-cancel.
	_, err = e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.ErrorIs(t, e.Cancel(borrower, id), model.ErrInvalidState)
}

func TestCancel_Unauthorized(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	assert.ErrorIs(t, e.Cancel(lenderA, id), model.ErrUnauthorized)
}

func TestExecuteAccepted_FlipsStatusOnSuccess(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, e.AcceptQuote(borrower, id, 0))

	q, err := e.ExecuteAccepted(id, func(q model.Quote) error {
		assert.Equal(t, lenderA, q.Lender)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(500), q.RateBps)

	r, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusExecuted, r.Status)
}

func TestExecuteAccepted_ReserveFailureLeavesClosed(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, e.AcceptQuote(borrower, id, 0))

	boom := errors.New("reserve failed")
	_, err = e.ExecuteAccepted(id, func(model.Quote) error { return boom })
	assert.ErrorIs(t, err, boom)

	r, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusClosed, r.Status)
}

func TestExecuteAccepted_RequiresClosed(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.ExecuteAccepted(id, func(model.Quote) error { return nil })
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestConcurrentQuoteSubmission(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(100), decimal.Zero)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	quotes, err := e.Quotes(id)
	require.NoError(t, err)
	assert.Len(t, quotes, n)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	e := newTestEngine(t)
	id := createOpenRFQ(t, e)

	_, err := e.SubmitQuote(id, lenderA, 500, decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)

	r, err := e.Get(id)
	require.NoError(t, err)
	r.Quotes[0].Accepted = true // mutating the snapshot must not leak

	fresh, err := e.Get(id)
	require.NoError(t, err)
	assert.False(t, fresh.Quotes[0].Accepted)
}

func TestList(t *testing.T) {
	e := newTestEngine(t)
	createOpenRFQ(t, e)
	createOpenRFQ(t, e)

	all := e.List()
	require.Len(t, all, 2)
	assert.Equal(t, uint64(0), all[0].ID)
	assert.Equal(t, uint64(1), all[1].ID)
}

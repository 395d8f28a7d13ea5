package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPayments(t *testing.T) {
	s := SplitPayments([]Payment{
		{Method: MethodCash, AmountPence: 1500},
		{Method: MethodCard, AmountPence: 700},
		{Method: MethodMobileMoney, AmountPence: 300},
		{Method: MethodTransfer, AmountPence: 0},
		{Method: Method("CHEQUE"), AmountPence: 900},
	})
	require.Equal(t, int64(1500), s.CashPence)
	require.Equal(t, int64(1000), s.BankPence)
	require.Equal(t, int64(2500), s.TotalPence)
}

func TestDerivePaymentStatus(t *testing.T) {
	require.Equal(t, StatusUnpaid, DerivePaymentStatus(1000, 0))
	require.Equal(t, StatusUnpaid, DerivePaymentStatus(1000, -50))
	require.Equal(t, StatusPartPaid, DerivePaymentStatus(1000, 1))
	require.Equal(t, StatusPartPaid, DerivePaymentStatus(1000, 999))
	require.Equal(t, StatusPaid, DerivePaymentStatus(1000, 1000))
	require.Equal(t, StatusPaid, DerivePaymentStatus(1000, 1200))
}

func TestDerivePaymentStatusMonotone(t *testing.T) {
	rank := map[PaymentStatus]int{StatusUnpaid: 0, StatusPartPaid: 1, StatusPaid: 2}
	prev := -1
	for paid := int64(-100); paid <= 1300; paid += 100 {
		got := rank[DerivePaymentStatus(1200, paid)]
		require.GreaterOrEqual(t, got, prev, "paid=%d", paid)
		prev = got
	}
}

func TestClawbackChange(t *testing.T) {
	// Cash tender 2000 against 1200 due: 800 handed back as change.
	s, change, err := ClawbackChange(1200, Split{CashPence: 2000, TotalPence: 2000})
	require.NoError(t, err)
	require.Equal(t, int64(800), change)
	require.Equal(t, int64(1200), s.CashPence)
	require.Equal(t, int64(1200), s.TotalPence)

	// Exact payment passes through untouched.
	s, change, err = ClawbackChange(1200, Split{CashPence: 200, BankPence: 1000, TotalPence: 1200})
	require.NoError(t, err)
	require.Zero(t, change)
	require.Equal(t, int64(1200), s.TotalPence)

	// Card overpay cannot be returned programmatically.
	_, _, err = ClawbackChange(1000, Split{BankPence: 1500, TotalPence: 1500})
	require.ErrorIs(t, err, ErrOverpaid)

	// Mixed overpay beyond the cash portion is rejected too.
	_, _, err = ClawbackChange(1000, Split{CashPence: 100, BankPence: 1200, TotalPence: 1300})
	require.ErrorIs(t, err, ErrOverpaid)
}

func TestRoundHalfUpDiv(t *testing.T) {
	require.Equal(t, int64(2), RoundHalfUpDiv(3, 2))
	require.Equal(t, int64(1), RoundHalfUpDiv(5, 4))
	require.Equal(t, int64(2), RoundHalfUpDiv(7, 4))
	require.Equal(t, int64(0), RoundHalfUpDiv(0, 3))
	require.Equal(t, int64(-2), RoundHalfUpDiv(-3, 2))
	require.Equal(t, int64(150), ApplyRateBps(1000, 1500))
	require.Equal(t, int64(133), ApplyRateBps(887, 1500))
}

func TestWeightedAverage(t *testing.T) {
	// 10 @ 500 then 5 @ 800 -> (5000+4000)/15 = 600.
	avg := WeightedAverage(10, 500, 5, 800)
	require.Equal(t, int64(600), avg)

	// Order independence: fold the same purchases in either order.
	a := WeightedAverage(0, 0, 10, 500)
	a = WeightedAverage(10, a, 5, 800)
	b := WeightedAverage(0, 0, 5, 800)
	b = WeightedAverage(5, b, 10, 500)
	require.Equal(t, a, b)

	require.Zero(t, WeightedAverage(5, 300, -5, 0))
}

func TestAggregateLineQuantities(t *testing.T) {
	got := AggregateLineQuantities([]LineQty{
		{ProductID: 7, QtyBase: 3},
		{ProductID: 9, QtyBase: 1},
		{ProductID: 7, QtyBase: 2},
	})
	require.Equal(t, map[int64]int64{7: 5, 9: 1}, got)
}

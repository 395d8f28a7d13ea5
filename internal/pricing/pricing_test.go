package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuyTwoGetOnePromo(t *testing.T) {
	res, err := PriceCart(CartInput{
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      3,
			UnitFactor:     1,
			BasePricePence: 500,
			PromoBuyQty:    2,
			PromoGetQty:    1,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1500), res.SubtotalPence)
	require.Equal(t, int64(500), res.PromoDiscountPence)
	require.Zero(t, res.VATPence)
	require.Equal(t, int64(1000), res.TotalPence)
}

func TestLinePercentDiscount(t *testing.T) {
	res, err := PriceCart(CartInput{
		Lines: []CartLine{{
			ProductID:       1,
			QtyInUnit:       2,
			UnitFactor:      1,
			BasePricePence:  500,
			DiscountPercent: 10,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.SubtotalPence)
	require.Equal(t, int64(100), res.LineDiscountPence)
	require.Equal(t, int64(900), res.TotalPence)
}

func TestVATEnabledSale(t *testing.T) {
	res, err := PriceCart(CartInput{
		VATEnabled: true,
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      2,
			UnitFactor:     1,
			BasePricePence: 500,
			VATRateBps:     1500,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.SubtotalPence)
	require.Equal(t, int64(150), res.VATPence)
	require.Equal(t, int64(1150), res.TotalPence)
}

func TestVATDisabledIsZero(t *testing.T) {
	res, err := PriceCart(CartInput{
		VATEnabled: false,
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      4,
			UnitFactor:     1,
			BasePricePence: 250,
			VATRateBps:     1500,
		}},
	})
	require.NoError(t, err)
	require.Zero(t, res.VATPence)
	require.Equal(t, res.NetPence, res.TotalPence)
}

func TestTotalIdentity(t *testing.T) {
	res, err := PriceCart(CartInput{
		VATEnabled:         true,
		OrderDiscountPence: 300,
		Lines: []CartLine{
			{ProductID: 1, QtyInUnit: 3, UnitFactor: 2, BasePricePence: 150, VATRateBps: 1500, DiscountPercent: 5},
			{ProductID: 2, QtyInUnit: 1, UnitFactor: 12, BasePricePence: 40, VATRateBps: 1500},
			{ProductID: 3, QtyInUnit: 6, UnitFactor: 1, BasePricePence: 500, PromoBuyQty: 2, PromoGetQty: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, res.NetPence+res.VATPence, res.TotalPence)
	require.Equal(t, res.SubtotalPence-res.DiscountPence, res.NetPence)
}

func TestOrderDiscountRescalesVAT(t *testing.T) {
	// One line: net 1000, VAT 150. A 200 order discount scales VAT by 800/1000.
	res, err := PriceCart(CartInput{
		VATEnabled:         true,
		OrderDiscountPence: 200,
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      2,
			UnitFactor:     1,
			BasePricePence: 500,
			VATRateBps:     1500,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(200), res.OrderDiscountPence)
	require.Equal(t, int64(800), res.NetPence)
	require.Equal(t, int64(120), res.VATPence)
	require.Equal(t, int64(920), res.TotalPence)
}

func TestOrderDiscountClampedToNet(t *testing.T) {
	res, err := PriceCart(CartInput{
		OrderDiscountPence: 10_000,
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      1,
			UnitFactor:     1,
			BasePricePence: 400,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(400), res.OrderDiscountPence)
	require.Zero(t, res.TotalPence)
}

func TestFixedDiscountClampedToSubtotal(t *testing.T) {
	res, err := PriceCart(CartInput{
		Lines: []CartLine{{
			ProductID:      1,
			QtyInUnit:      1,
			UnitFactor:     1,
			BasePricePence: 300,
			DiscountPence:  900,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), res.LineDiscountPence)
	require.Zero(t, res.TotalPence)
}

func TestPercentDiscountClampedTo100(t *testing.T) {
	res, err := PriceCart(CartInput{
		Lines: []CartLine{{
			ProductID:       1,
			QtyInUnit:       2,
			UnitFactor:      1,
			BasePricePence:  500,
			DiscountPercent: 250,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.LineDiscountPence)
	require.Zero(t, res.TotalPence)
}

func TestPromoNeverExceedsRemainingValue(t *testing.T) {
	// 100% line discount leaves nothing for the promo to reduce.
	res, err := PriceCart(CartInput{
		Lines: []CartLine{{
			ProductID:       1,
			QtyInUnit:       3,
			UnitFactor:      1,
			BasePricePence:  500,
			DiscountPercent: 100,
			PromoBuyQty:     2,
			PromoGetQty:     1,
		}},
	})
	require.NoError(t, err)
	require.Zero(t, res.PromoDiscountPence)
	require.Zero(t, res.TotalPence)
}

func TestInvalidLines(t *testing.T) {
	_, err := PriceCart(CartInput{Lines: []CartLine{{ProductID: 1, QtyInUnit: 0, UnitFactor: 1}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = PriceCart(CartInput{Lines: []CartLine{{ProductID: 1, QtyInUnit: 1, UnitFactor: 0}}})
	require.ErrorIs(t, err, ErrInvalidFactor)

	_, err = PriceCart(CartInput{Lines: []CartLine{{ProductID: 1, QtyInUnit: 1, UnitFactor: 1, BasePricePence: -5}}})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

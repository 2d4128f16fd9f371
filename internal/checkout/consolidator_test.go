package checkout

import (
	"testing"

	"klarna-checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adjustment(t models.AdjustmentType, label, amount, source string) models.Adjustment {
	return models.Adjustment{
		Type:     t,
		Label:    label,
		Amount:   decimal.RequireFromString(amount),
		SourceID: source,
	}
}

func taxAdjustment(amount, percentage string) models.Adjustment {
	adj := adjustment(models.AdjustmentTax, "VAT", amount, "")
	if percentage != "" {
		adj.Percentage = decimal.NewNullDecimal(decimal.RequireFromString(percentage))
	}
	return adj
}

func TestConsolidateMergesSameSourcePromotions(t *testing.T) {
	lines := ConsolidateAdjustments([]models.Adjustment{
		adjustment(models.AdjustmentPromotion, "Summer sale", "-5.00", "promo1"),
		adjustment(models.AdjustmentPromotion, "Summer sale", "-2.50", "promo1"),
	})

	require.Len(t, lines, 1)
	assert.Equal(t, int64(-750), lines[0].UnitPrice)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, models.LineItemTypeDiscount, lines[0].Type)
	assert.Equal(t, int64(0), lines[0].TaxRate)
}

func TestConsolidateNeverMergesWithoutSource(t *testing.T) {
	lines := ConsolidateAdjustments([]models.Adjustment{
		adjustment(models.AdjustmentShipping, "Shipping", "10.00", ""),
		adjustment(models.AdjustmentShipping, "Shipping", "10.00", ""),
	})

	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, int64(1000), line.UnitPrice)
		assert.Equal(t, models.LineItemTypeShippingFee, line.Type)
	}
}

func TestConsolidateDoesNotMergeAcrossTypes(t *testing.T) {
	lines := ConsolidateAdjustments([]models.Adjustment{
		adjustment(models.AdjustmentFee, "Handling", "3.00", "rule1"),
		adjustment(models.AdjustmentShipping, "Shipping", "10.00", "rule1"),
	})

	require.Len(t, lines, 2)
	assert.Equal(t, "", lines[0].Type)
	assert.Equal(t, models.LineItemTypeShippingFee, lines[1].Type)
}

func TestConsolidateSkipsTax(t *testing.T) {
	lines := ConsolidateAdjustments([]models.Adjustment{
		taxAdjustment("16.00", "0.25"),
		adjustment(models.AdjustmentCustom, "Gift wrap", "4.00", ""),
	})

	require.Len(t, lines, 1)
	assert.Equal(t, "Gift wrap", lines[0].Name)
	assert.Equal(t, "Gift wrap", lines[0].Reference)
}

func TestConsolidateOrdersByWeightStably(t *testing.T) {
	shipping := adjustment(models.AdjustmentShipping, "Shipping", "10.00", "ship1")
	shipping.Weight = 10
	first := adjustment(models.AdjustmentPromotion, "First", "-1.00", "p1")
	second := adjustment(models.AdjustmentFee, "Second", "2.00", "f1")
	merged := adjustment(models.AdjustmentShipping, "Shipping", "5.00", "ship1")
	merged.Weight = -100

	lines := ConsolidateAdjustments([]models.Adjustment{shipping, first, second, merged})

	require.Len(t, lines, 3)
	assert.Equal(t, "First", lines[0].Name)
	assert.Equal(t, "Second", lines[1].Name)
	assert.Equal(t, "Shipping", lines[2].Name)
	assert.Equal(t, int64(1500), lines[2].UnitPrice)
}

func TestConsolidateIsDeterministic(t *testing.T) {
	input := []models.Adjustment{
		adjustment(models.AdjustmentPromotion, "A", "-1.00", "a"),
		adjustment(models.AdjustmentShipping, "B", "2.00", ""),
		adjustment(models.AdjustmentPromotion, "A", "-1.00", "a"),
		adjustment(models.AdjustmentFee, "C", "3.00", "c"),
	}

	first := ConsolidateAdjustments(input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ConsolidateAdjustments(input))
	}
}

func TestEffectiveTaxRate(t *testing.T) {
	item := models.LineItem{
		Title:     "Shirt",
		Quantity:  1,
		UnitPrice: models.NewPrice("80.00", "SEK"),
	}

	t.Run("no tax", func(t *testing.T) {
		assert.True(t, decimal.Zero.Equal(EffectiveTaxRate(item)))
	})

	t.Run("fraction percentage", func(t *testing.T) {
		item := item
		item.Adjustments = []models.Adjustment{taxAdjustment("16.00", "0.25")}
		assert.Equal(t, int64(2500), ItemLines([]models.LineItem{item})[0].TaxRate)
	})

	t.Run("fractional percent", func(t *testing.T) {
		item := item
		item.Adjustments = []models.Adjustment{taxAdjustment("0.40", "0.005")}
		assert.Equal(t, int64(50), ItemLines([]models.LineItem{item})[0].TaxRate)
	})

	t.Run("reconstructed from amount", func(t *testing.T) {
		item := item
		item.Adjustments = []models.Adjustment{taxAdjustment("16.00", "")}
		assert.Equal(t, int64(2500), ItemLines([]models.LineItem{item})[0].TaxRate)
	})

	t.Run("reconstruction rounds to tenth of a point", func(t *testing.T) {
		item := models.LineItem{
			Title:       "Book",
			Quantity:    1,
			UnitPrice:   models.NewPrice("100.00", "SEK"),
			Adjustments: []models.Adjustment{taxAdjustment("10.71", "")},
		}
		assert.Equal(t, int64(1200), ItemLines([]models.LineItem{item})[0].TaxRate)
	})

	t.Run("last tax wins", func(t *testing.T) {
		item := item
		item.Adjustments = []models.Adjustment{
			taxAdjustment("16.00", "0.25"),
			adjustment(models.AdjustmentPromotion, "Promo", "-1.00", "p"),
			taxAdjustment("8.57", "0.12"),
		}
		assert.Equal(t, int64(1200), ItemLines([]models.LineItem{item})[0].TaxRate)
	})
}

func TestItemLines(t *testing.T) {
	lines := ItemLines([]models.LineItem{
		{Title: "Mug", Quantity: 3, UnitPrice: models.NewPrice("12.50", "SEK")},
	})

	require.Len(t, lines, 1)
	assert.Equal(t, models.ProviderLineItem{
		Reference: "Mug",
		Name:      "Mug",
		Quantity:  3,
		UnitPrice: 1250,
		TaxRate:   0,
	}, lines[0])
}

package checkout

import (
	"sort"
	"strconv"

	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/money"

	"github.com/shopspring/decimal"
)

// reconstructed rates are kept to a tenth of a percentage point
const reconstructedRatePlaces = 3

// ItemLines emits one provider line per order item, carrying the item's
// effective tax rate.
func ItemLines(items []models.LineItem) []models.ProviderLineItem {
	lines := make([]models.ProviderLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.ProviderLineItem{
			Reference: item.Title,
			Name:      item.Title,
			Quantity:  item.Quantity,
			UnitPrice: money.ToMinorUnits(item.UnitPrice.Number),
			TaxRate:   money.ToFixedPointRate(EffectiveTaxRate(item)),
		})
	}
	return lines
}

// EffectiveTaxRate returns the item's tax rate as a fraction of 1. Tax
// percentages are stored as fractions. When an item carries several tax
// adjustments the last one wins. Adjustments
// without a percentage have their rate reconstructed from the tax amount,
// assuming tax-inclusive prices.
func EffectiveTaxRate(item models.LineItem) decimal.Decimal {
	rate := decimal.Zero
	for _, adj := range item.Adjustments {
		if adj.Type != models.AdjustmentTax {
			continue
		}
		if adj.Percentage.Valid {
			rate = adj.Percentage.Decimal
			continue
		}
		rate = reconstructRate(adj.Amount, item.TotalPrice())
	}
	return rate
}

func reconstructRate(tax, total decimal.Decimal) decimal.Decimal {
	net := total.Sub(tax)
	if net.IsZero() {
		return decimal.Zero
	}
	return tax.Div(net).Round(reconstructedRatePlaces)
}

type adjustmentGroup struct {
	line   models.ProviderLineItem
	weight int
}

// ConsolidateAdjustments groups non-tax adjustments into provider lines.
// Adjustments sharing a type and source id are merged by summing their
// amounts; adjustments without a source id are never merged. The result is
// stably sorted by weight, ties keeping first-seen order.
func ConsolidateAdjustments(adjustments []models.Adjustment) []models.ProviderLineItem {
	groups := make([]*adjustmentGroup, 0, len(adjustments))
	index := make(map[string]*adjustmentGroup)

	for i, adj := range adjustments {
		if adj.Type == models.AdjustmentTax {
			continue
		}

		key := groupKey(i, adj)
		if group, ok := index[key]; ok {
			group.line.UnitPrice += money.ToMinorUnits(adj.Amount)
			continue
		}

		group := &adjustmentGroup{
			line: models.ProviderLineItem{
				Type:      lineItemType(adj.Type),
				Reference: adj.Label,
				Name:      adj.Label,
				Quantity:  1,
				UnitPrice: money.ToMinorUnits(adj.Amount),
				TaxRate:   0,
			},
			weight: adj.Weight,
		}
		index[key] = group
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].weight < groups[j].weight
	})

	lines := make([]models.ProviderLineItem, 0, len(groups))
	for _, group := range groups {
		lines = append(lines, group.line)
	}
	return lines
}

func groupKey(position int, adj models.Adjustment) string {
	if adj.SourceID == "" {
		return "#" + strconv.Itoa(position)
	}
	return string(adj.Type) + ":" + adj.SourceID
}

func lineItemType(t models.AdjustmentType) string {
	switch t {
	case models.AdjustmentPromotion:
		return models.LineItemTypeDiscount
	case models.AdjustmentShipping:
		return models.LineItemTypeShippingFee
	default:
		return ""
	}
}

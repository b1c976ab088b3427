package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleLineItemsEncodeMoneyAsNumbers(t *testing.T) {
	raw, err := json.Marshal([]SaleLineItem{{
		ProductID: "prd-1",
		Name:      "Pencil HB",
		Quantity:  3,
		Price:     decimal.RequireFromString("0.35"),
		Profit:    decimal.RequireFromString("0.45"),
	}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":0.35`)
	assert.Contains(t, string(raw), `"profit":0.45`)

	var back []SaleLineItem
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back[0].Price.Equal(decimal.RequireFromString("0.35")))

	require.NoError(t, json.Unmarshal([]byte(`[{"price":"1.20","profit":"0.20"}]`), &back))
	assert.Equal(t, "1.2", back[0].Price.String())
}

func TestParsePaymentMethodIgnoresCase(t *testing.T) {
	for _, raw := range []string{"Cash", "cash", "CASH", " cAsH "} {
		m, ok := ParsePaymentMethod(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, PaymentCash, m)
	}
	m, ok := ParsePaymentMethod("CARD")
	assert.True(t, ok)
	assert.Equal(t, PaymentCard, m)

	_, ok = ParsePaymentMethod("Voucher")
	assert.False(t, ok)
}

package exchange

import (
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"quantgate/internal/bracket"
)

func strPtr(v string) *string { return &v }

func f64Ptr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestConvertOpenOrderMapsUnifiedFields(t *testing.T) {
	trigger := 45000.0
	order := ccxt.Order{
		ClientOrderId: strPtr("s1:BTCUSDT:1:sl:sell"),
		Symbol:        strPtr("BTC/USDT:USDT"),
		Side:          strPtr("sell"),
		Type:          strPtr("stop_market"),
		TriggerPrice:  &trigger,
		Amount:        f64Ptr(0.5),
		ReduceOnly:    boolPtr(true),
	}

	state := convertOpenOrder(order)

	if state.ClientOrderID != "s1:BTCUSDT:1:sl:sell" {
		t.Errorf("unexpected client id: %s", state.ClientOrderID)
	}
	if state.Symbol != "BTCUSDT" {
		t.Errorf("symbol should be normalized, got %s", state.Symbol)
	}
	if state.Side != bracket.TradeSideSell {
		t.Errorf("unexpected side: %s", state.Side)
	}
	if state.Type != "STOP_MARKET" {
		t.Errorf("unexpected type: %s", state.Type)
	}
	if state.StopPrice == nil || *state.StopPrice != 45000 {
		t.Errorf("unexpected stop price: %v", state.StopPrice)
	}
	if !state.ReduceOnly {
		t.Errorf("reduce-only flag lost")
	}
	if state.Quantity == nil || *state.Quantity != 0.5 {
		t.Errorf("unexpected quantity: %v", state.Quantity)
	}
}

func TestConvertOpenOrderClosePositionDropsQuantity(t *testing.T) {
	order := ccxt.Order{
		ClientOrderId: strPtr("s1:BTCUSDT:1:tp:sell"),
		Symbol:        strPtr("BTC/USDT:USDT"),
		Side:          strPtr("sell"),
		Type:          strPtr("take_profit_market"),
		StopPrice:     f64Ptr(52000),
		Amount:        f64Ptr(1.0),
		Info: map[string]interface{}{
			"closePosition": "true",
			"reduceOnly":    true,
		},
	}

	state := convertOpenOrder(order)

	if !state.ClosePosition {
		t.Fatalf("close_position flag should be parsed from info")
	}
	if state.Quantity != nil {
		t.Errorf("close_position order should not carry quantity, got %v", *state.Quantity)
	}
	if !state.ReduceOnly {
		t.Errorf("reduce-only should fall back to info field")
	}
	if state.StopPrice == nil || *state.StopPrice != 52000 {
		t.Errorf("stop price fallback failed: %v", state.StopPrice)
	}
}

func TestParseBool(t *testing.T) {
	cases := []struct {
		value interface{}
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"true", true},
		{"false", false},
		{" TRUE ", true},
		{"not-a-bool", false},
		{1, false},
	}

	for _, tc := range cases {
		if got := parseBool(tc.value); got != tc.want {
			t.Errorf("parseBool(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

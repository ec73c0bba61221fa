package userstream

import (
	"encoding/json"
	"strconv"

	"quantgate/internal/bracket"
)

const eventOrderTradeUpdate = "ORDER_TRADE_UPDATE"

// envelope 为用户数据流的外层事件。
type envelope struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Order     orderUpdate `json:"o"`
}

// orderUpdate 为 ORDER_TRADE_UPDATE 事件的委托明细。
type orderUpdate struct {
	Symbol        string `json:"s"`
	ClientOrderID string `json:"c"`
	Side          string `json:"S"`
	OrderType     string `json:"o"`
	ExecutionType string `json:"x"`
	OrderStatus   string `json:"X"`
	LastFilledQty string `json:"l"`
	LastFilledPx  string `json:"L"`
	FilledQty     string `json:"z"`
	TradeTime     int64  `json:"T"`
}

// decodeFill 把一条用户流消息解码为成交事件。
// 非成交消息返回 false。
func decodeFill(message []byte) (bracket.FillEvent, bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return bracket.FillEvent{}, false
	}
	if env.EventType != eventOrderTradeUpdate {
		return bracket.FillEvent{}, false
	}
	if env.Order.ExecutionType != "TRADE" {
		return bracket.FillEvent{}, false
	}

	qty := parseFloat(env.Order.LastFilledQty)
	if qty <= 0 {
		return bracket.FillEvent{}, false
	}

	return bracket.FillEvent{
		Symbol:        env.Order.Symbol,
		Qty:           qty,
		Price:         parseFloat(env.Order.LastFilledPx),
		ClientOrderID: env.Order.ClientOrderID,
	}, true
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

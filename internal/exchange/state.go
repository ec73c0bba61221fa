package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"quantgate/internal/bracket"
	"quantgate/internal/marketdata"
)

// FetchOpenOrders 获取指定交易对的当前挂单，作为对账输入。
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]bracket.OpenOrderState, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		result, err := c.exchange.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: 获取挂单失败: %w", err)
	}

	orders := make([]bracket.OpenOrderState, 0, len(raw))
	for _, order := range raw {
		orders = append(orders, convertOpenOrder(order))
	}
	return orders, nil
}

// FetchPosition 获取指定交易对的净持仓快照，空头为负数量。
func (c *Client) FetchPosition(ctx context.Context, symbol string) (bracket.PositionSnapshot, error) {
	normalized := marketdata.NormalizeSymbol(symbol)
	snapshot := bracket.PositionSnapshot{Symbol: normalized}

	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		result, err := c.exchange.FetchPositions(
			ccxt.WithFetchPositionsSymbols([]string{symbol}),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return snapshot, fmt.Errorf("exchange: 获取持仓失败: %w", err)
	}

	for _, pos := range raw {
		posSymbol := marketdata.NormalizeSymbol(derefString(pos.Symbol))
		if posSymbol != normalized {
			continue
		}

		size := derefFloat(pos.Contracts)
		if size == 0 {
			continue
		}

		side := strings.ToLower(strings.TrimSpace(derefString(pos.Side)))
		if side == "short" {
			size = -size
		}

		snapshot.Quantity += size
		if entry := derefFloat(pos.EntryPrice); entry > 0 {
			snapshot.EntryPrice = entry
		}
	}

	return snapshot, nil
}

func convertOpenOrder(order ccxt.Order) bracket.OpenOrderState {
	state := bracket.OpenOrderState{
		ClientOrderID: derefString(order.ClientOrderId),
		Symbol:        marketdata.NormalizeSymbol(derefString(order.Symbol)),
		Side:          bracket.TradeSide(strings.ToUpper(derefString(order.Side))),
		Type:          strings.ToUpper(derefString(order.Type)),
		Price:         order.Price,
		StopPrice:     order.TriggerPrice,
		Quantity:      order.Amount,
		ReduceOnly:    derefBool(order.ReduceOnly),
	}

	if state.StopPrice == nil {
		state.StopPrice = order.StopPrice
	}

	if order.Info != nil {
		state.ClosePosition = parseBool(order.Info["closePosition"])
		if !state.ReduceOnly {
			state.ReduceOnly = parseBool(order.Info["reduceOnly"])
		}
	}
	// close_position 委托不携带数量，避免对账时误判数量差异。
	if state.ClosePosition {
		state.Quantity = nil
	}

	return state
}

func parseBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case *bool:
		return v != nil && *v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	}
	return false
}

package bracket

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// priceEpsilon 为触发价/限价的比较容差。
const priceEpsilon = 1e-8

const defaultQuantityPrecision = 1e-9

// Manager 把持仓、期望离场与实际挂单/成交对账成幂等的创建/撤销计划。
// 纯计算，不做任何I/O，可在同一周期内安全地重复调用。
type Manager struct {
	strategyID   string
	qtyPrecision float64
	logger       *zap.Logger
}

// NewManager 创建对账管理器。
func NewManager(strategyID string, quantityPrecision float64, logger *zap.Logger) *Manager {
	if quantityPrecision <= 0 {
		quantityPrecision = defaultQuantityPrecision
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		strategyID:   strategyID,
		qtyPrecision: quantityPrecision,
		logger:       logger,
	}
}

// BuildExitPlan 为当前周期生成离场委托对账计划。
func (m *Manager) BuildExitPlan(cycleTS int64, position PositionSnapshot, exits *ExitOrdersSpec, openOrders []OpenOrderState, fills []FillEvent) ExitReconcilePlan {
	openByID := make(map[string]OpenOrderState, len(openOrders))
	for _, order := range openOrders {
		openByID[order.ClientOrderID] = order
	}

	if math.Abs(position.Quantity) <= m.qtyPrecision {
		// 持仓已平：撤掉残留的 reduceOnly 离场单，期望离场被忽略。
		cancel := make([]string, 0)
		for _, order := range openOrders {
			if order.ReduceOnly && order.ClientOrderID != "" {
				cancel = append(cancel, order.ClientOrderID)
			}
		}
		return ExitReconcilePlan{Create: []ExitOrderPlan{}, Cancel: dedupeIDs(cancel)}
	}

	side := TradeSideSell
	if position.Quantity < 0 {
		side = TradeSideBuy
	}

	tpID, slID := m.clientIDs(position.Symbol, cycleTS, side)
	cancel := make([]string, 0)

	// OCO 模拟：一条腿已成交则撤销另一条腿。
	for _, fill := range fills {
		cid := fill.ClientOrderID
		if cid == "" {
			continue
		}
		if strings.HasPrefix(cid, idFamily(tpID)) {
			cancel = append(cancel, slID)
		}
		if strings.HasPrefix(cid, idFamily(slID)) {
			cancel = append(cancel, tpID)
		}
	}

	if exits == nil {
		return ExitReconcilePlan{Create: []ExitOrderPlan{}, Cancel: dedupeIDs(cancel)}
	}

	positionQty := math.Abs(position.Quantity)
	create := make([]ExitOrderPlan, 0, 2)
	create = append(create, m.maybeCreateOrder(position.Symbol, side, exits.TakeProfit, PurposeTakeProfit, tpID, positionQty, openByID)...)
	create = append(create, m.maybeCreateOrder(position.Symbol, side, exits.StopLoss, PurposeStopLoss, slID, positionQty, openByID)...)

	return ExitReconcilePlan{Create: create, Cancel: dedupeIDs(cancel)}
}

// clientIDs 生成确定性的客户端委托ID，同一周期内重复调用保持稳定。
func (m *Manager) clientIDs(symbol string, cycleTS int64, side TradeSide) (string, string) {
	prefix := fmt.Sprintf("%s:%s:%d", m.strategyID, symbol, cycleTS)
	tp := fmt.Sprintf("%s:%s:%s", prefix, PurposeTakeProfit, strings.ToLower(string(side)))
	sl := fmt.Sprintf("%s:%s:%s", prefix, PurposeStopLoss, strings.ToLower(string(side)))
	return tp, sl
}

// idFamily 去掉ID的最后一段（方向），用于匹配同族成交回报。
func idFamily(id string) string {
	if idx := strings.LastIndex(id, ":"); idx >= 0 {
		return id[:idx]
	}
	return id
}

func (m *Manager) maybeCreateOrder(symbol string, side TradeSide, spec *ExitLegSpec, purpose, clientOrderID string, positionQty float64, openByID map[string]OpenOrderState) []ExitOrderPlan {
	if spec == nil {
		return nil
	}

	qty := m.resolveQuantity(spec, positionQty)
	closePosition := spec.QtyMode == QtyModeClosePosition

	if existing, ok := openByID[clientOrderID]; ok && m.isSame(existing, spec, qty, closePosition) {
		// 只抑制重复创建，规格变化时不做撤销重建。
		m.logger.Debug("离场委托已存在，跳过创建", zap.String("client_order_id", clientOrderID))
		return nil
	}

	var quantity *float64
	if !closePosition {
		quantity = &qty
	}

	return []ExitOrderPlan{{
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          spec.Type,
		StopPrice:     spec.TriggerPrice,
		Price:         spec.Price,
		Quantity:      quantity,
		ReduceOnly:    true,
		ClosePosition: closePosition,
		Purpose:       purpose,
	}}
}

func (m *Manager) resolveQuantity(spec *ExitLegSpec, positionQty float64) float64 {
	if spec.QtyMode == QtyModeClosePosition {
		return positionQty
	}
	return math.Max(m.qtyPrecision, math.Min(positionQty, spec.Qty))
}

func (m *Manager) isSame(existing OpenOrderState, spec *ExitLegSpec, qty float64, closePosition bool) bool {
	if existing.Type != "" && existing.Type != spec.Type {
		return false
	}
	if closePosition != existing.ClosePosition {
		return false
	}
	if !closePosition && existing.Quantity != nil {
		if math.Abs(*existing.Quantity-qty) > m.qtyPrecision {
			return false
		}
	}
	if spec.TriggerPrice != nil && existing.StopPrice != nil {
		if math.Abs(*existing.StopPrice-*spec.TriggerPrice) > priceEpsilon {
			return false
		}
	}
	if spec.Price != nil && existing.Price != nil {
		if math.Abs(*existing.Price-*spec.Price) > priceEpsilon {
			return false
		}
	}
	return true
}

// dedupeIDs 去重并剔除空ID，保持首次出现的顺序。
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

package bracket

// TradeSide 表示委托方向。
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// ExitQtyMode 表示离场腿的数量模式。
type ExitQtyMode string

const (
	// QtyModeClosePosition 使用全部持仓并以 close_position 标志提交。
	QtyModeClosePosition ExitQtyMode = "CLOSE_POSITION"
	// QtyModePartial 使用指定数量，夹取到 [精度, 持仓量]。
	QtyModePartial ExitQtyMode = "PARTIAL"
)

const (
	PurposeTakeProfit = "tp"
	PurposeStopLoss   = "sl"
)

// ExitLegSpec 描述单条离场腿（止盈或止损）。
type ExitLegSpec struct {
	Type         string
	TriggerPrice *float64
	Price        *float64
	QtyMode      ExitQtyMode
	Qty          float64
}

// ExitOrdersSpec 为决策层给出的期望离场状态，两条腿均可缺省。
type ExitOrdersSpec struct {
	TakeProfit *ExitLegSpec
	StopLoss   *ExitLegSpec
}

// PositionSnapshot 为对账输入的最小持仓快照。
type PositionSnapshot struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
}

// OpenOrderState 为对账所需的最小挂单状态。
type OpenOrderState struct {
	ClientOrderID string
	Symbol        string
	Side          TradeSide
	Type          string
	Price         *float64
	StopPrice     *float64
	Quantity      *float64
	ReduceOnly    bool
	ClosePosition bool
	Purpose       string
}

// FillEvent 为成交回报事件。
type FillEvent struct {
	Symbol        string
	Qty           float64
	Price         float64
	ClientOrderID string
}

// ExitOrderPlan 为计划提交的离场委托，client_order_id 可确定性重建。
type ExitOrderPlan struct {
	ClientOrderID string
	Symbol        string
	Side          TradeSide
	Type          string
	StopPrice     *float64
	Price         *float64
	Quantity      *float64
	ReduceOnly    bool
	ClosePosition bool
	Purpose       string
}

// ExitReconcilePlan 为对账的唯一输出：待创建与待撤销集合。
type ExitReconcilePlan struct {
	Create []ExitOrderPlan
	Cancel []string
}

package marketdata

// Source 标识一个K线区块最终来自哪一层数据源。
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceResampled Source = "resampled"
	SourceMissing   Source = "missing"
)

// Degraded 表示该来源是否属于降级数据。
func (s Source) Degraded() bool {
	return s == SourceResampled || s == SourceMissing
}

// Candle 代表单根K线，毫秒时间戳，构造后不再修改。
type Candle struct {
	TS     int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	// 主数据源附带的可选统计，备用源与重采样结果不填。
	Trades        *float64
	TakerBuyBase  *float64
	TakerBuyQuote *float64
}

// IntervalBlock 为一次K线拉取的完整结果，Candles 按时间升序排列。
type IntervalBlock struct {
	Interval string
	Candles  []Candle
	Source   Source
	Missing  bool
	Coverage float64
}

// MarketMicro 描述盘口微观结构与成本底线。
type MarketMicro struct {
	Bid                  float64
	Ask                  float64
	Mid                  float64
	SpreadBps            float64
	EstimatedFeeBps      float64
	EstimatedSlippageBps float64
	EdgeFloorBps         float64
}

// Funding 为资金费率快照，属于尽力而为的辅助信号。
type Funding struct {
	MarkPrice       float64
	FundingRate     float64
	NextFundingTime int64
}

// SecondaryMarket 描述备用数据源解析出的市场条目。
type SecondaryMarket struct {
	Symbol string
	Type   string
	Linear bool
}

// StructuralBlocks 聚合一次决策周期所需的全部行情输入。
type StructuralBlocks struct {
	OneMinute    IntervalBlock
	FifteenMin   IntervalBlock
	Hourly       *IntervalBlock
	Micro        MarketMicro
	Funding      *Funding
	OpenInterest *float64
}

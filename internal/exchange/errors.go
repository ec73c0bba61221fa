package exchange

import "errors"

var (
	// ErrMaintenance 表示交易所处于维护状态，调用方应跳过本周期。
	ErrMaintenance = errors.New("exchange on maintenance")
)

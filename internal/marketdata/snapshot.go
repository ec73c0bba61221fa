package marketdata

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GetStructuralBlocks 并发拉取决策周期所需的行情输入：1分钟、15分钟、
// 可选1小时K线区块，以及盘口、资金费率与未平仓量。K线区块自身不会失败，
// 盘口错误会让整组任务一起取消。
func (c *Client) GetStructuralBlocks(ctx context.Context, symbol string, includeHourly bool) (StructuralBlocks, error) {
	var blocks StructuralBlocks

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		blocks.OneMinute = c.GetCandles(groupCtx, symbol, "1m", c.cfg.ExpectedWindows["1m"], 0, 0, true)
		return nil
	})

	group.Go(func() error {
		blocks.FifteenMin = c.GetCandles(groupCtx, symbol, "15m", c.cfg.ExpectedWindows["15m"], 0, 0, true)
		return nil
	})

	if includeHourly {
		group.Go(func() error {
			hourly := c.GetCandles(groupCtx, symbol, "1h", c.cfg.ExpectedWindows["1h"], 0, 0, true)
			blocks.Hourly = &hourly
			return nil
		})
	}

	group.Go(func() error {
		micro, err := c.GetMicro(groupCtx, symbol)
		if err != nil {
			return err
		}
		blocks.Micro = micro
		return nil
	})

	group.Go(func() error {
		blocks.Funding = c.GetFunding(groupCtx, symbol)
		return nil
	})

	group.Go(func() error {
		blocks.OpenInterest = c.GetOpenInterest(groupCtx, symbol)
		return nil
	})

	if err := group.Wait(); err != nil {
		return StructuralBlocks{}, err
	}

	return blocks, nil
}

package exchange

import (
	"context"
	"time"

	"github.com/uhyunpark/matchbook/pkg/util"
)

// Run finalizes one batch every interval until ctx is done, stamping each batch
// with the clock's unix time. Heights continue from startHeight+1. A trade
// store failure stops the loop.
func (a *App) Run(ctx context.Context, clock util.Clock, interval time.Duration, startHeight int64) (int64, error) {
	height := startHeight
	for {
		if ctx.Err() != nil {
			return height, nil
		}
		select {
		case <-ctx.Done():
			return height, nil
		case <-clock.After(interval):
		}

		height++
		res, err := a.FinalizeBatch(height, clock.Now().Unix())
		if a.OnBatch != nil {
			a.OnBatch(res)
		}
		if err != nil {
			return height, err
		}
	}
}

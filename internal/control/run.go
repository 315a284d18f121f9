package control

import (
	"context"
	"time"

	"github.com/relabs-gnc/rocketgnc/internal/estimator"
	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
)

// Run evaluates the control law at a fixed period, reading the latest
// attitude snapshot and invoking onDemand with the result. onDemand runs
// synchronously within the tick; the pipeline uses it to drive the
// allocator, while the dispatcher runs on its own ticker.
func (l *Law) Run(ctx context.Context, est *estimator.Estimator, period time.Duration, onDemand func(Demand)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			att, ok := est.Latest.Load()
			if !ok {
				continue
			}
			d := l.Evaluate(att)
			onDemand(d)

			if elapsed := time.Since(start); elapsed > period {
				obsmetrics.Get().LoopOverruns.WithLabelValues("control").Inc()
			}
		}
	}
}

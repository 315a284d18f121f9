package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-gnc/rocketgnc/internal/allocate"
	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

// Run drives the dispatcher at the control cadence, which runs well
// inside the 150ms actuator watchdog window. When enabled returns false
// (any state but the active window) it sends all-zero PWM every tick, so
// the watchdog invariant and the "zero outside active window" rule are
// the same code path. Every missed acknowledgement is reported to
// monitor so the fault-budget escalator can see it.
func (d *Dispatcher) Run(ctx context.Context, alloc *allocate.Allocator, period time.Duration, enabled func() bool, controlLog *telemetry.DomainLog, errLog *telemetry.ErrorLog, monitor *watchtower.Monitor, logger *logrus.Entry) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastSent time.Time

	for {
		select {
		case <-ctx.Done():
			d.WriteFrame([4]uint16{0, 0, 0, 0})
			return
		case <-ticker.C:
			assignment, ok := alloc.Latest.Load()
			pwm := [4]uint16{0, 0, 0, 0}
			if ok && enabled() {
				pwm = assignment.PWM
			}

			if err := d.WriteFrame(pwm); err != nil {
				errLog.Log(telemetry.SeverityRecov, "dispatch", err.Error())
				logger.WithError(err).Warn("actuator frame write failed")
				obsmetrics.Get().DispatchAckMiss.Inc()
				monitor.Observe("dispatch")
				continue
			}
			obsmetrics.Get().DispatchFrames.Inc()

			now := time.Now()
			if !lastSent.IsZero() {
				margin := WatchdogWindow - now.Sub(lastSent)
				obsmetrics.Get().WatchdogMarginMS.Set(float64(margin.Milliseconds()))
			}
			lastSent = now

			if ok {
				controlLog.WriteRow(assignment.TimestampUS,
					assignment.R[0], assignment.R[1], assignment.R[2], assignment.R[3],
					pwm[0], pwm[1], pwm[2], pwm[3])
			}
		}
	}
}

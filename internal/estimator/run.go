package estimator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-gnc/rocketgnc/internal/imu"
	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

// Run drives the estimator at a fixed period, reading the latest raw IMU
// sample each tick. Overrun is logged but never corrected: a slow tick
// simply runs again on the next ticker fire. Every recoverable drop is
// reported to monitor so the fault-budget escalator can see it.
func (e *Estimator) Run(ctx context.Context, reader *imu.Reader, period time.Duration, imuLog *telemetry.DomainLog, errLog *telemetry.ErrorLog, monitor *watchtower.Monitor, logger *logrus.Entry, onFatal func(string)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			start := time.Now()
			raw, ok := reader.Samples.Load()
			if !ok {
				continue
			}

			if err := e.Process(raw); err != nil {
				if fatal, isFatal := err.(*FatalErr); isFatal {
					errLog.Log(telemetry.SeverityFatal, "estimator", fatal.Error())
					logger.WithError(fatal).Error("estimator drop streak exceeded threshold")
					onFatal(fatal.Error())
					return
				}
				errLog.Log(telemetry.SeverityRecov, "estimator", err.Error())
				logger.WithError(err).Warn("estimator tick dropped")
				obsmetrics.Get().KalmanDrops.WithLabelValues("estimator_tick").Inc()
				monitor.Observe("estimator")
			}
			obsmetrics.Get().EstimatorDropStreak.Set(float64(e.consecutiveDrops))

			att, _ := e.Latest.Load()
			imuLog.WriteRow(raw.TimestampUS, raw.Yaw, raw.Pitch, raw.Roll,
				raw.AccelX, raw.AccelY, raw.AccelZ,
				att.Psi, att.Theta, att.Phi,
				att.PsiDot, att.ThetaDot, att.PhiDot,
				att.OmegaX, att.OmegaY, att.OmegaZ)

			if elapsed := time.Since(start); elapsed > period {
				obsmetrics.Get().LoopOverruns.WithLabelValues("estimator").Inc()
				errLog.Log(telemetry.SeverityInfo, "estimator", "tick overrun")
			}
			_ = tick
		}
	}
}

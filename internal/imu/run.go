package imu

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

// FatalFunc is called exactly once when the reader gives up for good
// (open/sync failure already happened before Run starts; this covers
// persistent in-flight sync loss).
type FatalFunc func(reason string)

// Run blocks reading frames until ctx is cancelled or a persistent sync
// loss trips onFatal. The descriptor is owned exclusively by this
// goroutine once Run starts; Close() from another goroutine (on shutdown)
// is what unblocks the final read. Each recoverable short read is
// reported to monitor so the fault-budget escalator can see it, in
// addition to the append-only error log and the structured logger.
func (r *Reader) Run(ctx context.Context, errLog *telemetry.ErrorLog, monitor *watchtower.Monitor, logger *logrus.Entry, onFatal FatalFunc) {
	consecutive := 0
	const maxConsecutiveShortReads = 10

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now().UnixMicro()
		if _, err := r.ReadOnce(now); err != nil {
			consecutive++
			errLog.Log(telemetry.SeverityRecov, "imu", err.Error())
			logger.WithError(err).Warn("short imu read")
			obsmetrics.Get().KalmanDrops.WithLabelValues("imu_short_read").Inc()
			monitor.Observe("imu")

			if consecutive >= maxConsecutiveShortReads {
				if rerr := r.Resync(); rerr != nil {
					errLog.Log(telemetry.SeverityFatal, "imu", rerr.Error())
					logger.WithError(rerr).Error("imu resync failed, giving up")
					onFatal(rerr.Error())
					return
				}
				consecutive = 0
			}
			continue
		}
		consecutive = 0
	}
}

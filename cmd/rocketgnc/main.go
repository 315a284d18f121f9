// Command rocketgnc is the cold-gas RCS guidance, navigation and control
// pipeline: it reads the attitude sensor, filters it through six scalar
// Kalman filters, evaluates the PD/P control law, allocates thrust across
// four nozzles with a simplex solver, and dispatches PWM to the actuator
// controller, all gated by the mission sequencer's state machine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/relabs-gnc/rocketgnc/internal/allocate"
	"github.com/relabs-gnc/rocketgnc/internal/config"
	"github.com/relabs-gnc/rocketgnc/internal/control"
	"github.com/relabs-gnc/rocketgnc/internal/dispatch"
	"github.com/relabs-gnc/rocketgnc/internal/estimator"
	"github.com/relabs-gnc/rocketgnc/internal/groundlink"
	"github.com/relabs-gnc/rocketgnc/internal/imu"
	"github.com/relabs-gnc/rocketgnc/internal/launchdetect"
	"github.com/relabs-gnc/rocketgnc/internal/opconsole"
	"github.com/relabs-gnc/rocketgnc/internal/sequencer"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

var configFile = flag.String("config", "configs/config.yaml", "configuration file path")

// pipeline bundles the constructed subsystems so the shutdown path in main
// and close can reach every descriptor without threading them through a dozen parameters.
type pipeline struct {
	cfg    *config.Config
	logger *logrus.Logger

	imuReader *imu.Reader
	est       *estimator.Estimator
	law       *control.Law
	alloc     *allocate.Allocator
	disp      *dispatch.Dispatcher
	launch    *launchdetect.Detector
	monitor   *watchtower.Monitor
	flag      *watchtower.FaultFlag
	seq       *sequencer.Sequencer
	ground    *groundlink.Server

	imuLog     *telemetry.DomainLog
	controlLog *telemetry.DomainLog
	errLog     *telemetry.ErrorLog

	metricsServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	p, err := newPipeline(cfg)
	if err != nil {
		log.Fatalf("initialize pipeline: %v", err)
	}
	defer p.close()

	logger := telemetry.Component(p.logger, "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info("rocketgnc starting")

	// p.run drives the mission sequencer through states that block for
	// minutes at a time (operator prompts, burn/active/descent waits), so
	// it must run concurrently with the signal wait below — otherwise a
	// SIGINT/SIGTERM delivered mid-mission would sit unread until the
	// mission finished on its own.
	runDone := make(chan error, 1)
	go func() { runDone <- p.run(ctx) }()

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
		cancel()
		<-runDone
	case err := <-runDone:
		if err != nil {
			logger.WithError(err).Error("pipeline run failed")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if p.ground != nil {
		p.ground.Shutdown(shutdownCtx)
	}
	if p.metricsServer != nil {
		p.metricsServer.Shutdown(shutdownCtx)
	}
	if p.disp != nil {
		p.disp.WriteFrame([4]uint16{0, 0, 0, 0})
		p.disp.Reset()
	}

	logger.Info("rocketgnc stopped")
}

// newPipeline opens every serial/GPIO descriptor and constructs the
// subsystems that don't depend on a completed calibration. The estimator
// itself is built lazily inside the sequencer's calibrate hook, since it
// needs the calibration transform up front.
func newPipeline(cfg *config.Config) (*pipeline, error) {
	logger := telemetry.NewLogger(cfg.Logging)

	imuLog, err := telemetry.OpenDomainLog(cfg.Logging.Dir, cfg.Logging.IMULog,
		"timestamp_us\tyaw\tpitch\troll\taccel_x\taccel_y\taccel_z\tpsi\ttheta\tphi\tpsi_dot\ttheta_dot\tphi_dot\tomega_x\tomega_y\tomega_z")
	if err != nil {
		return nil, fmt.Errorf("open imu log: %w", err)
	}
	controlLog, err := telemetry.OpenDomainLog(cfg.Logging.Dir, cfg.Logging.ControlLog,
		"timestamp_us\tr1\tr2\tr3\tr4\tpwm1\tpwm2\tpwm3\tpwm4")
	if err != nil {
		imuLog.Close()
		return nil, fmt.Errorf("open control log: %w", err)
	}
	errLog, err := telemetry.OpenErrorLog(cfg.Logging.Dir, cfg.Logging.ErrorLog)
	if err != nil {
		imuLog.Close()
		controlLog.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	reader, err := imu.Open(cfg.IMU.Port, cfg.IMU.BaudRate, cfg.IMU.SyncRetries)
	if err != nil {
		return nil, fmt.Errorf("open imu: %w", err)
	}

	disp, err := dispatch.Open(cfg.Actuator.Port, cfg.Actuator.BaudRate)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("open actuator: %w", err)
	}

	var launch *launchdetect.Detector
	if cfg.Launch.GPIOPin != "" {
		launch, err = launchdetect.Open(cfg.Launch.GPIOPin)
		if err != nil {
			errLog.Log(telemetry.SeverityInfo, "main", fmt.Sprintf("gpio unavailable, falling back to manual launch prompt: %v", err))
			launch = nil
		}
	}

	flag := &watchtower.FaultFlag{}
	budget := map[string]int{
		"imu":       20,
		"estimator": 20,
		"dispatch":  10,
	}
	monitor := watchtower.NewMonitor(flag, budget)

	allocTable := allocate.ValveTable{Thrust: cfg.Valve.Thrust, PWM: cfg.Valve.PWM}
	alloc := allocate.New(cfg.Gains.TMax, allocTable)

	gains := control.Gains{
		Ktheta: cfg.Gains.Ktheta, TdTheta: cfg.Gains.TdTheta,
		Kpsi: cfg.Gains.Kpsi, TdPsi: cfg.Gains.TdPsi,
		Kphi: cfg.Gains.Kphi,
		TMax: cfg.Gains.TMax, D: cfg.Gains.D,
	}
	law := control.New(gains)

	console := opconsole.New(os.Stdin, os.Stdout)
	seq := sequencer.New(console, launch, flag, sequencerTiming(cfg), errLog)

	p := &pipeline{
		cfg:        cfg,
		logger:     logger,
		imuReader:  reader,
		law:        law,
		alloc:      alloc,
		disp:       disp,
		launch:     launch,
		monitor:    monitor,
		flag:       flag,
		seq:        seq,
		imuLog:     imuLog,
		controlLog: controlLog,
		errLog:     errLog,
	}
	return p, nil
}

func sequencerTiming(cfg *config.Config) sequencer.Timing {
	return sequencer.Timing{
		CalibrationDuration:  time.Duration(cfg.Timing.CalibrationDurationUS) * time.Microsecond,
		BurnDuration:         time.Duration(cfg.Timing.BurnDurationUS) * time.Microsecond,
		ActiveWindowDuration: time.Duration(cfg.Timing.ActiveWindowUS) * time.Microsecond,
		DescentDuration:      time.Duration(cfg.Timing.DescentDurationUS) * time.Microsecond,
	}
}

// run launches every background goroutine and blocks until the mission
// sequencer reaches Shutdown or ctx is cancelled.
func (p *pipeline) run(ctx context.Context) error {
	cfg := p.cfg
	logger := telemetry.Component(p.logger, "main")

	go p.imuReader.Run(ctx, p.errLog, p.monitor, telemetry.Component(p.logger, "imu"), func(reason string) {
		p.flag.Trip(reason)
	})
	go p.monitor.Run(ctx, time.Second, p.errLog)

	controlPeriod := time.Duration(cfg.Timing.ControlPeriodUS) * time.Microsecond
	estimatorPeriod := time.Duration(cfg.Timing.EstimatorPeriodUS) * time.Microsecond

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		p.metricsServer = &http.Server{Addr: cfg.Ground.MetricsAddr, Handler: mux}
		if err := p.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("metrics server stopped")
		}
	}()

	calibrate := func(ctx context.Context, duration time.Duration) error {
		samples, err := collectCalibrationSamples(ctx, p.imuReader, duration)
		if err != nil {
			return err
		}
		cal, err := estimator.Calibrate(samples, cfg.Timing.MinCalibrationSamples)
		if err != nil {
			return err
		}

		p.est = estimator.New(cal,
			toSignalNoise(cfg.Kalman.Psi), toSignalNoise(cfg.Kalman.Theta), toSignalNoise(cfg.Kalman.Phi),
			toSignalNoise(cfg.Kalman.PsiDot), toSignalNoise(cfg.Kalman.ThetaDot), toSignalNoise(cfg.Kalman.PhiDot),
			cfg.IMU.MaxConsecutiveDrops)

		p.ground = groundlink.New(cfg.Ground.HTTPAddr, p.est, p.law, p.alloc, p.seq, p.flag, cfg.Ground.AbortSecret)
		if err := p.ground.Start(ctx, p.errLog); err != nil {
			return fmt.Errorf("start ground link: %w", err)
		}

		go p.est.Run(ctx, p.imuReader, estimatorPeriod, p.imuLog, p.errLog, p.monitor, telemetry.Component(p.logger, "estimator"), func(reason string) {
			p.flag.Trip(reason)
		})
		return nil
	}

	warmup := func(ctx context.Context) error {
		if p.est == nil {
			return fmt.Errorf("estimator not constructed before warm-up")
		}
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if _, ok := p.est.Latest.Load(); ok {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}

		go p.law.Run(ctx, p.est, controlPeriod, func(d control.Demand) {
			if _, err := p.alloc.Allocate(d, cfg.Gains.D); err != nil {
				p.errLog.Log(telemetry.SeverityFatal, "allocate", err.Error())
				p.flag.Trip(err.Error())
			}
		})
		go p.disp.Run(ctx, p.alloc, controlPeriod, p.seq.Enabled, p.controlLog, p.errLog, p.monitor, telemetry.Component(p.logger, "dispatch"))
		return nil
	}

	return p.seq.Run(ctx, calibrate, warmup)
}

func (p *pipeline) close() {
	if p.imuReader != nil {
		p.imuReader.Close()
	}
	if p.disp != nil {
		p.disp.Close()
	}
	p.imuLog.Close()
	p.controlLog.Close()
	p.errLog.Close()
}

func toSignalNoise(sn config.SignalNoise) estimator.SignalNoise {
	return estimator.SignalNoise{Qv: sn.Qv, Qr: sn.Qr, R: sn.R}
}

// collectCalibrationSamples drains the reader's latest-sample cell at a
// fixed rate for duration, building the population used to compute the
// pad-zeroing transform.
func collectCalibrationSamples(ctx context.Context, reader *imu.Reader, duration time.Duration) ([]imu.RawSample, error) {
	var samples []imu.RawSample
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		case <-deadline.C:
			return samples, nil
		case <-ticker.C:
			if s, ok := reader.Samples.Load(); ok {
				samples = append(samples, s)
			}
		}
	}
}

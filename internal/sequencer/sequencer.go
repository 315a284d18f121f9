package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-gnc/rocketgnc/internal/launchdetect"
	"github.com/relabs-gnc/rocketgnc/internal/obsmetrics"
	"github.com/relabs-gnc/rocketgnc/internal/opconsole"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

// Timing carries the mission-phase durations; everything else the
// sequencer needs is either a prompt, a GPIO edge, or the fault flag.
type Timing struct {
	CalibrationDuration time.Duration
	BurnDuration        time.Duration
	ActiveWindowDuration time.Duration
	DescentDuration     time.Duration
}

// Sequencer owns the mission state and is the only writer of it; every
// other goroutine reads State()/Enabled() through the mutex below.
type Sequencer struct {
	console *opconsole.Console
	launch  *launchdetect.Detector
	flag    *watchtower.FaultFlag
	timing  Timing
	errLog  *telemetry.ErrorLog

	mu    sync.RWMutex
	state State
}

// New builds a sequencer. launch may be nil for bench runs without GPIO
// hardware attached; WaitLaunch then falls back to the operator prompt.
func New(console *opconsole.Console, launch *launchdetect.Detector, flag *watchtower.FaultFlag, timing Timing, errLog *telemetry.ErrorLog) *Sequencer {
	return &Sequencer{console: console, launch: launch, flag: flag, timing: timing, errLog: errLog, state: Boot}
}

// State returns the current mission state.
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Enabled reports whether the dispatcher is permitted to command nonzero
// PWM. Only the active window enables it; every other state holds it at
// zero.
func (s *Sequencer) Enabled() bool {
	return s.State() == ActiveWindow
}

func (s *Sequencer) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.errLog.Log(telemetry.SeverityInfo, "sequencer", fmt.Sprintf("state -> %s", st))
	obsmetrics.Get().SequencerState.WithLabelValues(prev.String()).Set(0)
	obsmetrics.Get().SequencerState.WithLabelValues(st.String()).Set(1)
}

// CalibrateFunc performs on-pad calibration for the configured duration
// and reports failure (e.g. too few samples) as an error.
type CalibrateFunc func(ctx context.Context, duration time.Duration) error

// WarmupFunc runs the estimator for a short settling period.
type WarmupFunc func(ctx context.Context) error

// Run drives the full mission lifecycle. It returns when the state
// machine reaches Shutdown, either through the nominal sequence or
// because the shared fault flag tripped.
func (s *Sequencer) Run(ctx context.Context, calibrate CalibrateFunc, warmup WarmupFunc) error {
	if _, err := s.console.Prompt("self-test complete, begin calibration?", "TEST"); err != nil {
		return s.abort(err)
	}

	s.setState(Calibrate)
	if err := calibrate(ctx, s.timing.CalibrationDuration); err != nil {
		s.flag.Trip(err.Error())
		return s.abort(err)
	}
	if _, err := s.console.Prompt("calibration complete, proceed to filter warm-up?", "Calibrate"); err != nil {
		return s.abort(err)
	}

	s.setState(FilterWarmup)
	if err := warmup(ctx); err != nil {
		s.flag.Trip(err.Error())
		return s.abort(err)
	}
	if _, err := s.console.Prompt("filters settled, continue?", "Filter"); err != nil {
		return s.abort(err)
	}
	if _, err := s.console.Prompt("continue to arming?", "Continue"); err != nil {
		return s.abort(err)
	}

	mode, err := s.console.Prompt("select mode", "ACTIVE", "PASSIVE")
	if err != nil {
		return s.abort(err)
	}
	if mode == "ACTIVE" {
		s.setState(ArmedActive)
	} else {
		s.setState(ArmedPassive)
	}

	if _, err := s.console.Prompt("confirm umbilical connected", "CONNECTED_CONNECTED_CONNECTED!"); err != nil {
		return s.abort(err)
	}

	if mode != "ACTIVE" {
		s.setState(Shutdown)
		return nil
	}

	s.setState(WaitLaunch)
	if err := s.waitForLaunch(ctx); err != nil {
		return s.abort(err)
	}

	s.setState(BurnWait)
	if err := s.sleepOrFault(ctx, s.timing.BurnDuration); err != nil {
		return s.abort(err)
	}

	s.setState(ActiveWindow)
	if err := s.sleepOrFault(ctx, s.timing.ActiveWindowDuration); err != nil {
		return s.abort(err)
	}

	s.setState(Descent)
	if err := s.sleepOrFault(ctx, s.timing.DescentDuration); err != nil {
		return s.abort(err)
	}

	s.setState(Shutdown)
	return nil
}

func (s *Sequencer) abort(cause error) error {
	s.setState(Shutdown)
	return fmt.Errorf("mission sequencer aborted: %w", cause)
}

// waitForLaunch blocks on the umbilical GPIO falling edge when hardware
// is attached, polling the fault flag alongside it.
func (s *Sequencer) waitForLaunch(ctx context.Context) error {
	if s.launch == nil {
		_, err := s.console.Prompt("no GPIO attached, confirm launch manually", "LAUNCH")
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.launch.WaitForLaunch(ctx, 10*time.Millisecond) }()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if tripped, reason := s.flag.Tripped(); tripped {
				return fmt.Errorf("fault flag tripped while waiting for launch: %s", reason)
			}
		}
	}
}

// sleepOrFault waits out duration, checking the fault flag every tick so
// a fatal condition elsewhere cuts the phase short instead of running it
// to completion.
func (s *Sequencer) sleepOrFault(ctx context.Context, duration time.Duration) error {
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-poll.C:
			if tripped, reason := s.flag.Tripped(); tripped {
				return fmt.Errorf("fault flag tripped: %s", reason)
			}
		}
	}
}

// Package sequencer drives the mission state machine: calibration, filter
// warm-up, launch-detect, burn-wait, the active control window, and
// shutdown. Sequencer.Enabled is the one gate other subsystems use for
// their "should I act" answer; State is exposed read-only for reporting.
package sequencer

// State is one node of the mission state machine.
type State int

const (
	Boot State = iota
	Calibrate
	FilterWarmup
	ArmedPassive
	ArmedActive
	WaitLaunch
	BurnWait
	ActiveWindow
	Descent
	Shutdown
)

func (s State) String() string {
	switch s {
	case Boot:
		return "boot"
	case Calibrate:
		return "calibrate"
	case FilterWarmup:
		return "filter_warmup"
	case ArmedPassive:
		return "armed_passive"
	case ArmedActive:
		return "armed_active"
	case WaitLaunch:
		return "wait_launch"
	case BurnWait:
		return "burn_wait"
	case ActiveWindow:
		return "active_window"
	case Descent:
		return "descent"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

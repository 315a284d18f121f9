package sequencer

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/relabs-gnc/rocketgnc/internal/opconsole"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

func testErrLog(t *testing.T) *telemetry.ErrorLog {
	dir := t.TempDir()
	log, err := telemetry.OpenErrorLog(dir, "error_log.tsv")
	if err != nil {
		t.Fatalf("open error log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

// TestOnlyActiveWindowEnablesDispatch drives the sequencer through a
// scripted PASSIVE run and checks Enabled() never returns true, since
// only ActiveWindow does.
func TestOnlyActiveWindowEnablesDispatch(t *testing.T) {
	in := strings.NewReader("TEST\nCalibrate\nFilter\nContinue\nPASSIVE\nCONNECTED_CONNECTED_CONNECTED!\n")
	console := opconsole.New(in, os.Stdout)
	flag := &watchtower.FaultFlag{}
	errLog := testErrLog(t)

	seq := New(console, nil, flag, Timing{}, errLog)

	calibrated := false
	calibrate := func(ctx context.Context, d time.Duration) error {
		calibrated = true
		if seq.Enabled() {
			t.Fatal("must not be enabled during calibration")
		}
		return nil
	}
	warmup := func(ctx context.Context) error {
		if seq.Enabled() {
			t.Fatal("must not be enabled during warmup")
		}
		return nil
	}

	if err := seq.Run(context.Background(), calibrate, warmup); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !calibrated {
		t.Fatal("calibrate hook never called")
	}
	if seq.State() != Shutdown {
		t.Fatalf("passive run should end in Shutdown, got %v", seq.State())
	}
	if seq.Enabled() {
		t.Fatal("passive run must never enable the dispatcher")
	}
}

func TestFaultFlagAbortsSleepPhase(t *testing.T) {
	flag := &watchtower.FaultFlag{}
	errLog := testErrLog(t)
	timing := Timing{BurnDuration: 5 * time.Second}

	go func() {
		time.Sleep(30 * time.Millisecond)
		flag.Trip("injected test fault")
	}()

	// launch==nil means waitForLaunch prompts "LAUNCH"; feed it too.
	in := strings.NewReader("TEST\nCalibrate\nFilter\nContinue\nACTIVE\nCONNECTED_CONNECTED_CONNECTED!\nLAUNCH\n")
	console := opconsole.New(in, os.Stdout)
	seq := New(console, nil, flag, timing, errLog)

	noop := func(ctx context.Context, d time.Duration) error { return nil }
	noopWarm := func(ctx context.Context) error { return nil }

	err := seq.Run(context.Background(), noop, noopWarm)
	if err == nil {
		t.Fatal("expected the tripped fault flag to abort the run")
	}
	if seq.State() != Shutdown {
		t.Fatalf("expected Shutdown after abort, got %v", seq.State())
	}
}

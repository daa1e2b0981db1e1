package client

import (
	"testing"
	"time"

	"github.com/juju/errors"
)

func TestRetryFuncDeadlineAlreadyPassed(t *testing.T) {
	probes := 0
	err := RetryFunc(time.Now().Add(-time.Second), "probing", "probe timed out",
		func(time.Time) (bool, error) {
			probes++
			return false, nil
		})
	if !errors.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if probes != 0 {
		t.Errorf("expected zero probes, got %d", probes)
	}
}

func TestRetryFuncAlwaysRetryTimesOut(t *testing.T) {
	start := time.Now()
	deadline := start.Add(50 * time.Millisecond)
	probes := 0
	err := RetryFunc(deadline, "probing", "probe timed out",
		func(time.Time) (bool, error) {
			probes++
			return true, nil
		})
	if !errors.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if probes == 0 {
		t.Error("expected at least one probe")
	}
	if time.Now().Before(deadline) {
		t.Error("loop returned before the deadline")
	}
	if err.Error() != "probe timed out" {
		t.Errorf("unexpected timeout message: %q", err.Error())
	}
}

func TestRetryFuncStopsOnSuccess(t *testing.T) {
	probes := 0
	err := RetryFunc(time.Now().Add(time.Second), "probing", "probe timed out",
		func(time.Time) (bool, error) {
			probes++
			return probes < 3, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probes != 3 {
		t.Errorf("expected 3 probes, got %d", probes)
	}
}

func TestRetryFuncPropagatesProbeError(t *testing.T) {
	boom := errors.New("boom")
	err := RetryFunc(time.Now().Add(time.Second), "probing", "probe timed out",
		func(time.Time) (bool, error) {
			return false, boom
		})
	if err != boom {
		t.Fatalf("expected probe error, got %v", err)
	}
}

package client

import (
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/util/log"
)

const retryBaseWait = time.Millisecond

// RetryFunc repeatedly invokes f until it reports no retry, returns an
// error, or the deadline elapses. The wait between attempts starts at
// 1ms and grows by a factor of 5/4, never sleeping past the deadline.
// When the deadline has already passed before the first attempt, f is
// not invoked at all. A deadline hit always yields a timeout error
// carrying timeoutMsg; retryMsg is only logged.
func RetryFunc(deadline time.Time, retryMsg, timeoutMsg string, f func(deadline time.Time) (retry bool, err error)) error {
	wait := retryBaseWait
	for {
		if !time.Now().Before(deadline) {
			// NewTimeout keeps the message exactly as supplied; Timeoutf
			// would append its own "timeout" suffix
			return errors.NewTimeout(errors.New(timeoutMsg), "")
		}
		retry, err := f(deadline)
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		if log.IsEnableDebug() {
			log.Debug("%s: next attempt in %v", retryMsg, wait)
		}
		if wait > 0 {
			time.Sleep(wait)
		}
		wait = wait * 5 / 4
	}
}

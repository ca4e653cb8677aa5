package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: the probe fails once the live
// goroutine count passes the threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines, threshold %d", n, threshold)
		}
		return nil
	}
}

package pipeline

import (
	"errors"
	"time"

	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
)

// RetryOnBackoff calls f up to attempts times, doubling sleep after each
// failure. Invalid rows are never retried.
func RetryOnBackoff(attempts int, sleep time.Duration, f func() error) (err error) {
	for cur := 0; cur < attempts; cur++ {
		if err = f(); err == nil {
			return nil
		}
		if errors.Is(err, destination.ErrInvalidRows) {
			break
		}
		if attempts > 1 && cur != attempts-1 {
			logger.Infof("retry attempt[%d], retrying after %.2f seconds due to err: %s", cur+1, sleep.Seconds(), err)
			time.Sleep(sleep)
			sleep = sleep * 2
		}
	}

	return err
}

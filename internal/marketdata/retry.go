package marketdata

import "time"

// withRetry runs fn up to attempts times, sleeping delay*n between tries
// (linear backoff). Every adapter in this package funnels its transient
// failures through here so the retry budget lives in one place.
func withRetry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay * time.Duration(i))
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

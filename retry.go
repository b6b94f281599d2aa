// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"time"
)

// withWaitRetry runs a register sequence, retrying it on WAIT responses.
//
// The register engine itself never retries. Memory access built on top of
// it retries the whole sequence (TAR write included) with an exponential
// backoff of 1, 2, 4, ... milliseconds, at most maximumWaitRetries times.
func withWaitRetry(ctx context.Context, op func() error) error {
	var retries int = 0

	for {
		err := op()

		if err == nil || !IsWaitError(err) || retries >= maximumWaitRetries {
			return err
		}

		var delay time.Duration = (1 << retries) * time.Millisecond

		retries++
		logger.Debugf("transfer wait, retry %d, delaying %v", retries, delay)

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

package insurance

import "time"

// InitialRetryDelay is the delay before the first scheduled retry after the
// immediate attempt fails.
const InitialRetryDelay = 60 * time.Second

// backoffTable holds the delays between consecutive scheduled retries:
// 1m, 5m, 30m, 2h, then flat 2h.
var backoffTable = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	1800 * time.Second,
	7200 * time.Second,
}

// RetryDelay returns the delay before the next retry, given that
// failedRetries scheduled retries have already failed: the table is indexed
// by failedRetries-1 and clamped to its last entry once exhausted. Together
// with InitialRetryDelay this yields the overall scheduled sequence
// 60, 60, 300, 1800, 7200, 7200, ... seconds.
func RetryDelay(failedRetries int) time.Duration {
	idx := failedRetries - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(backoffTable)-1 {
		idx = len(backoffTable) - 1
	}
	return backoffTable[idx]
}

package rtc

import (
	"context"
	"time"

	"github.com/hirelink/interviewcore/internal/poll"
)

// waitForGathering resolves when the gathering-complete channel closes or
// after timeout, whichever comes first. Always returns within timeout plus
// one poll interval.
func waitForGathering(ctx context.Context, gathered <-chan struct{}, interval, timeout time.Duration) poll.Result {
	maxTicks := int(timeout / interval)
	if maxTicks < 1 {
		maxTicks = 1
	}
	return poll.Until(ctx, interval, maxTicks, poll.Closed(gathered))
}

// Package poll provides the single cancellable "wait until predicate or
// deadline" primitive shared by the ICE-gathering wait and the avatar
// speech-onset detector.
package poll

import (
	"context"
	"time"
)

type ResolvedBy string

const (
	ByPredicate ResolvedBy = "predicate"
	ByTimeout   ResolvedBy = "timeout"
	ByCancel    ResolvedBy = "canceled"
)

// Result reports how the wait ended and how many ticks it consumed.
type Result struct {
	ResolvedBy ResolvedBy
	Ticks      int
}

// Until checks pred immediately and then once per interval, up to maxTicks
// times. It always returns within interval*maxTicks plus scheduling slack,
// whether or not pred ever becomes true.
func Until(ctx context.Context, interval time.Duration, maxTicks int, pred func() bool) Result {
	if pred() {
		return Result{ResolvedBy: ByPredicate}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; tick <= maxTicks; tick++ {
		select {
		case <-ctx.Done():
			return Result{ResolvedBy: ByCancel, Ticks: tick}
		case <-ticker.C:
			if pred() {
				return Result{ResolvedBy: ByPredicate, Ticks: tick}
			}
		}
	}
	return Result{ResolvedBy: ByTimeout, Ticks: maxTicks}
}

// Closed adapts a completion channel into a predicate for Until.
func Closed(ch <-chan struct{}) func() bool {
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

package feed

import (
	"context"
	"log/slog"
	"time"
)

// deliver tags events with their source and hands them to out. A full
// channel drops the event instead of stalling the source.
func deliver(ctx context.Context, out chan<- ChangeEvent, events []ChangeEvent, source string, logger *slog.Logger) (accepted, dropped int) {
	for _, ev := range events {
		ev.Source = source
		select {
		case out <- ev:
			accepted++
			continue
		case <-ctx.Done():
			return accepted, len(events) - accepted
		default:
		}
		dropped++
		if logger != nil {
			logger.Warn("change channel full, dropping event", "table", ev.Table, "type", ev.Type, "id", ev.ID(), "source", source)
		}
	}
	return accepted, dropped
}

// retry is a doubling delay between reconnect attempts, capped at max.
type retry struct {
	min, max time.Duration
	next     time.Duration
}

func newRetry(min, max time.Duration) *retry {
	return &retry{min: min, max: max, next: min}
}

// wait sleeps for the current delay and doubles it. It returns false when ctx
// ends first.
func (r *retry) wait(ctx context.Context) bool {
	t := time.NewTimer(r.next)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return false
	}
	r.next *= 2
	if r.next > r.max {
		r.next = r.max
	}
	return true
}

func (r *retry) reset() {
	r.next = r.min
}

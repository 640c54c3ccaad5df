// Package waitutil implements the caller-side "wait on a token with a
// deadline" helper named in the concurrency model: timeouts are external,
// implemented by callers waiting on a scheduler token rather than by the
// scheduler itself.
package waitutil

import (
	"context"
	"time"

	"github.com/sourmi12k/demikernel/ioqerr"
	"github.com/sourmi12k/demikernel/scheduler"
)

// Config paces how Wait alternates between ticking the scheduler and
// yielding to ctx, mirroring the two-phase wait shape of a bounded,
// timeout-aware drain loop: try promptly, but don't spin the CPU on long
// waits.
type Config struct {
	// PollInterval is the maximum time Wait sleeps between scheduler
	// ticks while a token remains pending. Defaults to 1ms.
	PollInterval time.Duration
}

var defaultConfig = Config{PollInterval: time.Millisecond}

// Wait ticks group repeatedly until id completes or ctx is done, whichever
// happens first. If the deadline expires first, it returns an
// ioqerr.Error wrapping ETIMEDOUT; the underlying task is NOT removed —
// per the concurrency model, it remains scheduled until it completes or
// the caller explicitly calls group.Remove.
func Wait(ctx context.Context, group *scheduler.Group, id uint64, cfg *Config) (any, error) {
	c := defaultConfig
	if cfg != nil && cfg.PollInterval > 0 {
		c = *cfg
	}

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		scheduler.Tick(group)
		if completed, known := group.HasCompleted(id); known && completed {
			value, _ := group.TakeResult(id)
			return value, nil
		} else if !known {
			return nil, ioqerr.New(ioqerr.EBADF, "wait: unknown task id")
		}

		select {
		case <-ctx.Done():
			return nil, ioqerr.Wrap(ioqerr.ETIMEDOUT, "wait deadline exceeded", ctx.Err())
		case <-ticker.C:
		}
	}
}

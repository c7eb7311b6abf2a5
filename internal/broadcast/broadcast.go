package broadcast

import (
	"context"
	"errors"
	"time"

	"tgcast/internal/subscriber"
	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

// Broadcast is the single dispatch primitive. It snapshots the target set,
// walks it sequentially, classifies every send outcome into the Result, and
// retires recipients who permanently rejected delivery.
//
// It returns an error only for the in-flight guard and for registry faults
// during the initial snapshot; per-recipient failures are data in the Result.
func (s *Service) Broadcast(ctx context.Context, send SendFunc, opts Options) (*Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer s.inFlight.Store(false)

	var filter *subscriber.State
	if opts.OnlyActive {
		st := subscriber.StateActive
		filter = &st
	}
	ids, err := s.store.IDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := newResult(len(ids))
	start := time.Now()
	s.log.Info("broadcast started", logx.Int("total", result.Total), logx.Bool("only_active", opts.OnlyActive))

	cfg, _ := s.snapshotCfg()
	for i, id := range ids {
		s.deliver(ctx, send, id, result)

		if done := i + 1; opts.Progress != nil && done%cfg.ProgressEvery == 0 {
			s.reportProgress(opts.Progress, done, result)
		}
	}

	fields := []logx.Field{
		logx.Int("total", result.Total),
		logx.Int("successful", result.Successful),
		logx.Int("failed", result.Failed),
		logx.Int("blocked", len(result.Blocked)),
		logx.Duration("took", time.Since(start)),
	}
	if result.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return result, nil
}

// deliver attempts one recipient, applying the classification table: flood
// waits retry the same recipient without consuming attempts, transient faults
// back off linearly up to MaxRetries total attempts, permanent rejections
// retire the subscriber, anything else fails straight away.
func (s *Service) deliver(ctx context.Context, send SendFunc, id int64, result *Result) {
	for attempt := 1; ; {
		cfg, lim := s.snapshotCfg()
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				result.addFailure(id, err.Error(), false)
				return
			}
		}

		err := send(ctx, id)
		if err == nil {
			result.addSuccess()
			return
		}

		var rejected *transport.RejectedError
		if errors.As(err, &rejected) {
			result.addFailure(id, err.Error(), true)
			s.retire(ctx, id)
			return
		}

		var flood *transport.FloodError
		if errors.As(err, &flood) {
			wait := flood.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
			s.log.Warn("flood limit hit", logx.Int64("chat_id", id), logx.Duration("retry_after", wait))
			if !sleep(ctx, wait) {
				result.addFailure(id, ctx.Err().Error(), false)
				return
			}
			// Does not count against the attempt budget.
			continue
		}

		var transient *transport.TransientError
		if errors.As(err, &transient) {
			if attempt < cfg.MaxRetries {
				delay := time.Duration(attempt) * cfg.RetryDelay
				s.log.Debug("send retry scheduled",
					logx.Int64("chat_id", id), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
				if !sleep(ctx, delay) {
					result.addFailure(id, ctx.Err().Error(), false)
					return
				}
				attempt++
				continue
			}
			result.addFailure(id, err.Error(), false)
			s.log.Warn("send failed after retries", logx.Int64("chat_id", id), logx.Int("attempts", attempt), logx.Err(err))
			return
		}

		result.addFailure(id, err.Error(), false)
		s.log.Error("unexpected send error", logx.Int64("chat_id", id), logx.Err(err))
		return
	}
}

// retire marks the subscriber kicked. Registry faults here are logged and the
// run continues; only the initial snapshot is fatal.
func (s *Service) retire(ctx context.Context, id int64) {
	found, err := subscriber.SetState(ctx, s.store, id, subscriber.StateKicked)
	if err != nil {
		s.log.Error("failed to retire subscriber", logx.Int64("chat_id", id), logx.Err(err))
		return
	}
	if found {
		s.log.Info("subscriber retired", logx.Int64("chat_id", id))
	}
}

func (s *Service) reportProgress(fn ProgressFunc, done int, result *Result) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Warn("progress callback panic", logx.Any("panic", p))
		}
	}()
	fn(done, result.Total, result.Snapshot())
}

// sleep waits for d or until ctx is done; reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

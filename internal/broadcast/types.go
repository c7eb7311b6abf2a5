package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tgcast/internal/subscriber"
	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

// ErrInProgress is returned when a broadcast is started while another one is
// still running. There is no queue: broadcasts are rare bulk operations and
// serializing them keeps the rate budget whole.
var ErrInProgress = errors.New("broadcast already in progress")

// Config carries the delivery tuning knobs. All values are policy, not
// structure; they can be swapped at runtime via Apply.
type Config struct {
	// MessageDelay is the minimum spacing between consecutive sends.
	// Default 50ms (20 msg/s; Telegram allows ~30/s). Negative disables
	// pacing.
	MessageDelay time.Duration
	// MaxRetries is the total number of delivery attempts per recipient for
	// transient failures. Default 3.
	MaxRetries int
	// RetryDelay is the linear backoff base between attempts
	// (attempt × RetryDelay). Default 1s.
	RetryDelay time.Duration
	// ProgressEvery sets the progress callback cadence in recipients.
	// Default 10.
	ProgressEvery int
}

func (c Config) withDefaults() Config {
	if c.MessageDelay == 0 {
		c.MessageDelay = 50 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 10
	}
	return c
}

// SendFunc delivers one payload to one recipient. Implementations return the
// transport error types for the engine's failure classification.
type SendFunc func(ctx context.Context, chatID int64) error

// ProgressFunc observes a running broadcast. It receives a snapshot of the
// partial result; panics are recovered and logged, never propagated.
type ProgressFunc func(done, total int, partial Result)

// Options control a single broadcast run.
type Options struct {
	// OnlyActive restricts the target snapshot to active subscribers.
	OnlyActive bool
	Progress   ProgressFunc
}

// Service is the broadcast dispatch engine. One payload is fanned out to a
// snapshot of subscribers strictly sequentially; at most one broadcast runs
// per Service instance at any time.
type Service struct {
	store  subscriber.Store
	sender transport.Sender
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	inFlight atomic.Bool
}

func New(store subscriber.Store, sender transport.Sender, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, sender: sender, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps the tuning values at runtime. A run already in flight picks up
// the new values from the next recipient on.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if cfg.MessageDelay > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.MessageDelay), 1)
	} else {
		s.limiter = nil
	}
}

// InProgress reports whether a broadcast is currently running.
func (s *Service) InProgress() bool { return s.inFlight.Load() }

func (s *Service) snapshotCfg() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

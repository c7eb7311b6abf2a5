package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tgcast/internal/broadcast"
	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	// QueueSize bounds the fired-task queue. Default 16.
	QueueSize int
	// IncludeKicked widens scheduled broadcasts to retired subscribers.
	// Off by default: scheduled runs target active subscribers only.
	IncludeKicked bool

	OnComplete CompletionFunc
	OnError    ErrorFunc
}

// Scheduler defers broadcasts to a future time and tracks them until they
// fire or are canceled. Fired tasks run one at a time through a single worker
// so a scheduled run can never overlap another one; overlap with a manually
// triggered broadcast is rejected by the engine's own guard.
type Scheduler struct {
	svc     *broadcast.Service
	backend Backend
	log     logx.Logger
	cfg     Config

	mu      sync.Mutex
	pending map[string]Task

	queue     chan execItem
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	recur *recurState
}

type execItem struct {
	task      Task
	recurring bool
}

// New builds a scheduler around the dispatch engine. A nil backend is
// allowed; every scheduling operation then fails with ErrNotConfigured.
func New(svc *broadcast.Service, backend Backend, cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	s := &Scheduler{
		svc:     svc,
		backend: backend,
		log:     log,
		cfg:     cfg,
		pending: map[string]Task{},
		queue:   make(chan execItem, cfg.QueueSize),
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.initRecur()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(s.runCtx)
	}()
	return s
}

// Close cancels all timers and recurrences and stops the worker. Pending
// tasks are dropped; a task already running finishes its broadcast.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.stopRecur()
		if tb, ok := s.backend.(*TimerBackend); ok {
			tb.StopAll()
		}
		s.runCancel()
		s.wg.Wait()
	})
}

// ScheduleText defers a text broadcast to runAt.
func (s *Scheduler) ScheduleText(text string, opt *transport.SendOptions, runAt time.Time) (string, error) {
	return s.Schedule(TextPayload{Text: text, Options: opt}, runAt)
}

// SchedulePhoto defers a photo broadcast to runAt.
func (s *Scheduler) SchedulePhoto(photo, caption string, opt *transport.SendOptions, runAt time.Time) (string, error) {
	return s.Schedule(PhotoPayload{Photo: photo, Caption: caption, Options: opt}, runAt)
}

// ScheduleCopy defers a copy broadcast of an existing message to runAt.
func (s *Scheduler) ScheduleCopy(fromChatID int64, messageID int, opt *transport.SendOptions, runAt time.Time) (string, error) {
	return s.Schedule(CopyPayload{FromChatID: fromChatID, MessageID: messageID, Options: opt}, runAt)
}

// Schedule registers a one-shot broadcast of the given payload and returns
// the task id for tracking and cancellation.
func (s *Scheduler) Schedule(p Payload, runAt time.Time) (string, error) {
	if s.backend == nil {
		return "", ErrNotConfigured
	}
	t := Task{
		ID:        taskID(),
		Payload:   p,
		RunAt:     runAt,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.pending[t.ID] = t
	s.mu.Unlock()

	if err := s.backend.RegisterAt(runAt, t.ID, func() { s.enqueue(execItem{task: t}) }); err != nil {
		s.mu.Lock()
		delete(s.pending, t.ID)
		s.mu.Unlock()
		return "", err
	}
	s.log.Info("broadcast scheduled",
		logx.String("task", t.ID), logx.String("kind", p.Kind()), logx.Time("run_at", runAt))
	return t.ID, nil
}

// Cancel removes a scheduled task before it fires. Returns false when the id
// is unknown or the task already fired; canceling twice is not an error.
func (s *Scheduler) Cancel(id string) bool {
	if s.backend == nil {
		return false
	}
	if !s.backend.Remove(id) {
		return false
	}
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	s.log.Info("scheduled broadcast canceled", logx.String("task", id))
	return true
}

// Pending returns the tasks waiting to fire, soonest first.
func (s *Scheduler) Pending() []Task {
	s.mu.Lock()
	tasks := make([]Task, 0, len(s.pending))
	for _, t := range s.pending {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].RunAt.Equal(tasks[j].RunAt) {
			return tasks[i].RunAt.Before(tasks[j].RunAt)
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Task returns a pending task by id.
func (s *Scheduler) Task(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[id]
	return t, ok
}

func (s *Scheduler) enqueue(it execItem) {
	select {
	case s.queue <- it:
	case <-s.runCtx.Done():
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			s.execute(ctx, it)
		}
	}
}

// execute runs one fired task. The pending entry is removed unconditionally
// afterwards, and exactly one of the completion or error callbacks fires.
func (s *Scheduler) execute(ctx context.Context, it execItem) {
	if !it.recurring {
		defer func() {
			s.mu.Lock()
			delete(s.pending, it.task.ID)
			s.mu.Unlock()
		}()
	}

	opts := broadcast.Options{OnlyActive: !s.cfg.IncludeKicked}
	result, err := s.runPayload(ctx, it.task.Payload, opts)
	if err != nil {
		s.log.Error("scheduled broadcast failed",
			logx.String("task", it.task.ID), logx.String("kind", it.task.Payload.Kind()), logx.Err(err))
		s.notifyError(it.task.ID, err)
		return
	}
	s.log.Info("scheduled broadcast finished",
		logx.String("task", it.task.ID),
		logx.Int("total", result.Total),
		logx.Int("successful", result.Successful),
		logx.Int("failed", result.Failed))
	s.notifyComplete(it.task.ID, result)
}

func (s *Scheduler) runPayload(ctx context.Context, p Payload, opts broadcast.Options) (result *broadcast.Result, err error) {
	// A panicking custom payload must not take the worker down.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("broadcast panic: %v", r)
		}
	}()
	return p.run(ctx, s.svc, opts)
}

func (s *Scheduler) notifyComplete(id string, result *broadcast.Result) {
	if s.cfg.OnComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("completion callback panic", logx.String("task", id), logx.Any("panic", r))
		}
	}()
	s.cfg.OnComplete(id, result)
}

func (s *Scheduler) notifyError(id string, err error) {
	if s.cfg.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("error callback panic", logx.String("task", id), logx.Any("panic", r))
		}
	}()
	s.cfg.OnError(id, err)
}

func taskID() string {
	return "broadcast_" + uuid.NewString()[:8]
}

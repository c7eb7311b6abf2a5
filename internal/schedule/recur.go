package schedule

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgcast/pkg/logx"
)

// Recurring broadcasts run the same payload on a cron schedule. They share
// the one-shot worker, so a recurrence can never overlap a pending task run.

type recurState struct {
	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]cron.EntryID
}

func (s *Scheduler) initRecur() {
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.recur = &recurState{
		c:       cron.New(cron.WithParser(parser)),
		entries: map[string]cron.EntryID{},
	}
	s.recur.c.Start()
}

func (s *Scheduler) stopRecur() {
	if s.recur != nil {
		<-s.recur.c.Stop().Done()
	}
}

// Recur registers (or replaces) a named recurring broadcast. The spec accepts
// standard cron expressions, an optional seconds field, and descriptors like
// "@hourly" or "@every 30m".
func (s *Scheduler) Recur(name, spec string, p Payload) error {
	if s.backend == nil {
		return ErrNotConfigured
	}
	s.recur.mu.Lock()
	defer s.recur.mu.Unlock()

	if prev, ok := s.recur.entries[name]; ok {
		s.recur.c.Remove(prev)
	}
	id, err := s.recur.c.AddFunc(spec, func() {
		s.enqueue(execItem{
			task:      Task{ID: "recur:" + name, Payload: p, RunAt: time.Now()},
			recurring: true,
		})
	})
	if err != nil {
		return err
	}
	s.recur.entries[name] = id
	s.log.Info("recurring broadcast registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// RemoveRecurrence unregisters a named recurrence. Reports whether it existed.
func (s *Scheduler) RemoveRecurrence(name string) bool {
	s.recur.mu.Lock()
	defer s.recur.mu.Unlock()
	id, ok := s.recur.entries[name]
	if !ok {
		return false
	}
	s.recur.c.Remove(id)
	delete(s.recur.entries, name)
	return true
}

package subscriber

import (
	"context"
	"sync"
)

// Memory is an in-memory Store. It preserves insertion order and is safe for
// concurrent use, which makes it the default driver and the workhorse for
// tests.
type Memory struct {
	mu    sync.RWMutex
	subs  map[int64]Subscriber
	order []int64
}

func NewMemory() *Memory {
	return &Memory{subs: map[int64]Subscriber{}}
}

func (m *Memory) Add(_ context.Context, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; ok {
		return ErrDuplicate
	}
	m.subs[sub.ID] = sub
	m.order = append(m.order, sub.ID)
	return nil
}

func (m *Memory) Get(_ context.Context, id int64) (Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	if !ok {
		return Subscriber{}, ErrNotFound
	}
	return sub, nil
}

func (m *Memory) Update(_ context.Context, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *Memory) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return false, nil
	}
	delete(m.subs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *Memory) IDs(_ context.Context, filter *State) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.order))
	for _, id := range m.order {
		if filter != nil && m.subs[id].State != *filter {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) Count(_ context.Context, filter *State) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if filter == nil {
		return len(m.subs), nil
	}
	n := 0
	for _, sub := range m.subs {
		if sub.State == *filter {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Iterate(ctx context.Context, filter *State, batchSize int, fn func(Subscriber) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	// Snapshot the order so concurrent writes cannot corrupt the walk; records
	// themselves are re-read per batch to keep mutations visible.
	m.mu.RLock()
	order := append([]int64(nil), m.order...)
	m.mu.RUnlock()

	for start := 0; start < len(order); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(order))
		m.mu.RLock()
		batch := make([]Subscriber, 0, end-start)
		for _, id := range order[start:end] {
			sub, ok := m.subs[id]
			if !ok {
				continue
			}
			if filter != nil && sub.State != *filter {
				continue
			}
			batch = append(batch, sub)
		}
		m.mu.RUnlock()
		for _, sub := range batch {
			if err := fn(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tgcast/internal/subscriber"
	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

// fastConfig disables pacing and shrinks retry delays so tests run quickly.
func fastConfig() Config {
	return Config{MessageDelay: -1, MaxRetries: 3, RetryDelay: time.Millisecond, ProgressEvery: 10}
}

func seedStore(t *testing.T, ids ...int64) *subscriber.Memory {
	t.Helper()
	store := subscriber.NewMemory()
	for _, id := range ids {
		sub := subscriber.Subscriber{
			ID:           id,
			FullName:     fmt.Sprintf("user %d", id),
			State:        subscriber.StateActive,
			SubscribedAt: time.Now().UTC(),
		}
		if err := store.Add(context.Background(), sub); err != nil {
			t.Fatalf("seed %d: %v", id, err)
		}
	}
	return store
}

func TestBroadcastAllSuccessful(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1, 2, 3)
	svc := New(store, nil, fastConfig(), logx.Nop())

	res, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 3 || res.Successful != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rate := res.SuccessRate(); rate != 100 {
		t.Fatalf("SuccessRate = %v, want 100", rate)
	}
}

func TestBroadcastOnlyActiveFilter(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1, 2)
	if _, err := subscriber.SetState(context.Background(), store, 2, subscriber.StateKicked); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	svc := New(store, nil, fastConfig(), logx.Nop())

	res, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}

	res, err = svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("unfiltered Total = %d, want 2", res.Total)
	}
}

func TestBroadcastRetiresBlocked(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 10, 20)
	svc := New(store, nil, fastConfig(), logx.Nop())

	send := func(_ context.Context, chatID int64) error {
		if chatID == 20 {
			return &transport.RejectedError{Cause: errors.New("bot was blocked by the user")}
		}
		return nil
	}
	res, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if len(res.Blocked) != 1 || res.Blocked[0] != 20 {
		t.Fatalf("Blocked = %v, want [20]", res.Blocked)
	}
	if _, ok := res.Errors[20]; !ok {
		t.Fatal("expected error detail for 20")
	}

	sub, err := store.Get(context.Background(), 20)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sub.State != subscriber.StateKicked {
		t.Fatalf("State = %s, want kicked", sub.State)
	}
}

func TestBroadcastFloodWait(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1)
	svc := New(store, nil, fastConfig(), logx.Nop())

	var calls atomic.Int32
	send := func(context.Context, int64) error {
		if calls.Add(1) == 1 {
			return &transport.FloodError{RetryAfter: 80 * time.Millisecond, Cause: errors.New("too many requests")}
		}
		return nil
	}

	start := time.Now()
	res, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Successful != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("sender calls = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("elapsed %v, want >= 80ms flood wait", elapsed)
	}
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1)
	svc := New(store, nil, fastConfig(), logx.Nop())

	var calls atomic.Int32
	send := func(context.Context, int64) error {
		calls.Add(1)
		return &transport.TransientError{Cause: errors.New("gateway timeout")}
	}
	res, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("sender calls = %d, want 3 (MaxRetries)", got)
	}
	if res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUnexpectedErrorNoRetry(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1)
	svc := New(store, nil, fastConfig(), logx.Nop())

	var calls atomic.Int32
	send := func(context.Context, int64) error {
		calls.Add(1)
		return errors.New("boom")
	}
	res, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("sender calls = %d, want 1", got)
	}
	if res.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", res.Failed)
	}
}

func TestSingleFlight(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1)
	svc := New(store, nil, fastConfig(), logx.Nop())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan *Result, 1)

	go func() {
		res, _ := svc.Broadcast(context.Background(), func(context.Context, int64) error {
			close(entered)
			<-release
			return nil
		}, Options{OnlyActive: true})
		done <- res
	}()

	<-entered
	if !svc.InProgress() {
		t.Fatal("InProgress = false during run")
	}
	if _, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{}); !errors.Is(err, ErrInProgress) {
		t.Fatalf("second broadcast err = %v, want ErrInProgress", err)
	}

	close(release)
	res := <-done
	if res.Successful != 1 {
		t.Fatalf("first run result: %+v", res)
	}

	// Guard released: a fresh run proceeds.
	if _, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{}); err != nil {
		t.Fatalf("follow-up broadcast: %v", err)
	}
}

func TestSnapshotFixation(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1, 2)
	svc := New(store, nil, fastConfig(), logx.Nop())

	send := func(ctx context.Context, chatID int64) error {
		// Joining mid-run must not widen the current broadcast.
		_ = store.Add(ctx, subscriber.Subscriber{ID: 100 + chatID, State: subscriber.StateActive, SubscribedAt: time.Now()})
		return nil
	}
	res, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Total != 2 || res.Successful != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRateSpacing(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1, 2, 3)
	cfg := fastConfig()
	cfg.MessageDelay = 50 * time.Millisecond
	svc := New(store, nil, cfg, logx.Nop())

	var stamps []time.Time
	send := func(context.Context, int64) error {
		stamps = append(stamps, time.Now())
		return nil
	}
	if _, err := svc.Broadcast(context.Background(), send, Options{OnlyActive: true}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(stamps) != 3 {
		t.Fatalf("sends = %d, want 3", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 45*time.Millisecond {
			t.Fatalf("gap %d = %v, want >= 50ms spacing", i, gap)
		}
	}
}

func TestProgressCadence(t *testing.T) {
	t.Parallel()
	var ids []int64
	for i := int64(1); i <= 25; i++ {
		ids = append(ids, i)
	}
	store := seedStore(t, ids...)
	svc := New(store, nil, fastConfig(), logx.Nop())

	type tick struct {
		done, total, successful int
	}
	var ticks []tick
	opts := Options{
		OnlyActive: true,
		Progress: func(done, total int, partial Result) {
			ticks = append(ticks, tick{done, total, partial.Successful})
		},
	}
	if _, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, opts); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	want := []tick{{10, 25, 10}, {20, 25, 20}}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %+v, want %+v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("tick %d = %+v, want %+v", i, ticks[i], want[i])
		}
	}
}

func TestProgressPanicDoesNotAbort(t *testing.T) {
	t.Parallel()
	var ids []int64
	for i := int64(1); i <= 12; i++ {
		ids = append(ids, i)
	}
	store := seedStore(t, ids...)
	svc := New(store, nil, fastConfig(), logx.Nop())

	opts := Options{
		OnlyActive: true,
		Progress:   func(int, int, Result) { panic("observer bug") },
	}
	res, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, opts)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Successful != 12 {
		t.Fatalf("Successful = %d, want 12", res.Successful)
	}
}

// faultyStore fails the id snapshot to exercise the fatal-snapshot path.
type faultyStore struct {
	*subscriber.Memory
}

func (f *faultyStore) IDs(context.Context, *subscriber.State) ([]int64, error) {
	return nil, &subscriber.StorageError{Op: "ids", Err: errors.New("disk gone")}
}

func TestSnapshotErrorReleasesGuard(t *testing.T) {
	t.Parallel()
	svc := New(&faultyStore{subscriber.NewMemory()}, nil, fastConfig(), logx.Nop())

	_, err := svc.Broadcast(context.Background(), func(context.Context, int64) error { return nil }, Options{})
	var storageErr *subscriber.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if svc.InProgress() {
		t.Fatal("guard stuck after snapshot failure")
	}
}

func TestSuccessRateZeroTotal(t *testing.T) {
	t.Parallel()
	r := newResult(0)
	if got := r.SuccessRate(); got != 0 {
		t.Fatalf("SuccessRate = %v, want 0", got)
	}
}

package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tgcast/pkg/logx"
)

var (
	// ErrNotFound is returned when the requested subscriber does not exist.
	ErrNotFound = errors.New("subscriber not found")
	// ErrDuplicate is returned by Add when the id is already registered.
	ErrDuplicate = errors.New("subscriber already exists")
)

// StorageError wraps a driver-level fault so callers can tell storage failures
// apart from not-found/duplicate conditions.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "subscriber storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store is the subscriber registry consumed by the dispatch engine.
//
// Mutations are immediately visible to subsequent reads. Implementations must
// tolerate concurrent reads while a broadcast marks individual subscribers
// kicked.
type Store interface {
	// Add inserts a new subscriber. Fails with ErrDuplicate if the id exists.
	Add(ctx context.Context, sub Subscriber) error
	// Get returns the subscriber or ErrNotFound.
	Get(ctx context.Context, id int64) (Subscriber, error)
	// Update replaces the stored record. Fails with ErrNotFound if absent.
	Update(ctx context.Context, sub Subscriber) error
	// Delete removes the subscriber; reports whether anything was deleted.
	Delete(ctx context.Context, id int64) (bool, error)
	// IDs returns subscriber ids in insertion order, optionally filtered by state.
	IDs(ctx context.Context, filter *State) ([]int64, error)
	// Count returns the number of subscribers matching the filter.
	Count(ctx context.Context, filter *State) (int, error)
	// Iterate visits subscribers in bounded batches so the full set never has
	// to fit in memory. Iteration stops early if fn returns an error.
	Iterate(ctx context.Context, filter *State, batchSize int, fn func(Subscriber) error) error

	Close() error
}

// Config selects and configures a store driver.
//
// Driver values: "memory" (default when empty) or "sqlite".
type Config struct {
	Driver      string
	Path        string        // sqlite only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown subscriber store driver: %s", driver)
	}
}

// Upsert fetches the subscriber or creates it, refreshing the mutable display
// attributes either way. Reports whether a new record was created.
func Upsert(ctx context.Context, st Store, id int64, fullName, username, langCode string) (Subscriber, bool, error) {
	sub, err := st.Get(ctx, id)
	switch {
	case err == nil:
		if sub.FullName == fullName && sub.Username == username && sub.LanguageCode == langCode {
			return sub, false, nil
		}
		sub.FullName = fullName
		sub.Username = username
		sub.LanguageCode = langCode
		if err := st.Update(ctx, sub); err != nil {
			return Subscriber{}, false, err
		}
		return sub, false, nil
	case errors.Is(err, ErrNotFound):
		sub = Subscriber{
			ID:           id,
			FullName:     fullName,
			Username:     username,
			LanguageCode: langCode,
			State:        StateActive,
			SubscribedAt: time.Now().UTC(),
		}
		if err := st.Add(ctx, sub); err != nil {
			return Subscriber{}, false, err
		}
		return sub, true, nil
	default:
		return Subscriber{}, false, err
	}
}

// SetState flips the subscriber's state. Reports whether the subscriber was
// found. Setting the state a subscriber already has is a no-op, which keeps
// repeated kick notices idempotent.
func SetState(ctx context.Context, st Store, id int64, state State) (bool, error) {
	sub, err := st.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sub.State == state {
		return true, nil
	}
	sub.State = state
	if err := st.Update(ctx, sub); err != nil {
		return false, err
	}
	return true, nil
}

package schedule

import (
	"context"
	"errors"
	"time"

	"tgcast/internal/broadcast"
	"tgcast/internal/transport"
)

// ErrNotConfigured is returned when scheduling is attempted without a timer
// backend. It is checked before any state is mutated.
var ErrNotConfigured = errors.New("scheduler backend not configured")

// Task is one deferred broadcast waiting to fire. It lives in the pending
// table from registration until it either fires or is canceled.
type Task struct {
	ID        string
	Payload   Payload
	RunAt     time.Time
	CreatedAt time.Time
}

// Payload is the tagged variant of broadcastable content. Each kind carries
// its own strongly typed parameters, resolved at schedule time. The interface
// is sealed: only the payload types in this package implement it.
type Payload interface {
	Kind() string
	run(ctx context.Context, svc *broadcast.Service, opts broadcast.Options) (*broadcast.Result, error)
}

type TextPayload struct {
	Text    string
	Options *transport.SendOptions
}

func (p TextPayload) Kind() string { return "text" }

func (p TextPayload) run(ctx context.Context, svc *broadcast.Service, opts broadcast.Options) (*broadcast.Result, error) {
	return svc.Text(ctx, p.Text, p.Options, opts)
}

type PhotoPayload struct {
	Photo   string // file_id, URL, or local path
	Caption string
	Options *transport.SendOptions
}

func (p PhotoPayload) Kind() string { return "photo" }

func (p PhotoPayload) run(ctx context.Context, svc *broadcast.Service, opts broadcast.Options) (*broadcast.Result, error) {
	return svc.Photo(ctx, p.Photo, p.Caption, p.Options, opts)
}

type CopyPayload struct {
	FromChatID int64
	MessageID  int
	Options    *transport.SendOptions
}

func (p CopyPayload) Kind() string { return "copy" }

func (p CopyPayload) run(ctx context.Context, svc *broadcast.Service, opts broadcast.Options) (*broadcast.Result, error) {
	return svc.Copy(ctx, p.FromChatID, p.MessageID, p.Options, opts)
}

// CustomPayload broadcasts through a caller-supplied send function, for
// content the built-in kinds do not cover.
type CustomPayload struct {
	Name string
	Send broadcast.SendFunc
}

func (p CustomPayload) Kind() string {
	if p.Name != "" {
		return p.Name
	}
	return "custom"
}

func (p CustomPayload) run(ctx context.Context, svc *broadcast.Service, opts broadcast.Options) (*broadcast.Result, error) {
	return svc.Broadcast(ctx, p.Send, opts)
}

// CompletionFunc observes a finished scheduled broadcast.
type CompletionFunc func(taskID string, result *broadcast.Result)

// ErrorFunc observes a scheduled broadcast that failed to run at all
// (guarded, or the registry snapshot failed). Exactly one of CompletionFunc
// or ErrorFunc fires per execution, never both.
type ErrorFunc func(taskID string, err error)

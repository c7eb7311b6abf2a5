package transport

import (
	"context"
	"fmt"
	"time"
)

// SendOptions carries the delivery parameters common to all payload kinds.
type SendOptions struct {
	ParseMode      string // "", "HTML", "MarkdownV2"
	DisablePreview bool
	Silent         bool // deliver without a notification sound
	Protect        bool // forbid forwarding/saving of the delivered message
}

// Sender is the outbound half of the messaging transport. It is the only
// coupling point between the dispatch engine and the platform API.
//
// Implementations must return the typed errors below so the engine can tell
// permanent rejections, flood waits, and transient faults apart; any other
// error is treated as unexpected and not retried.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, chatID int64, photo, caption string, opt *SendOptions) error
	SendVideo(ctx context.Context, chatID int64, video, caption string, opt *SendOptions) error
	SendDocument(ctx context.Context, chatID int64, document, caption string, opt *SendOptions) error
	Copy(ctx context.Context, chatID, fromChatID int64, messageID int, opt *SendOptions) error
}

// RejectedError marks a recipient as permanently unreachable: they blocked the
// bot, deleted their account, or kicked it from the chat. Re-engagement is the
// only way back.
type RejectedError struct {
	Cause error
}

func (e *RejectedError) Error() string { return "recipient rejected delivery: " + e.Cause.Error() }
func (e *RejectedError) Unwrap() error { return e.Cause }

// FloodError reports that the platform throttled the send and told us when to
// try again.
type FloodError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *FloodError) Error() string {
	return fmt.Sprintf("flood limit, retry after %s: %v", e.RetryAfter, e.Cause)
}
func (e *FloodError) Unwrap() error { return e.Cause }

// TransientError reports a fault worth retrying with backoff.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "transient send failure: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

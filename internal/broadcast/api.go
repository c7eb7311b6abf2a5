package broadcast

import (
	"context"

	"tgcast/internal/subscriber"
	"tgcast/internal/transport"
)

// The payload wrappers below all delegate to Broadcast; there is exactly one
// dispatch algorithm.

// Text broadcasts a text message.
func (s *Service) Text(ctx context.Context, text string, opt *transport.SendOptions, opts Options) (*Result, error) {
	return s.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return s.sender.SendText(ctx, chatID, text, opt)
	}, opts)
}

// Photo broadcasts a photo by file_id, URL, or local path.
func (s *Service) Photo(ctx context.Context, photo, caption string, opt *transport.SendOptions, opts Options) (*Result, error) {
	return s.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return s.sender.SendPhoto(ctx, chatID, photo, caption, opt)
	}, opts)
}

// Video broadcasts a video by file_id, URL, or local path.
func (s *Service) Video(ctx context.Context, video, caption string, opt *transport.SendOptions, opts Options) (*Result, error) {
	return s.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return s.sender.SendVideo(ctx, chatID, video, caption, opt)
	}, opts)
}

// Document broadcasts a document by file_id, URL, or local path.
func (s *Service) Document(ctx context.Context, document, caption string, opt *transport.SendOptions, opts Options) (*Result, error) {
	return s.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return s.sender.SendDocument(ctx, chatID, document, caption, opt)
	}, opts)
}

// Copy re-sends an existing message to every recipient without the forward
// header. Useful for fanning out a message an operator composed by hand.
func (s *Service) Copy(ctx context.Context, fromChatID int64, messageID int, opt *transport.SendOptions, opts Options) (*Result, error) {
	return s.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return s.sender.Copy(ctx, chatID, fromChatID, messageID, opt)
	}, opts)
}

// SubscriberCount reports how many subscribers a broadcast with the given
// filter would target right now.
func (s *Service) SubscriberCount(ctx context.Context, onlyActive bool) (int, error) {
	var filter *subscriber.State
	if onlyActive {
		st := subscriber.StateActive
		filter = &st
	}
	return s.store.Count(ctx, filter)
}

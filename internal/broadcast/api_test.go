package broadcast

import (
	"context"
	"testing"

	"tgcast/internal/subscriber"
	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

type recordedSend struct {
	method  string
	chatID  int64
	chatID2 int64
	msgID   int
	ref     string
	text    string
}

type fakeSender struct {
	sends []recordedSend
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string, _ *transport.SendOptions) error {
	f.sends = append(f.sends, recordedSend{method: "text", chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID int64, photo, caption string, _ *transport.SendOptions) error {
	f.sends = append(f.sends, recordedSend{method: "photo", chatID: chatID, ref: photo, text: caption})
	return nil
}

func (f *fakeSender) SendVideo(_ context.Context, chatID int64, video, caption string, _ *transport.SendOptions) error {
	f.sends = append(f.sends, recordedSend{method: "video", chatID: chatID, ref: video, text: caption})
	return nil
}

func (f *fakeSender) SendDocument(_ context.Context, chatID int64, document, caption string, _ *transport.SendOptions) error {
	f.sends = append(f.sends, recordedSend{method: "document", chatID: chatID, ref: document, text: caption})
	return nil
}

func (f *fakeSender) Copy(_ context.Context, chatID, fromChatID int64, messageID int, _ *transport.SendOptions) error {
	f.sends = append(f.sends, recordedSend{method: "copy", chatID: chatID, chatID2: fromChatID, msgID: messageID})
	return nil
}

func TestPayloadWrappers(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 7)
	sender := &fakeSender{}
	svc := New(store, sender, fastConfig(), logx.Nop())
	ctx := context.Background()

	if _, err := svc.Text(ctx, "hello", nil, Options{OnlyActive: true}); err != nil {
		t.Fatalf("Text: %v", err)
	}
	if _, err := svc.Photo(ctx, "photo-id", "cap", nil, Options{OnlyActive: true}); err != nil {
		t.Fatalf("Photo: %v", err)
	}
	if _, err := svc.Copy(ctx, 42, 99, nil, Options{OnlyActive: true}); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	want := []recordedSend{
		{method: "text", chatID: 7, text: "hello"},
		{method: "photo", chatID: 7, ref: "photo-id", text: "cap"},
		{method: "copy", chatID: 7, chatID2: 42, msgID: 99},
	}
	if len(sender.sends) != len(want) {
		t.Fatalf("sends = %+v, want %+v", sender.sends, want)
	}
	for i := range want {
		if sender.sends[i] != want[i] {
			t.Fatalf("send %d = %+v, want %+v", i, sender.sends[i], want[i])
		}
	}
}

func TestSubscriberCount(t *testing.T) {
	t.Parallel()
	store := seedStore(t, 1, 2, 3)
	if _, err := subscriber.SetState(context.Background(), store, 3, subscriber.StateKicked); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	svc := New(store, nil, fastConfig(), logx.Nop())

	n, err := svc.SubscriberCount(context.Background(), true)
	if err != nil {
		t.Fatalf("SubscriberCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("active count = %d, want 2", n)
	}
	n, err = svc.SubscriberCount(context.Background(), false)
	if err != nil {
		t.Fatalf("SubscriberCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("total count = %d, want 3", n)
	}
}

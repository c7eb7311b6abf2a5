package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgcast/internal/transport"
	"tgcast/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Hooks are invoked from the long-poll loop when inbound traffic reveals
// something about a subscriber. They are optional; nil hooks are skipped.
type Hooks struct {
	// Seen fires for every private message, with the sender's current
	// display attributes.
	Seen func(ctx context.Context, userID int64, fullName, username, langCode string)
	// StateChange fires when the bot is blocked/unblocked by a user.
	StateChange func(ctx context.Context, userID int64, active bool)
}

// Adapter speaks the Telegram Bot API via telebot and translates its error
// shapes into the transport taxonomy.
type Adapter struct {
	cfg   Config
	log   logx.Logger
	bot   *tele.Bot
	hooks Hooks

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	runWG   sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Bot exposes the underlying telebot instance for handler registration by the
// surrounding application (menus, admin commands).
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start begins long polling. Inbound private messages and membership updates
// are forwarded to the hooks.
func (a *Adapter) Start(ctx context.Context, hooks Hooks) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.hooks = hooks

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || !m.Private() {
			return nil
		}
		if a.hooks.Seen != nil {
			a.hooks.Seen(ctx, m.Sender.ID, fullName(m.Sender), m.Sender.Username, m.Sender.LanguageCode)
		}
		return nil
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		u := c.ChatMember()
		if u == nil || u.Sender == nil || u.NewChatMember == nil {
			return nil
		}
		if a.hooks.StateChange != nil {
			active := u.NewChatMember.Role != tele.Kicked && u.NewChatMember.Role != tele.Left
			a.hooks.StateChange(ctx, u.Sender.ID, active)
		}
		return nil
	})

	stop := make(chan struct{})
	a.stop = stop

	// The watcher owns the only bot.Stop call, whether shutdown comes from the
	// context or from Stop; it is tracked by the WaitGroup so Stop never
	// returns while it is still alive.
	a.runWG.Add(2)
	go func() {
		defer a.runWG.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		}
		a.bot.Stop()
	}()
	go func() {
		defer a.runWG.Done()
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	close(a.stop)
	a.runWG.Wait()
}

func (a *Adapter) SendText(_ context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	_, err := a.bot.Send(tele.ChatID(chatID), text, teleOptions(opt))
	return Classify(err)
}

func (a *Adapter) SendPhoto(_ context.Context, chatID int64, photo, caption string, opt *transport.SendOptions) error {
	p := &tele.Photo{File: fileRef(photo), Caption: caption}
	_, err := a.bot.Send(tele.ChatID(chatID), p, teleOptions(opt))
	return Classify(err)
}

func (a *Adapter) SendVideo(_ context.Context, chatID int64, video, caption string, opt *transport.SendOptions) error {
	v := &tele.Video{File: fileRef(video), Caption: caption}
	_, err := a.bot.Send(tele.ChatID(chatID), v, teleOptions(opt))
	return Classify(err)
}

func (a *Adapter) SendDocument(_ context.Context, chatID int64, document, caption string, opt *transport.SendOptions) error {
	d := &tele.Document{File: fileRef(document), Caption: caption}
	_, err := a.bot.Send(tele.ChatID(chatID), d, teleOptions(opt))
	return Classify(err)
}

func (a *Adapter) Copy(_ context.Context, chatID, fromChatID int64, messageID int, opt *transport.SendOptions) error {
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: fromChatID}
	_, err := a.bot.Copy(tele.ChatID(chatID), src, teleOptions(opt))
	return Classify(err)
}

// Classify maps telebot errors onto the transport error taxonomy.
//
// Flood control (429 with retry_after) becomes a FloodError, 403-class errors
// (blocked, deactivated, kicked) become RejectedError, and every other API
// error is considered transient. Errors that did not come from the API at all
// pass through unchanged and are treated as unexpected by the engine.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.FloodError{
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Cause:      err,
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 403 {
			return &transport.RejectedError{Cause: err}
		}
		return &transport.TransientError{Cause: err}
	}

	return err
}

func teleOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
		Protected:             opt.Protect,
	}
}

// fileRef resolves a payload reference: URLs and local paths are uploaded,
// anything else is assumed to be a Telegram file_id.
func fileRef(ref string) tele.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tele.FromURL(ref)
	}
	if strings.ContainsAny(ref, "/\\") {
		return tele.FromDisk(ref)
	}
	return tele.File{FileID: ref}
}

func fullName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

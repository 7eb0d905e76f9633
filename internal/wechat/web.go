package wechat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eatmoreapple/openwechat"

	"infobot/internal/domain"
)

// WebClient implements domain.Automator over the WeChat Web protocol
// via openwechat. Unlike the desktop automator it receives messages by
// push: incoming entries are cached per contact for ReadLatest and,
// when a sink is attached, handed to it directly so no polling monitor
// is needed.
type WebClient struct {
	logger      *slog.Logger
	storagePath string

	mu      sync.RWMutex
	bot     *openwechat.Bot
	self    *openwechat.Self
	storage io.ReadWriteCloser // file-backed hot-login session
	latest  map[string]domain.LatestEntry
	sink    func(contact string, entry domain.LatestEntry)
}

func NewWebClient(storagePath string, logger *slog.Logger) *WebClient {
	return &WebClient{
		logger:      logger,
		storagePath: storagePath,
		latest:      make(map[string]domain.LatestEntry),
	}
}

func (w *WebClient) Name() string { return "openwechat" }

// SetSink attaches a push consumer for observed entries. Must be set
// before Login.
func (w *WebClient) SetSink(sink func(contact string, entry domain.LatestEntry)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Login performs QR-code login (hot login when a storage path is
// configured, so a restart does not require rescanning) and starts
// consuming push messages.
func (w *WebClient) Login(ctx context.Context) error {
	bot := openwechat.DefaultBot(openwechat.Desktop)
	bot.UUIDCallback = openwechat.PrintlnQrcodeUrl
	bot.MessageHandler = w.onMessage

	if w.storagePath != "" {
		storage := openwechat.NewFileHotReloadStorage(w.storagePath)
		if err := bot.HotLogin(storage, openwechat.NewRetryLoginOption()); err != nil {
			storage.Close()
			return fmt.Errorf("wechat web login: %w", err)
		}
		w.mu.Lock()
		w.storage = storage
		w.mu.Unlock()
	} else if err := bot.Login(); err != nil {
		return fmt.Errorf("wechat web login: %w", err)
	}

	self, err := bot.GetCurrentUser()
	if err != nil {
		return fmt.Errorf("wechat web: current user: %w", err)
	}

	w.mu.Lock()
	w.bot = bot
	w.self = self
	w.mu.Unlock()

	w.logger.Info("wechat web session established", "user", self.NickName)
	return nil
}

func (w *WebClient) onMessage(msg *openwechat.Message) {
	if msg.IsSendBySelf() {
		return
	}
	sender, err := msg.Sender()
	if err != nil {
		w.logger.Warn("cannot attribute message sender", "err", err)
		return
	}
	name := sender.RemarkName
	if name == "" {
		name = sender.NickName
	}

	kind := domain.KindOther
	switch {
	case msg.IsText():
		kind = domain.KindText
	case msg.IsPicture():
		kind = domain.KindImage
	}

	entry := domain.LatestEntry{
		Content:    msg.Content,
		Kind:       kind,
		ObservedAt: time.Now(),
	}

	w.mu.Lock()
	w.latest[name] = entry
	sink := w.sink
	w.mu.Unlock()

	if sink != nil {
		sink(name, entry)
	}
}

func (w *WebClient) Ready(ctx context.Context) error {
	w.mu.RLock()
	bot := w.bot
	w.mu.RUnlock()
	if bot == nil {
		return fmt.Errorf("wechat web: not logged in")
	}
	if !bot.Alive() {
		return fmt.Errorf("wechat web: session expired")
	}
	return nil
}

// Focus is a no-op: the web protocol has no window to raise.
func (w *WebClient) Focus(ctx context.Context, contact string) error { return nil }

// ReadLatest returns the most recent pushed entry for the contact, or
// an empty entry when nothing was observed yet.
func (w *WebClient) ReadLatest(ctx context.Context, contact string) (domain.LatestEntry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest[contact], nil
}

func (w *WebClient) Send(ctx context.Context, contact string, text string) error {
	w.mu.RLock()
	self := w.self
	w.mu.RUnlock()
	if self == nil {
		return fmt.Errorf("wechat web: not logged in")
	}

	friends, err := self.Friends()
	if err != nil {
		return fmt.Errorf("wechat web: list friends: %w", err)
	}
	matches := friends.SearchByRemarkName(1, contact)
	if matches.Count() == 0 {
		matches = friends.SearchByNickName(1, contact)
	}
	if matches.Count() == 0 {
		return fmt.Errorf("wechat web: contact %q not found", contact)
	}

	if _, err := matches.First().SendText(text); err != nil {
		return fmt.Errorf("wechat web: send to %s: %w", contact, err)
	}
	return nil
}

// Refresh re-fetches the friend list to confirm the session still
// answers.
func (w *WebClient) Refresh(ctx context.Context) error {
	w.mu.RLock()
	self := w.self
	w.mu.RUnlock()
	if self == nil {
		return fmt.Errorf("wechat web: not logged in")
	}
	if _, err := self.Friends(true); err != nil {
		return fmt.Errorf("wechat web: refresh: %w", err)
	}
	return nil
}

func (w *WebClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.storage != nil {
		w.storage.Close()
		w.storage = nil
	}
	if w.bot != nil {
		return w.bot.Logout()
	}
	return nil
}

package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	eventbus "infobot/internal/bus"
	"infobot/internal/config"
	"infobot/internal/domain"
	"infobot/internal/handler"
	"infobot/internal/store"
	"infobot/internal/wechat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentItem struct {
	contact string
	text    string
}

type fakeAutomator struct {
	mu       sync.Mutex
	sends    []sentItem
	failSend map[string]error
}

func newFakeAutomator() *fakeAutomator {
	return &fakeAutomator{failSend: make(map[string]error)}
}

func (f *fakeAutomator) Name() string                              { return "fake" }
func (f *fakeAutomator) Ready(context.Context) error               { return nil }
func (f *fakeAutomator) Refresh(context.Context) error             { return nil }
func (f *fakeAutomator) Focus(context.Context, string) error       { return nil }
func (f *fakeAutomator) ReadLatest(context.Context, string) (domain.LatestEntry, error) {
	return domain.LatestEntry{}, nil
}

func (f *fakeAutomator) Send(_ context.Context, contact, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSend[contact]; err != nil {
		return err
	}
	f.sends = append(f.sends, sentItem{contact: contact, text: text})
	return nil
}

func (f *fakeAutomator) sent() []sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentItem(nil), f.sends...)
}

type fakeEnricher struct {
	summary      string
	summaryErr   error
	forward      bool
	forwardErr   error
	summarized   int
	analyzed     int
}

func (f *fakeEnricher) Name() string                  { return "fake-ai" }
func (f *fakeEnricher) Healthy(context.Context) error { return nil }

func (f *fakeEnricher) Summarize(context.Context, string, string) (string, error) {
	f.summarized++
	return f.summary, f.summaryErr
}

func (f *fakeEnricher) ShouldForward(context.Context, string, string) (bool, error) {
	f.analyzed++
	return f.forward, f.forwardErr
}

func testSettings() *config.Config {
	cfg := config.Defaults()
	cfg.Teachers = []config.ContactEntry{{Name: "王老師"}}
	cfg.Students = []config.ContactEntry{{Name: "Alice"}, {Name: "Bob"}}
	cfg.Forward.Template = "" // raw payloads keep assertions readable
	return cfg
}

func newTestBot(t *testing.T, settings *config.Config, auto *fakeAutomator, enricher domain.Enricher) *Bot {
	t.Helper()
	logger := testLogger()

	journal, err := store.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	return New(Config{
		Settings:   settings,
		Logger:     logger,
		Bus:        eventbus.New(16, logger),
		Events:     eventbus.NewEventBus(logger),
		Journal:    journal,
		Planner: handler.New(handler.Options{
			AckText:  settings.General.AckText,
			Students: settings.StudentContacts(),
			Template: settings.Forward.Template,
		}),
		Controller: wechat.NewController(auto, logger),
		Enricher:   enricher,
	})
}

func teacherMessage(content string) domain.IncomingMessage {
	sender := domain.Contact{Role: domain.RoleTeacher, DisplayName: "王老師"}
	return domain.NewIncomingMessage(sender, content, domain.KindText, time.Now())
}

func TestProcess_TeacherMessage(t *testing.T) {
	auto := newFakeAutomator()
	b := newTestBot(t, testSettings(), auto, nil)
	ctx := context.Background()

	b.process(ctx, teacherMessage("Homework due Friday"), false)

	want := []sentItem{
		{"王老師", "收到！"},
		{"Alice", "Homework due Friday"},
		{"Bob", "Homework due Friday"},
	}
	if len(auto.sends) != len(want) {
		t.Fatalf("expected %d sends, got %d: %+v", len(want), len(auto.sends), auto.sends)
	}
	for i := range want {
		if auto.sends[i] != want[i] {
			t.Errorf("send %d = %+v, want %+v", i, auto.sends[i], want[i])
		}
	}

	if n, _ := b.journal.PendingCount(ctx); n != 0 {
		t.Errorf("message not marked processed, %d pending", n)
	}
	if got := b.stats.Forwarded.Load(); got != 2 {
		t.Errorf("forwarded counter = %d, want 2", got)
	}
	if got := b.stats.AutoReplies.Load(); got != 1 {
		t.Errorf("reply counter = %d, want 1", got)
	}
}

func TestProcess_DuplicateObservation(t *testing.T) {
	auto := newFakeAutomator()
	b := newTestBot(t, testSettings(), auto, nil)
	ctx := context.Background()

	msg := teacherMessage("notice")
	b.process(ctx, msg, false)
	b.process(ctx, msg, false)

	if len(auto.sends) != 3 {
		t.Fatalf("duplicate observation re-executed the plan: %d sends", len(auto.sends))
	}
	if got := b.stats.Received.Load(); got != 1 {
		t.Errorf("received counter = %d, want 1", got)
	}
}

func TestProcess_UnknownSenderIgnored(t *testing.T) {
	auto := newFakeAutomator()
	b := newTestBot(t, testSettings(), auto, nil)
	ctx := context.Background()

	stranger := domain.Contact{Role: domain.RoleUnknown, DisplayName: "Stranger"}
	b.process(ctx, domain.NewIncomingMessage(stranger, "hello?", domain.KindText, time.Now()), false)

	if len(auto.sends) != 0 {
		t.Fatalf("unknown sender triggered sends: %+v", auto.sends)
	}
	if got := b.stats.Ignored.Load(); got != 1 {
		t.Errorf("ignored counter = %d, want 1", got)
	}
	// ignored messages do not linger in the journal
	if n, _ := b.journal.PendingCount(ctx); n != 0 {
		t.Errorf("%d pending after ignore, want 0", n)
	}
}

func TestProcess_SendFailureRedelivered(t *testing.T) {
	auto := newFakeAutomator()
	auto.failSend["Bob"] = errors.New("window not found")
	b := newTestBot(t, testSettings(), auto, nil)
	ctx := context.Background()

	b.process(ctx, teacherMessage("important notice"), false)

	if n, _ := b.journal.PendingCount(ctx); n != 1 {
		t.Fatalf("failed message must stay pending, got %d", n)
	}
	if got := b.stats.SendFailures.Load(); got != 1 {
		t.Errorf("failure counter = %d, want 1", got)
	}

	// client recovers; the sweep re-runs the whole plan
	delete(auto.failSend, "Bob")
	b.retryPending(ctx)

	if n, _ := b.journal.PendingCount(ctx); n != 0 {
		t.Fatalf("message still pending after successful retry, got %d", n)
	}
	var bobDeliveries int
	for _, s := range auto.sends {
		if s.contact == "Bob" {
			bobDeliveries++
		}
	}
	if bobDeliveries != 1 {
		t.Errorf("Bob received %d deliveries, want 1", bobDeliveries)
	}
	// the duplicate acknowledgement to the teacher is the accepted cost
	var acks int
	for _, s := range auto.sends {
		if s.contact == "王老師" {
			acks++
		}
	}
	if acks != 2 {
		t.Errorf("expected the re-run to repeat the reply, got %d acks", acks)
	}
}

func TestEnrich_SummaryReplacesForwardPayload(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.Forward.UseAISummary = true
	enricher := &fakeEnricher{summary: "📢 作業通知：週五前交作業"}
	b := newTestBot(t, settings, auto, enricher)

	b.process(context.Background(), teacherMessage("週五前交作業"), false)

	if enricher.summarized != 1 {
		t.Fatalf("summarize called %d times, want 1", enricher.summarized)
	}
	if auto.sends[0].text != "收到！" {
		t.Errorf("reply payload must stay untouched: %q", auto.sends[0].text)
	}
	for _, s := range auto.sends[1:] {
		if s.text != "📢 作業通知：週五前交作業" {
			t.Errorf("forward to %s not summarized: %q", s.contact, s.text)
		}
	}
}

func TestEnrich_SummaryFailureFallsBackToRawText(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.Forward.UseAISummary = true
	enricher := &fakeEnricher{summaryErr: errors.New("api down")}
	b := newTestBot(t, settings, auto, enricher)

	b.process(context.Background(), teacherMessage("週五前交作業"), false)

	if len(auto.sends) != 3 {
		t.Fatalf("fallback must still deliver everything, got %d sends", len(auto.sends))
	}
	for _, s := range auto.sends[1:] {
		if s.text != "週五前交作業" {
			t.Errorf("fallback forward not raw: %q", s.text)
		}
	}
	if got := b.stats.EnrichFallbacks.Load(); got != 1 {
		t.Errorf("fallback counter = %d, want 1", got)
	}
}

func TestEnrich_AnalysisDropsForwards(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.Forward.UseAIAnalysis = true
	enricher := &fakeEnricher{forward: false}
	b := newTestBot(t, settings, auto, enricher)
	ctx := context.Background()

	b.process(ctx, teacherMessage("在嗎？"), false)

	if len(auto.sends) != 1 || auto.sends[0].contact != "王老師" {
		t.Fatalf("private chatter must only get the reply: %+v", auto.sends)
	}
	if n, _ := b.journal.PendingCount(ctx); n != 0 {
		t.Errorf("dropped message must still complete, %d pending", n)
	}
}

func TestEnrich_AnalysisFailureUsesKeywordVerdict(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.Forward.UseAIAnalysis = true
	enricher := &fakeEnricher{forwardErr: errors.New("api down")}
	b := newTestBot(t, settings, auto, enricher)

	// default keyword verdict passes, so the forwards survive
	b.process(context.Background(), teacherMessage("週五前交作業"), false)

	if len(auto.sends) != 3 {
		t.Fatalf("keyword fallback should forward, got %d sends", len(auto.sends))
	}
}

func TestEnrich_StudentMessageSkipsEnricher(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.Forward.UseAISummary = true
	settings.Forward.UseAIAnalysis = true
	enricher := &fakeEnricher{summary: "unused", forward: true}
	b := newTestBot(t, settings, auto, enricher)

	alice := domain.Contact{Role: domain.RoleStudent, DisplayName: "Alice"}
	b.process(context.Background(), domain.NewIncomingMessage(alice, "ok", domain.KindText, time.Now()), false)

	if enricher.summarized != 0 || enricher.analyzed != 0 {
		t.Errorf("enricher consulted for a reply-only plan: %d/%d calls", enricher.analyzed, enricher.summarized)
	}
	if len(auto.sends) != 1 {
		t.Errorf("expected just the reply, got %+v", auto.sends)
	}
}

func TestRun_ConsumesBusAndStopsOnCancel(t *testing.T) {
	auto := newFakeAutomator()
	settings := testSettings()
	settings.General.PollIntervalSeconds = 1
	b := newTestBot(t, settings, auto, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.bus.Publish(teacherMessage("bus delivery"))

	deadline := time.After(2 * time.Second)
	for len(auto.sent()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("message from bus not processed, sends: %+v", auto.sent())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

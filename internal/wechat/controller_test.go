package wechat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"infobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAutomator records every call and can be scripted to fail sends
// to specific contacts or to return canned chat entries.
type fakeAutomator struct {
	sends    []sentItem
	focused  []string
	failSend map[string]error
	entries  map[string]domain.LatestEntry
	readErr  map[string]error
}

type sentItem struct {
	contact string
	text    string
}

func newFakeAutomator() *fakeAutomator {
	return &fakeAutomator{
		failSend: make(map[string]error),
		entries:  make(map[string]domain.LatestEntry),
		readErr:  make(map[string]error),
	}
}

func (f *fakeAutomator) Name() string                    { return "fake" }
func (f *fakeAutomator) Ready(context.Context) error     { return nil }
func (f *fakeAutomator) Refresh(context.Context) error   { return nil }
func (f *fakeAutomator) Focus(_ context.Context, contact string) error {
	f.focused = append(f.focused, contact)
	return nil
}

func (f *fakeAutomator) ReadLatest(_ context.Context, contact string) (domain.LatestEntry, error) {
	if err := f.readErr[contact]; err != nil {
		return domain.LatestEntry{}, err
	}
	return f.entries[contact], nil
}

func (f *fakeAutomator) Send(_ context.Context, contact, text string) error {
	if err := f.failSend[contact]; err != nil {
		return err
	}
	f.sends = append(f.sends, sentItem{contact: contact, text: text})
	return nil
}

func TestExecutePlan_InOrder(t *testing.T) {
	auto := newFakeAutomator()
	c := NewController(auto, testLogger())

	teacher := domain.Contact{Role: domain.RoleTeacher, DisplayName: "王老師"}
	alice := domain.Contact{Role: domain.RoleStudent, DisplayName: "Alice"}
	bob := domain.Contact{Role: domain.RoleStudent, DisplayName: "Bob"}

	plan := []domain.Action{
		domain.Reply(teacher, "收到！"),
		domain.Forward(alice, "notice"),
		domain.Forward(bob, "notice"),
	}
	if err := c.ExecutePlan(context.Background(), plan); err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if len(auto.sends) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(auto.sends))
	}
	wantOrder := []string{"王老師", "Alice", "Bob"}
	for i, want := range wantOrder {
		if auto.sends[i].contact != want {
			t.Errorf("send %d went to %q, want %q", i, auto.sends[i].contact, want)
		}
	}
	if len(auto.focused) != 3 {
		t.Errorf("every send must focus the window first, got %d focus calls", len(auto.focused))
	}
}

func TestExecutePlan_StopsAtFirstFailure(t *testing.T) {
	auto := newFakeAutomator()
	auto.failSend["Alice"] = errors.New("window not found")
	c := NewController(auto, testLogger())

	teacher := domain.Contact{Role: domain.RoleTeacher, DisplayName: "王老師"}
	alice := domain.Contact{Role: domain.RoleStudent, DisplayName: "Alice"}
	bob := domain.Contact{Role: domain.RoleStudent, DisplayName: "Bob"}

	plan := []domain.Action{
		domain.Reply(teacher, "收到！"),
		domain.Forward(alice, "notice"),
		domain.Forward(bob, "notice"),
	}
	err := c.ExecutePlan(context.Background(), plan)
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := fmt.Sprintf("%v", err); !errors.Is(err, auto.failSend["Alice"]) {
		t.Errorf("cause not wrapped: %v", got)
	}
	// the reply went out, the failing forward stopped the plan
	if len(auto.sends) != 1 || auto.sends[0].contact != "王老師" {
		t.Errorf("unexpected sends after failure: %+v", auto.sends)
	}
}

func TestExecute_UsesMatchID(t *testing.T) {
	auto := newFakeAutomator()
	c := NewController(auto, testLogger())

	teacher := domain.Contact{Role: domain.RoleTeacher, DisplayName: "李老師", MatchID: "李老師(數學)"}
	if err := c.Execute(context.Background(), domain.Reply(teacher, "收到！")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if auto.sends[0].contact != "李老師(數學)" {
		t.Errorf("send must target the match id, got %q", auto.sends[0].contact)
	}
}

func TestSendToMany_PartialFailure(t *testing.T) {
	auto := newFakeAutomator()
	auto.failSend["Bob"] = errors.New("client gone")
	c := NewController(auto, testLogger())

	contacts := []domain.Contact{
		{Role: domain.RoleStudent, DisplayName: "Alice"},
		{Role: domain.RoleStudent, DisplayName: "Bob"},
	}
	results := c.SendToMany(context.Background(), contacts, "broadcast")

	if !results["Alice"] || results["Bob"] {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(auto.sends) != 1 || auto.sends[0].text != "broadcast" {
		t.Errorf("unexpected sends: %+v", auto.sends)
	}
}

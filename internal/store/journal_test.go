package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"infobot/internal/domain"
)

func testJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func teacherMessage(content string, ts time.Time) domain.IncomingMessage {
	sender := domain.Contact{Role: domain.RoleTeacher, DisplayName: "王老師"}
	return domain.NewIncomingMessage(sender, content, domain.KindText, ts)
}

func TestRecord_Dedup(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	msg := teacherMessage("homework", time.Now())

	seen, err := j.Record(ctx, msg)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if seen {
		t.Error("first record must not be seen")
	}

	seen, err = j.Record(ctx, msg)
	if err != nil {
		t.Fatalf("Record twice: %v", err)
	}
	if !seen {
		t.Error("second record must be seen")
	}
}

func TestPending_ArrivalOrderAndAttempts(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	older := teacherMessage("first notice", base)
	newer := teacherMessage("second notice", base.Add(time.Minute))

	// insert newest first to prove ordering comes from received_at
	for _, m := range []domain.IncomingMessage{newer, older} {
		if _, err := j.Record(ctx, m); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].ID != older.ID || pending[1].ID != newer.ID {
		t.Errorf("pending not in arrival order: %q then %q", pending[0].Content, pending[1].Content)
	}
	if pending[0].Sender.Role != domain.RoleTeacher || pending[0].Kind != domain.KindText {
		t.Errorf("role/kind not restored: %+v", pending[0])
	}

	var attempts int
	if err := j.db.QueryRow(`SELECT attempts FROM messages WHERE id = ?`, older.ID).Scan(&attempts); err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d after one sweep, want 1", attempts)
	}
}

func TestPending_RestoresMatchID(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	sender := domain.Contact{Role: domain.RoleTeacher, DisplayName: "李老師", MatchID: "李老師(數學)"}
	msg := domain.NewIncomingMessage(sender, "考試延期", domain.KindText, time.Now())
	if _, err := j.Record(ctx, msg); err != nil {
		t.Fatalf("Record: %v", err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	got := pending[0].Sender
	if got.MatchID != "李老師(數學)" {
		t.Errorf("redelivered sender lost the match id: %+v", got)
	}
	// the re-run plan must address the same window as the first attempt
	if got.ID() != sender.ID() {
		t.Errorf("redelivered sender targets %q, want %q", got.ID(), sender.ID())
	}
}

func TestMarkProcessed(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	msg := teacherMessage("notice", time.Now())

	if _, err := j.Record(ctx, msg); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.MarkProcessed(ctx, msg.ID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("processed message still pending: %+v", pending)
	}

	n, err := j.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestTeacherCount(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now()

	recent := teacherMessage("recent", now.Add(-time.Hour))
	old := teacherMessage("old", now.Add(-48*time.Hour))
	student := domain.NewIncomingMessage(
		domain.Contact{Role: domain.RoleStudent, DisplayName: "Alice"},
		"ok", domain.KindText, now.Add(-time.Hour),
	)
	for _, m := range []domain.IncomingMessage{recent, old, student} {
		if _, err := j.Record(ctx, m); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := j.TeacherCount(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("TeacherCount: %v", err)
	}
	if n != 1 {
		t.Errorf("TeacherCount = %d, want 1 (old and student messages excluded)", n)
	}
}

func TestCleanup(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now()

	keep := teacherMessage("keep", now)
	drop := teacherMessage("drop", now.Add(-10*24*time.Hour))
	for _, m := range []domain.IncomingMessage{keep, drop} {
		if _, err := j.Record(ctx, m); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	deleted, err := j.Cleanup(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup deleted %d, want 1", deleted)
	}

	if seen, _ := j.Record(ctx, keep); !seen {
		t.Error("recent message should have survived cleanup")
	}
}

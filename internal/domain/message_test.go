package domain

import (
	"testing"
	"time"
)

func TestNewIncomingMessage_DeterministicID(t *testing.T) {
	sender := Contact{Role: RoleTeacher, DisplayName: "王老師"}
	ts := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	a := NewIncomingMessage(sender, "notice", KindText, ts)
	b := NewIncomingMessage(sender, "notice", KindText, ts.Add(500*time.Millisecond))
	if a.ID != b.ID {
		t.Error("same entry within the same second must map to one ID")
	}

	c := NewIncomingMessage(sender, "notice", KindText, ts.Add(2*time.Second))
	if a.ID == c.ID {
		t.Error("later observation must get a fresh ID")
	}

	d := NewIncomingMessage(sender, "different", KindText, ts)
	if a.ID == d.ID {
		t.Error("different content must get a different ID")
	}

	other := Contact{Role: RoleStudent, DisplayName: "Alice"}
	e := NewIncomingMessage(other, "notice", KindText, ts)
	if a.ID == e.ID {
		t.Error("different sender must get a different ID")
	}
}

func TestContactID(t *testing.T) {
	c := Contact{DisplayName: "李老師"}
	if c.ID() != "李老師" {
		t.Errorf("ID() = %q, want display name", c.ID())
	}
	c.MatchID = "李老師(數學)"
	if c.ID() != "李老師(數學)" {
		t.Errorf("ID() = %q, want match id", c.ID())
	}
}

package domain

// Role classifies a configured contact.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleUnknown Role = "unknown"
)

// Contact is a configured chat peer. Contacts are built once from
// configuration and never mutated afterwards.
type Contact struct {
	Role        Role
	DisplayName string // name as it appears in the chat client
	MatchID     string // identifier matched against window/chat titles
}

// ID returns the identifier used to locate the contact's chat window.
// Falls back to the display name when no explicit match ID is set.
func (c Contact) ID() string {
	if c.MatchID != "" {
		return c.MatchID
	}
	return c.DisplayName
}

func (c Contact) IsTeacher() bool { return c.Role == RoleTeacher }
func (c Contact) IsStudent() bool { return c.Role == RoleStudent }

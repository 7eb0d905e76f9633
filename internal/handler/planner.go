package handler

import (
	"infobot/internal/domain"
)

// Planner is the decision core: a pure function from an incoming
// message to an ordered action list. It performs no I/O and holds no
// mutable state, so the same message always yields the same plan and
// the logic is testable without a chat client or network.
type Planner struct {
	ack      string
	students []domain.Contact
	tmpl     *ForwardTemplate
	filter   *ForwardFilter
}

// Options carries everything the planner needs, resolved once from
// configuration at construction.
type Options struct {
	AckText  string
	Students []domain.Contact
	Template string
	Filter   FilterOptions
}

func New(opts Options) *Planner {
	if opts.AckText == "" {
		opts.AckText = "收到！"
	}
	return &Planner{
		ack:      opts.AckText,
		students: opts.Students,
		tmpl:     NewForwardTemplate(opts.Template),
		filter:   NewForwardFilter(opts.Filter),
	}
}

// Plan decides the outbound actions for one message:
//
//   - unrecognized sender: no actions at all; the caller logs and moves on
//   - any recognized sender: one acknowledgement reply
//   - teacher text message passing the forward filter: additionally one
//     forward per configured student, in configured order
//
// Non-text kinds are opaque and stop at the acknowledgement.
func (p *Planner) Plan(msg domain.IncomingMessage) []domain.Action {
	if msg.Sender.Role == domain.RoleUnknown {
		return nil
	}

	actions := []domain.Action{domain.Reply(msg.Sender, p.ack)}

	if !msg.Sender.IsTeacher() || msg.Kind != domain.KindText {
		return actions
	}
	if !p.filter.Allow(msg.Content) {
		return actions
	}

	payload := p.tmpl.Render(msg.Sender.DisplayName, msg.Timestamp, msg.Content)
	for _, student := range p.students {
		actions = append(actions, domain.Forward(student, payload))
	}
	return actions
}

// KeywordVerdict is the offline fallback for the AI relevance check:
// important keywords force a forward, unimportant ones suppress it,
// anything else passes. Only consulted for messages that already
// cleared the filter gates.
func (p *Planner) KeywordVerdict(content string) bool {
	return p.filter.KeywordVerdict(content)
}

// WithForwardPayload returns a copy of the action list with every
// forward payload replaced. Reply actions and action order are left
// untouched, so enrichment can only ever change what is forwarded,
// never whether or to whom.
func WithForwardPayload(actions []domain.Action, payload string) []domain.Action {
	out := make([]domain.Action, len(actions))
	copy(out, actions)
	for i := range out {
		if out[i].Kind == domain.ActionForward {
			out[i].Payload = payload
		}
	}
	return out
}

// DropForwards returns a copy of the action list without forward
// actions. Used when the relevance analysis decides a teacher message
// is private chatter rather than a class notice.
func DropForwards(actions []domain.Action) []domain.Action {
	out := make([]domain.Action, 0, len(actions))
	for _, a := range actions {
		if a.Kind != domain.ActionForward {
			out = append(out, a)
		}
	}
	return out
}

// HasForwards reports whether the plan fans out to any student.
func HasForwards(actions []domain.Action) bool {
	for _, a := range actions {
		if a.Kind == domain.ActionForward {
			return true
		}
	}
	return false
}

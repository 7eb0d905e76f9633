package domain

// ActionKind distinguishes the two outbound instructions the planner
// can emit.
type ActionKind string

const (
	ActionReply   ActionKind = "reply"
	ActionForward ActionKind = "forward"
)

// Action is a single outbound instruction: deliver Payload to Target.
// Actions are produced by the planner, ordered, and executed one-shot
// by the controller. They carry no execution state.
type Action struct {
	Kind    ActionKind
	Target  Contact
	Payload string
}

// Reply builds a reply action addressed to the original sender.
func Reply(to Contact, text string) Action {
	return Action{Kind: ActionReply, Target: to, Payload: text}
}

// Forward builds a forward action addressed to a student.
func Forward(to Contact, payload string) Action {
	return Action{Kind: ActionForward, Target: to, Payload: payload}
}

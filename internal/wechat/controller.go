package wechat

import (
	"context"
	"fmt"
	"log/slog"

	"infobot/internal/domain"
)

// Controller executes the planner's actions through an automator. It
// is the only component with chat-client side effects; the decision
// logic upstream stays pure.
type Controller struct {
	auto   domain.Automator
	logger *slog.Logger
}

func NewController(auto domain.Automator, logger *slog.Logger) *Controller {
	return &Controller{auto: auto, logger: logger}
}

func (c *Controller) Automator() domain.Automator { return c.auto }

// Execute runs one action: raise the target window, deliver the
// payload.
func (c *Controller) Execute(ctx context.Context, a domain.Action) error {
	if err := c.auto.Focus(ctx, a.Target.ID()); err != nil {
		return fmt.Errorf("focus %s: %w", a.Target.DisplayName, err)
	}
	if err := c.auto.Send(ctx, a.Target.ID(), a.Payload); err != nil {
		return fmt.Errorf("send to %s: %w", a.Target.DisplayName, err)
	}
	c.logger.Debug("action executed",
		"kind", string(a.Kind),
		"target", a.Target.DisplayName,
	)
	return nil
}

// ExecutePlan runs actions in order and stops at the first failure.
// The caller leaves the message pending in the journal, so the whole
// plan is re-run on the next cycle; a duplicate acknowledgement is the
// accepted cost of never losing a forward.
func (c *Controller) ExecutePlan(ctx context.Context, actions []domain.Action) error {
	for i, a := range actions {
		if err := c.Execute(ctx, a); err != nil {
			return fmt.Errorf("action %d/%d: %w", i+1, len(actions), err)
		}
	}
	return nil
}

// SendToMany delivers the same text to several contacts sequentially
// and reports per-contact success, matching the broadcast semantics of
// the CLI surface.
func (c *Controller) SendToMany(ctx context.Context, contacts []domain.Contact, text string) map[string]bool {
	results := make(map[string]bool, len(contacts))
	for _, contact := range contacts {
		err := c.Execute(ctx, domain.Action{Kind: domain.ActionForward, Target: contact, Payload: text})
		results[contact.DisplayName] = err == nil
		if err != nil {
			c.logger.Error("broadcast delivery failed", "contact", contact.DisplayName, "err", err)
		}
	}
	return results
}
